// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mhz19

import "fmt"

// Command builder functions create frames ready for writing.
// Only CmdReadCO2 is answered by the sensor; the others are write-only.

// NewReadCO2Command creates the gas concentration request (0x86).
// Always FF 01 86 00 00 00 00 00 79.
func NewReadCO2Command() CommandFrame {
	return MustCommandFrame(CmdReadCO2)
}

// NewZeroCalibrationCommand creates a zero point calibration request (0x87).
// The current concentration is taken as 400 ppm.
func NewZeroCalibrationCommand() CommandFrame {
	return MustCommandFrame(CmdZeroCalibration)
}

// NewSpanCalibrationCommand creates a span point calibration request (0x88).
// ppm is the reference gas concentration, high byte first.
func NewSpanCalibrationCommand(ppm uint16) (CommandFrame, error) {
	if ppm == 0 || ppm > Range10000 {
		return CommandFrame{}, fmt.Errorf("%w: span %d ppm (valid 1-%d)", ErrInvalidArgument, ppm, Range10000)
	}
	return NewCommandFrame(CmdSpanCalibration, byte(ppm>>8), byte(ppm))
}

// NewABCCommand creates an automatic baseline correction switch (0x79)
func NewABCCommand(enabled bool) CommandFrame {
	if enabled {
		return MustCommandFrame(CmdSetABC, abcOn)
	}
	return MustCommandFrame(CmdSetABC, abcOff)
}

// NewDetectionRangeCommand creates a detection range request (0x99).
// The range goes in data bytes 3 and 4 (frame positions 6 and 7).
func NewDetectionRangeCommand(ppm uint16) (CommandFrame, error) {
	switch ppm {
	case Range2000, Range5000, Range10000:
	default:
		return CommandFrame{}, fmt.Errorf("%w: range %d ppm (valid %d, %d, %d)", ErrInvalidArgument, ppm, Range2000, Range5000, Range10000)
	}
	return NewCommandFrame(CmdSetDetectionRange, 0x00, 0x00, 0x00, byte(ppm>>8), byte(ppm))
}
