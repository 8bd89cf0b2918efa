// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mhz19

import (
	"fmt"
	"strings"
)

// FormatCommand returns the human-readable name for a command code
func FormatCommand(cmd Command) string {
	switch cmd {
	case CmdReadCO2:
		return "READ_CO2"
	case CmdZeroCalibration:
		return "ZERO_CALIBRATION"
	case CmdSpanCalibration:
		return "SPAN_CALIBRATION"
	case CmdSetABC:
		return "SET_ABC"
	case CmdSetDetectionRange:
		return "SET_DETECTION_RANGE"
	default:
		return "UNKNOWN"
	}
}

// HexDump formats bytes as space separated hex pairs
func HexDump(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// FormatFrame formats a raw frame into a single human-readable line
func FormatFrame(f Frame) string {
	dir := "RX"
	if f.IsCommand() {
		dir = "TX"
	}
	check := "OK"
	if !f.Valid() {
		check = fmt.Sprintf("BAD (want 0x%02X)", Checksum(f[:]))
	}

	result := fmt.Sprintf("%s [%s] %s (0x%02X) checksum=%s",
		dir, HexDump(f[:]), FormatCommand(f.Command()), byte(f.Command()), check)

	if !f.IsCommand() && f.Command() == CmdReadCO2 && f.Valid() {
		result += " " + FormatReading(Reading{
			PPM:         ResponseFrame(f).Concentration(),
			Temperature: ResponseFrame(f).Temperature(),
			Status:      ResponseFrame(f).Status(),
		})
	}
	return result
}

// FormatReading formats the decoded fields of a reading
func FormatReading(r Reading) string {
	return fmt.Sprintf("CO2=%d ppm temp=%d°C status=0x%02X", r.PPM, r.Temperature, r.Status)
}
