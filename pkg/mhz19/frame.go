// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mhz19

import "fmt"

// Command is a sensor command code
type Command byte

// Frame is a raw 9-byte frame of either direction
type Frame [FrameLength]byte

// CommandFrame is a request sent to the sensor
type CommandFrame [FrameLength]byte

// ResponseFrame is an answer received from the sensor
type ResponseFrame [FrameLength]byte

// NewCommandFrame builds a command frame for cmd. Up to DataLength data bytes
// are copied into the frame; unused positions stay zero.
func NewCommandFrame(cmd Command, data ...byte) (CommandFrame, error) {
	var f CommandFrame
	if len(data) > DataLength {
		return f, fmt.Errorf("%w: %d data bytes (max %d)", ErrInvalidArgument, len(data), DataLength)
	}
	f[posStart] = StartByte
	f[posAddress] = SensorAddress
	f[posCommand] = byte(cmd)
	copy(f[posCommand+1:posChecksum], data)
	f[posChecksum] = Checksum(f[:])
	return f, nil
}

// MustCommandFrame is like NewCommandFrame but panics on error
func MustCommandFrame(cmd Command, data ...byte) CommandFrame {
	f, err := NewCommandFrame(cmd, data...)
	if err != nil {
		panic(fmt.Sprintf("mhz19: %v", err))
	}
	return f
}

// Command returns the command code
func (f CommandFrame) Command() Command {
	return Command(f[posCommand])
}

// Data returns the five command-specific data bytes
func (f CommandFrame) Data() [DataLength]byte {
	var d [DataLength]byte
	copy(d[:], f[posCommand+1:posChecksum])
	return d
}

// Valid reports whether the frame is well formed
func (f CommandFrame) Valid() bool {
	return Frame(f).Valid()
}

// Bytes returns a copy of the frame as a slice
func (f CommandFrame) Bytes() []byte {
	b := make([]byte, FrameLength)
	copy(b, f[:])
	return b
}

// NewResponseFrame builds a response frame echoing cmd with up to six data
// bytes at positions 2..7. Used by simulators and bridges.
func NewResponseFrame(cmd Command, data ...byte) (ResponseFrame, error) {
	var f ResponseFrame
	if len(data) > posChecksum-posHigh {
		return f, fmt.Errorf("%w: %d response bytes (max %d)", ErrInvalidArgument, len(data), posChecksum-posHigh)
	}
	f[posStart] = StartByte
	f[posEcho] = byte(cmd)
	copy(f[posHigh:posChecksum], data)
	f[posChecksum] = Checksum(f[:])
	return f, nil
}

// NewConcentrationResponse builds the answer to CmdReadCO2
func NewConcentrationResponse(ppm uint16, temperature int, status byte) ResponseFrame {
	f, _ := NewResponseFrame(CmdReadCO2,
		byte(ppm>>8), byte(ppm),
		byte(temperature+temperatureOffset), status)
	return f
}

// Command returns the echoed command code
func (f ResponseFrame) Command() Command {
	return Command(f[posEcho])
}

// Concentration decodes the CO2 value in ppm (high*256 + low)
func (f ResponseFrame) Concentration() uint16 {
	return uint16(f[posHigh])<<8 | uint16(f[posLow])
}

// Temperature decodes the sensor's internal temperature in °C
func (f ResponseFrame) Temperature() int {
	return int(f[posTemp]) - temperatureOffset
}

// Status returns the status byte
func (f ResponseFrame) Status() byte {
	return f[posStatus]
}

// Valid reports whether the trailing checksum matches
func (f ResponseFrame) Valid() bool {
	return Frame(f).Valid()
}

// Bytes returns a copy of the frame as a slice
func (f ResponseFrame) Bytes() []byte {
	b := make([]byte, FrameLength)
	copy(b, f[:])
	return b
}

// Validate checks the response against the command that was sent.
// Framing is checked before the checksum.
func (f ResponseFrame) Validate(sent Command) error {
	if f[posStart] != StartByte || f.Command() != sent {
		return &ProtocolError{
			Code:  CodeCommandRejected,
			Op:    "validate",
			Frame: f.Bytes(),
			Err:   fmt.Errorf("expected start 0x%02X cmd 0x%02X, got 0x%02X 0x%02X", StartByte, byte(sent), f[posStart], f[posEcho]),
		}
	}
	if want := Checksum(f[:]); f[posChecksum] != want {
		return &ProtocolError{
			Code:  CodeChecksumMismatch,
			Op:    "validate",
			Frame: f.Bytes(),
			Err:   fmt.Errorf("expected 0x%02X, got 0x%02X", want, f[posChecksum]),
		}
	}
	return nil
}

// Valid reports whether the frame starts with StartByte and its checksum matches
func (f Frame) Valid() bool {
	return f[posStart] == StartByte && f[posChecksum] == Checksum(f[:])
}

// IsCommand reports whether the frame is a request (address byte in position 1).
// No command code equals the sensor address, so requests and responses
// are distinguishable on a shared line.
func (f Frame) IsCommand() bool {
	return f[posAddress] == SensorAddress
}

// Command returns the command code of a request or the echo of a response
func (f Frame) Command() Command {
	if f.IsCommand() {
		return Command(f[posCommand])
	}
	return Command(f[posEcho])
}

// Bytes returns a copy of the frame as a slice
func (f Frame) Bytes() []byte {
	b := make([]byte, FrameLength)
	copy(b, f[:])
	return b
}
