// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package mhz19 implements the serial protocol of the MH-Z19B family of NDIR
// CO2 sensors.
//
// Every exchange is a fixed 9-byte command frame followed, for commands that
// answer, by a fixed 9-byte response frame. Frames are delimited by position
// only: a start byte, an address (commands) or echoed command code
// (responses), five data bytes and a trailing checksum over bytes 1..7.
package mhz19

import "time"

// Frame layout
const (
	FrameLength = 9
	DataLength  = 5

	StartByte     = 0xFF
	SensorAddress = 0x01
)

// Frame byte positions
const (
	posStart    = 0
	posAddress  = 1 // command frames
	posCommand  = 2 // command frames
	posEcho     = 1 // response frames
	posHigh     = 2
	posLow      = 3
	posTemp     = 4
	posStatus   = 5
	posChecksum = 8
)

// Command codes
const (
	CmdSetABC            Command = 0x79
	CmdReadCO2           Command = 0x86
	CmdZeroCalibration   Command = 0x87
	CmdSpanCalibration   Command = 0x88
	CmdSetDetectionRange Command = 0x99
)

// ABC switch values (data byte 0 of CmdSetABC)
const (
	abcOn  = 0xA0
	abcOff = 0x00
)

// UART settings. The sensor only speaks 9600 8N1.
const (
	BaudRate = 9600
	DataBits = 8
)

// Timing
const (
	DefaultReadTimeout = 1 * time.Second
)

// Detection ranges supported by the sensor firmware
const (
	Range2000  = 2000
	Range5000  = 5000
	Range10000 = 10000

	DefaultRange = Range5000
)

// Temperature byte offset: the sensor reports °C + 40
const temperatureOffset = 40
