// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mhz19

// Checksum computes the frame checksum over bytes 1..7 of frame.
// It is the two's complement of the low byte of their sum.
// frame must hold at least 8 bytes.
func Checksum(frame []byte) byte {
	var sum byte
	for _, b := range frame[1:posChecksum] {
		sum += b
	}
	return ^sum + 1
}
