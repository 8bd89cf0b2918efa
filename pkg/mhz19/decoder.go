// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mhz19

import "bytes"

// FrameDecoder splits a passively observed byte stream into frames.
// It synchronizes on StartByte and, after a checksum failure, resumes from
// the next StartByte already buffered.
type FrameDecoder struct {
	buffer  [FrameLength]byte
	n       int
	skipped uint64
}

// NewFrameDecoder creates a new stream decoder
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{}
}

// Reset drops any partial frame
func (d *FrameDecoder) Reset() {
	d.n = 0
}

// Buffered returns the bytes of the partial frame
func (d *FrameDecoder) Buffered() []byte {
	return d.buffer[:d.n]
}

// Skipped returns the number of bytes discarded while hunting for StartByte
func (d *FrameDecoder) Skipped() uint64 {
	return d.skipped
}

// DecodeByte feeds one byte. Returns a complete frame, or nil if the frame
// is incomplete. Returns a ChecksumMismatch error for a corrupt frame.
func (d *FrameDecoder) DecodeByte(b byte) (*Frame, error) {
	if d.n == 0 && b != StartByte {
		d.skipped++
		return nil, nil
	}

	d.buffer[d.n] = b
	d.n++
	if d.n < FrameLength {
		return nil, nil
	}

	frame := Frame(d.buffer)
	d.n = 0
	if frame[posChecksum] != Checksum(frame[:]) {
		d.resync(frame[1:])
		return nil, &ProtocolError{Code: CodeChecksumMismatch, Op: "decode", Frame: frame.Bytes()}
	}
	return &frame, nil
}

// resync keeps the tail of rest starting at the next StartByte
func (d *FrameDecoder) resync(rest []byte) {
	i := bytes.IndexByte(rest, StartByte)
	if i < 0 {
		d.skipped += uint64(len(rest))
		return
	}
	d.skipped += uint64(i)
	d.n = copy(d.buffer[:], rest[i:])
}
