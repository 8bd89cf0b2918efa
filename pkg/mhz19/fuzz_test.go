// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mhz19

import (
	"testing"
)

// FuzzFrameDecoder feeds arbitrary bytes through the stream decoder.
// Every emitted frame must pass the checksum.
func FuzzFrameDecoder(f *testing.F) {
	f.Add(NewReadCO2Command().Bytes())
	f.Add(NewConcentrationResponse(656, 20, 0).Bytes())
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	f.Add([]byte{0x00, 0xFF, 0x86, 0x02})

	f.Fuzz(func(t *testing.T, data []byte) {
		d := NewFrameDecoder()
		for _, b := range data {
			frame, err := d.DecodeByte(b)
			if err != nil && CodeOf(err) != CodeChecksumMismatch {
				t.Fatalf("unexpected error kind: %v", err)
			}
			if frame != nil && !frame.Valid() {
				t.Fatalf("decoder emitted invalid frame % X", frame[:])
			}
			if len(d.Buffered()) >= FrameLength {
				t.Fatalf("buffer overflow: %d bytes", len(d.Buffered()))
			}
		}
	})
}

// FuzzReadCO2 answers a read with arbitrary bytes. The exchange must either
// decode the value carried by a valid frame or fail with a protocol error.
func FuzzReadCO2(f *testing.F) {
	f.Add(NewConcentrationResponse(656, 20, 0).Bytes())
	f.Add([]byte{0xFF, 0x86, 0x02, 0x90})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, reply []byte) {
		s, _ := newTestSensor(reply)
		r, err := s.ReadCO2()

		if len(reply) < FrameLength {
			if CodeOf(err) != CodeReadFailure {
				t.Fatalf("short reply: expected read failure, got %v", err)
			}
			return
		}

		var resp ResponseFrame
		copy(resp[:], reply)
		verr := resp.Validate(CmdReadCO2)
		if CodeOf(err) != CodeOf(verr) {
			t.Fatalf("ReadCO2 error %v, Validate error %v", err, verr)
		}
		if err == nil && r.PPM != resp.Concentration() {
			t.Fatalf("PPM = %d, want %d", r.PPM, resp.Concentration())
		}
	})
}
