// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mhz19

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

// fakeTransport simulates a sensor on the other end of the line.
// Bytes in pending are what the next read sees; a write queues reply.
type fakeTransport struct {
	pending  []byte
	reply    []byte
	chunk    int // max bytes per read, 0 = unlimited
	readErr  error
	writeErr error
	writeN   int // bytes accepted per write, 0 = all
	flushErr error

	writes  [][]byte
	flushes int
	closed  bool
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	f.pending = append(f.pending, f.reply...)
	if f.writeN > 0 {
		return f.writeN, nil
	}
	return len(p), nil
}

func (f *fakeTransport) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.pending) == 0 {
		return 0, nil
	}
	n := len(p)
	if f.chunk > 0 && n > f.chunk {
		n = f.chunk
	}
	n = copy(p[:n], f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *fakeTransport) Flush() error {
	f.flushes++
	if f.flushErr != nil {
		return f.flushErr
	}
	f.pending = nil
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func newTestSensor(reply []byte) (*Sensor, *fakeTransport) {
	ft := &fakeTransport{reply: reply}
	return NewSensor(WithTransport(ft), WithReadTimeout(50*time.Millisecond)), ft
}

// ============================================================
// ReadCO2 Tests
// ============================================================

func TestReadCO2_RoundTrip(t *testing.T) {
	values := []uint16{0, 1, 255, 256, 400, 656, 999, 5000, 10000, 65535}
	for _, v := range values {
		resp := NewConcentrationResponse(v, 24, 0)
		s, ft := newTestSensor(resp.Bytes())

		r, err := s.ReadCO2()
		if err != nil {
			t.Fatalf("ReadCO2(%d): %v", v, err)
		}
		if r.PPM != v {
			t.Errorf("ReadCO2 = %d, want %d", r.PPM, v)
		}
		if r.Temperature != 24 {
			t.Errorf("Temperature = %d, want 24", r.Temperature)
		}
		if len(ft.writes) != 1 || !bytes.Equal(ft.writes[0], []byte{0xFF, 0x01, 0x86, 0x00, 0x00, 0x00, 0x00, 0x00, 0x79}) {
			t.Errorf("unexpected writes: % X", ft.writes)
		}
	}
}

func TestReadCO2_ExampleVector(t *testing.T) {
	resp := []byte{0xFF, 0x86, 0x02, 0x90, 0x00, 0x00, 0x00, 0x00, 0x00}
	resp[8] = Checksum(resp)
	s, _ := newTestSensor(resp)

	r, err := s.ReadCO2()
	if err != nil {
		t.Fatalf("ReadCO2: %v", err)
	}
	if r.PPM != 656 {
		t.Errorf("PPM = %d, want 656", r.PPM)
	}
}

func TestReadCO2_ChunkedResponse(t *testing.T) {
	s, ft := newTestSensor(NewConcentrationResponse(1500, 20, 0).Bytes())
	ft.chunk = 2

	r, err := s.ReadCO2()
	if err != nil {
		t.Fatalf("ReadCO2: %v", err)
	}
	if r.PPM != 1500 {
		t.Errorf("PPM = %d, want 1500", r.PPM)
	}
}

func TestReadCO2_ChecksumBitFlip(t *testing.T) {
	for bit := 0; bit < 8; bit++ {
		resp := NewConcentrationResponse(700, 20, 0)
		resp[8] ^= 1 << bit
		s, _ := newTestSensor(resp.Bytes())

		r, err := s.ReadCO2()
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Errorf("bit %d: expected ErrChecksumMismatch, got %v", bit, err)
		}
		if r.PPM != 0 {
			t.Errorf("bit %d: no reading expected on failure, got %d", bit, r.PPM)
		}
	}
}

func TestReadCO2_ShortRead(t *testing.T) {
	for n := 0; n < FrameLength; n++ {
		s, _ := newTestSensor(NewConcentrationResponse(700, 20, 0).Bytes()[:n])

		r, err := s.ReadCO2()
		if !errors.Is(err, ErrReadFailure) {
			t.Fatalf("%d bytes: expected ErrReadFailure, got %v", n, err)
		}
		if r.PPM != 0 {
			t.Errorf("%d bytes: partial reading returned: %d", n, r.PPM)
		}
		var pe *ProtocolError
		if errors.As(err, &pe) && len(pe.Frame) != n {
			t.Errorf("error should carry the %d received bytes, got %d", n, len(pe.Frame))
		}
	}
}

func TestReadCO2_TransportReadError(t *testing.T) {
	s, ft := newTestSensor(nil)
	ft.readErr = io.ErrUnexpectedEOF

	_, err := s.ReadCO2()
	if !errors.Is(err, ErrReadFailure) {
		t.Fatalf("expected ErrReadFailure, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("transport error should be unwrappable")
	}
}

func TestReadCO2_CommandMismatch(t *testing.T) {
	resp, _ := NewResponseFrame(CmdZeroCalibration, 0x02, 0x90)
	s, _ := newTestSensor(resp.Bytes())

	_, err := s.ReadCO2()
	if !errors.Is(err, ErrCommandRejected) {
		t.Errorf("expected ErrCommandRejected, got %v", err)
	}
}

func TestReadCO2_BadStartByte(t *testing.T) {
	resp := NewConcentrationResponse(700, 20, 0)
	resp[0] = 0x00
	s, _ := newTestSensor(resp.Bytes())

	_, err := s.ReadCO2()
	if !errors.Is(err, ErrCommandRejected) {
		t.Errorf("expected ErrCommandRejected, got %v", err)
	}
}

func TestReadCO2_NotInitialized(t *testing.T) {
	s := NewSensor()
	r, err := s.ReadCO2()
	if !errors.Is(err, ErrSerialNotInitialized) {
		t.Fatalf("expected ErrSerialNotInitialized, got %v", err)
	}
	if r.PPM != 0 {
		t.Error("no reading expected")
	}
	if CodeOf(err) != CodeSerialNotInitialized {
		t.Errorf("CodeOf = %d", CodeOf(err))
	}
}

func TestReadCO2_NotInitializedNoWrite(t *testing.T) {
	ft := &fakeTransport{reply: NewConcentrationResponse(400, 20, 0).Bytes()}
	opener := OpenerFunc(func(rx, tx Pin, baud int) (Transport, error) { return ft, nil })
	s := NewSensor(WithOpener(opener))

	if _, err := s.ReadCO2(); !errors.Is(err, ErrSerialNotInitialized) {
		t.Fatalf("expected ErrSerialNotInitialized, got %v", err)
	}
	if len(ft.writes) != 0 {
		t.Errorf("no write expected before Initialize, got %d", len(ft.writes))
	}
}

func TestReadCO2_WriteFailure(t *testing.T) {
	s, ft := newTestSensor(NewConcentrationResponse(700, 20, 0).Bytes())
	ft.writeErr = io.ErrClosedPipe

	_, err := s.ReadCO2()
	if !errors.Is(err, ErrWriteFailure) {
		t.Errorf("expected ErrWriteFailure, got %v", err)
	}
}

func TestReadCO2_ShortWrite(t *testing.T) {
	s, ft := newTestSensor(NewConcentrationResponse(700, 20, 0).Bytes())
	ft.writeN = 4

	_, err := s.ReadCO2()
	if !errors.Is(err, ErrWriteFailure) {
		t.Errorf("expected ErrWriteFailure, got %v", err)
	}
}

func TestReadCO2_FlushesStaleBytes(t *testing.T) {
	s, ft := newTestSensor(NewConcentrationResponse(900, 20, 0).Bytes())
	// leftovers from an exchange that timed out
	ft.pending = NewConcentrationResponse(100, 20, 0).Bytes()[:5]

	r, err := s.ReadCO2()
	if err != nil {
		t.Fatalf("ReadCO2: %v", err)
	}
	if r.PPM != 900 {
		t.Errorf("PPM = %d, want 900", r.PPM)
	}
	if ft.flushes != 1 {
		t.Errorf("flushes = %d, want 1", ft.flushes)
	}
}

func TestReadCO2_FlushError(t *testing.T) {
	s, ft := newTestSensor(nil)
	ft.flushErr = io.ErrClosedPipe

	_, err := s.ReadCO2()
	if !errors.Is(err, ErrWriteFailure) {
		t.Errorf("expected ErrWriteFailure, got %v", err)
	}
	if len(ft.writes) != 0 {
		t.Error("no write expected after flush failure")
	}
}

func TestReadCO2_Trace(t *testing.T) {
	var tx, rx []byte
	ft := &fakeTransport{reply: NewConcentrationResponse(700, 20, 0).Bytes()}
	s := NewSensor(WithTransport(ft), WithTrace(func(a, b []byte) {
		tx = append([]byte(nil), a...)
		rx = append([]byte(nil), b...)
	}))

	if _, err := s.ReadCO2(); err != nil {
		t.Fatalf("ReadCO2: %v", err)
	}
	if !bytes.Equal(tx, NewReadCO2Command().Bytes()) {
		t.Errorf("trace tx = % X", tx)
	}
	if len(rx) != FrameLength {
		t.Errorf("trace rx = % X", rx)
	}
}

// ============================================================
// Lifecycle Tests
// ============================================================

func TestInitialize(t *testing.T) {
	ft := &fakeTransport{reply: NewConcentrationResponse(420, 20, 0).Bytes()}
	var gotRx, gotTx Pin
	var gotBaud int
	opener := OpenerFunc(func(rx, tx Pin, baud int) (Transport, error) {
		gotRx, gotTx, gotBaud = rx, tx, baud
		return ft, nil
	})
	s := NewSensor(WithOpener(opener))

	if s.Initialized() {
		t.Fatal("sensor should start uninitialized")
	}
	if err := s.Initialize(13, 15); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if gotRx != 13 || gotTx != 15 || gotBaud != BaudRate {
		t.Errorf("opener got rx=%d tx=%d baud=%d", gotRx, gotTx, gotBaud)
	}
	if rx, tx := s.Pins(); rx != 13 || tx != 15 {
		t.Errorf("Pins = %d, %d", rx, tx)
	}

	r, err := s.ReadCO2()
	if err != nil || r.PPM != 420 {
		t.Fatalf("ReadCO2 = %v, %v", r, err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !ft.closed || s.Initialized() {
		t.Error("Close should release the transport")
	}
}

func TestInitialize_Reopen(t *testing.T) {
	first := &fakeTransport{}
	second := &fakeTransport{}
	calls := 0
	opener := OpenerFunc(func(rx, tx Pin, baud int) (Transport, error) {
		calls++
		if calls == 1 {
			return first, nil
		}
		return second, nil
	})
	s := NewSensor(WithOpener(opener))
	_ = s.Initialize(1, 2)
	_ = s.Initialize(3, 4)
	if !first.closed {
		t.Error("previous channel should be closed on re-initialize")
	}
}

func TestInitialize_Errors(t *testing.T) {
	if err := NewSensor().Initialize(1, 2); !errors.Is(err, ErrSerialNotInitialized) {
		t.Errorf("no opener: expected ErrSerialNotInitialized, got %v", err)
	}

	failing := OpenerFunc(func(rx, tx Pin, baud int) (Transport, error) {
		return nil, errors.New("no such device")
	})
	s := NewSensor(WithOpener(failing))
	if err := s.Initialize(1, 2); !errors.Is(err, ErrSerialNotInitialized) {
		t.Errorf("open failure: expected ErrSerialNotInitialized, got %v", err)
	}
	if s.Initialized() {
		t.Error("failed Initialize must not leave a channel")
	}
}

func TestFlushChannel(t *testing.T) {
	if err := NewSensor().FlushChannel(); !errors.Is(err, ErrSerialNotInitialized) {
		t.Errorf("expected ErrSerialNotInitialized, got %v", err)
	}

	s, ft := newTestSensor(nil)
	ft.pending = []byte{0x01, 0x02}
	if err := s.FlushChannel(); err != nil {
		t.Fatalf("FlushChannel: %v", err)
	}
	if len(ft.pending) != 0 {
		t.Error("FlushChannel should discard pending bytes")
	}
}

func TestWithReadTimeout_IgnoresNonPositive(t *testing.T) {
	s := NewSensor(WithReadTimeout(0))
	if s.ReadTimeout() != DefaultReadTimeout {
		t.Errorf("ReadTimeout = %v, want default", s.ReadTimeout())
	}
}

// ============================================================
// Write-only Command Tests
// ============================================================

func TestWriteOnlyCommands(t *testing.T) {
	tests := []struct {
		name string
		run  func(s *Sensor) error
		want CommandFrame
	}{
		{"zero", func(s *Sensor) error { return s.CalibrateZero() }, NewZeroCalibrationCommand()},
		{"span", func(s *Sensor) error { return s.CalibrateSpan(2000) }, MustCommandFrame(CmdSpanCalibration, 0x07, 0xD0)},
		{"abc on", func(s *Sensor) error { return s.SetABC(true) }, NewABCCommand(true)},
		{"range", func(s *Sensor) error { return s.SetDetectionRange(5000) }, MustCommandFrame(CmdSetDetectionRange, 0, 0, 0, 0x13, 0x88)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ft := newTestSensor(nil)
			if err := tt.run(s); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(ft.writes) != 1 || !bytes.Equal(ft.writes[0], tt.want[:]) {
				t.Errorf("writes = % X, want % X", ft.writes, tt.want[:])
			}
		})
	}
}

func TestWriteOnlyCommands_Errors(t *testing.T) {
	if err := NewSensor().CalibrateZero(); !errors.Is(err, ErrSerialNotInitialized) {
		t.Errorf("expected ErrSerialNotInitialized, got %v", err)
	}

	s, ft := newTestSensor(nil)
	if err := s.SetDetectionRange(1234); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if err := s.CalibrateSpan(0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if len(ft.writes) != 0 {
		t.Error("invalid arguments must not reach the wire")
	}
}

// ============================================================
// Error Taxonomy Tests
// ============================================================

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err       error
		code      Code
		transient bool
	}{
		{nil, CodeOK, false},
		{ErrSerialNotInitialized, -1, false},
		{ErrWriteFailure, -2, false},
		{ErrReadFailure, -3, true},
		{ErrCommandRejected, -4, true},
		{ErrChecksumMismatch, -5, true},
		{errors.New("foreign"), CodeUnknown, false},
	}

	for _, tt := range tests {
		if got := CodeOf(tt.err); got != tt.code {
			t.Errorf("CodeOf(%v) = %d, want %d", tt.err, got, tt.code)
		}
		if got := IsTransient(tt.err); got != tt.transient {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.transient)
		}
	}
}

func TestProtocolError_DistinctSentinels(t *testing.T) {
	sentinels := []error{ErrSerialNotInitialized, ErrWriteFailure, ErrReadFailure, ErrCommandRejected, ErrChecksumMismatch}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if (i == j) != errors.Is(a, b) {
				t.Errorf("errors.Is(%v, %v) = %v", a, b, errors.Is(a, b))
			}
		}
	}
}

func TestProtocolError_Message(t *testing.T) {
	err := &ProtocolError{Code: CodeReadFailure, Op: "read", Err: errors.New("timeout")}
	if err.Error() != "mhz19: read: read failure: timeout" {
		t.Errorf("Error() = %q", err.Error())
	}
}
