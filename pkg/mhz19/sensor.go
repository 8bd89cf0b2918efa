// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mhz19

import (
	"fmt"
	"io"
	"time"
)

// Pin identifies a UART pin on the host
type Pin uint8

// Transport is the byte channel the sensor is wired to.
//
// ReadTimeout blocks until at least one byte is available or timeout expires,
// and returns 0, nil on expiry. Flush discards unread input.
type Transport interface {
	Write(p []byte) (int, error)
	ReadTimeout(p []byte, timeout time.Duration) (int, error)
	Flush() error
}

// Opener opens a UART channel on the given pins
type Opener interface {
	OpenUART(rx, tx Pin, baud int) (Transport, error)
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(rx, tx Pin, baud int) (Transport, error)

// OpenUART calls f
func (f OpenerFunc) OpenUART(rx, tx Pin, baud int) (Transport, error) {
	return f(rx, tx, baud)
}

// TraceFunc receives the raw bytes of every exchange
type TraceFunc func(tx, rx []byte)

// Sensor drives one MH-Z19B over an exclusively owned Transport.
// Each call is a single exchange attempt; retries belong to the caller.
// A Sensor is not safe for concurrent use.
type Sensor struct {
	opener    Opener
	transport Transport
	timeout   time.Duration
	rx, tx    Pin
	trace     TraceFunc
}

// Option configures a Sensor
type Option func(*Sensor)

// WithOpener sets the opener used by Initialize
func WithOpener(o Opener) Option {
	return func(s *Sensor) { s.opener = o }
}

// WithTransport supplies an already open channel, making Initialize optional
func WithTransport(t Transport) Option {
	return func(s *Sensor) { s.transport = t }
}

// WithReadTimeout bounds the wait for a response frame
func WithReadTimeout(d time.Duration) Option {
	return func(s *Sensor) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithTrace installs a hook called after every exchange
func WithTrace(fn TraceFunc) Option {
	return func(s *Sensor) { s.trace = fn }
}

// NewSensor creates a sensor driver
func NewSensor(opts ...Option) *Sensor {
	s := &Sensor{timeout: DefaultReadTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize opens the serial channel on rx/tx at the sensor's baud rate.
// A previously opened channel is closed first.
func (s *Sensor) Initialize(rx, tx Pin) error {
	if s.opener == nil {
		return &ProtocolError{Code: CodeSerialNotInitialized, Op: "initialize", Err: fmt.Errorf("no UART opener configured")}
	}
	if err := s.Close(); err != nil {
		return &ProtocolError{Code: CodeSerialNotInitialized, Op: "initialize", Err: err}
	}
	t, err := s.opener.OpenUART(rx, tx, BaudRate)
	if err != nil {
		return &ProtocolError{Code: CodeSerialNotInitialized, Op: "initialize", Err: err}
	}
	s.transport = t
	s.rx, s.tx = rx, tx
	return nil
}

// Initialized reports whether a channel is present
func (s *Sensor) Initialized() bool {
	return s.transport != nil
}

// Pins returns the pins passed to the last successful Initialize
func (s *Sensor) Pins() (rx, tx Pin) {
	return s.rx, s.tx
}

// ReadTimeout returns the configured response timeout
func (s *Sensor) ReadTimeout() time.Duration {
	return s.timeout
}

// Close releases the channel if it is closable
func (s *Sensor) Close() error {
	if s.transport == nil {
		return nil
	}
	t := s.transport
	s.transport = nil
	if c, ok := t.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// FlushChannel discards bytes left over from a previous exchange
func (s *Sensor) FlushChannel() error {
	if s.transport == nil {
		return &ProtocolError{Code: CodeSerialNotInitialized, Op: "flush"}
	}
	if err := s.transport.Flush(); err != nil {
		return &ProtocolError{Code: CodeWriteFailure, Op: "flush", Err: err}
	}
	return nil
}

// ReadCO2 performs one gas concentration exchange
func (s *Sensor) ReadCO2() (Reading, error) {
	resp, err := s.exchange(NewReadCO2Command())
	if err != nil {
		return Reading{}, err
	}
	return Reading{
		PPM:         resp.Concentration(),
		Temperature: resp.Temperature(),
		Status:      resp.Status(),
		Timestamp:   time.Now(),
	}, nil
}

// CalibrateZero sets the current concentration as the 400 ppm baseline.
// The sensor must have been in fresh air for at least 20 minutes.
func (s *Sensor) CalibrateZero() error {
	return s.send(NewZeroCalibrationCommand())
}

// CalibrateSpan calibrates against a reference gas of ppm concentration
func (s *Sensor) CalibrateSpan(ppm uint16) error {
	f, err := NewSpanCalibrationCommand(ppm)
	if err != nil {
		return err
	}
	return s.send(f)
}

// SetABC switches automatic baseline correction
func (s *Sensor) SetABC(enabled bool) error {
	return s.send(NewABCCommand(enabled))
}

// SetDetectionRange selects the measurement range (2000, 5000 or 10000 ppm)
func (s *Sensor) SetDetectionRange(ppm uint16) error {
	f, err := NewDetectionRangeCommand(ppm)
	if err != nil {
		return err
	}
	return s.send(f)
}

// exchange writes cmd and reads back a validated response
func (s *Sensor) exchange(cmd CommandFrame) (ResponseFrame, error) {
	var resp ResponseFrame
	if s.transport == nil {
		return resp, &ProtocolError{Code: CodeSerialNotInitialized, Op: "read"}
	}
	if err := s.write(cmd); err != nil {
		return resp, err
	}

	n, err := s.readFrame(resp[:])
	if s.trace != nil {
		s.trace(cmd[:], resp[:n])
	}
	if err != nil {
		return resp, err
	}
	if err := resp.Validate(cmd.Command()); err != nil {
		return resp, err
	}
	return resp, nil
}

// send writes a command that the sensor does not answer
func (s *Sensor) send(cmd CommandFrame) error {
	if s.transport == nil {
		return &ProtocolError{Code: CodeSerialNotInitialized, Op: "write"}
	}
	err := s.write(cmd)
	if s.trace != nil {
		s.trace(cmd[:], nil)
	}
	return err
}

func (s *Sensor) write(cmd CommandFrame) error {
	if err := s.FlushChannel(); err != nil {
		return err
	}
	n, err := s.transport.Write(cmd[:])
	if err != nil {
		return &ProtocolError{Code: CodeWriteFailure, Op: "write", Err: err}
	}
	if n != FrameLength {
		return &ProtocolError{Code: CodeWriteFailure, Op: "write", Err: fmt.Errorf("short write: %d of %d bytes", n, FrameLength)}
	}
	return nil
}

// readFrame fills buf within the read timeout and returns the byte count
func (s *Sensor) readFrame(buf []byte) (int, error) {
	deadline := time.Now().Add(s.timeout)
	n := 0
	for n < FrameLength {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		k, err := s.transport.ReadTimeout(buf[n:FrameLength], remaining)
		n += k
		if err != nil {
			return n, &ProtocolError{Code: CodeReadFailure, Op: "read", Frame: copyBytes(buf[:n]), Err: err}
		}
		if k == 0 {
			break
		}
	}
	if n < FrameLength {
		return n, &ProtocolError{
			Code:  CodeReadFailure,
			Op:    "read",
			Frame: copyBytes(buf[:n]),
			Err:   fmt.Errorf("timeout after %v: got %d of %d bytes", s.timeout, n, FrameLength),
		}
	}
	return n, nil
}

func copyBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
