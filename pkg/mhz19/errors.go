// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mhz19

import (
	"errors"
	"fmt"
)

// Code identifies a protocol failure kind. Failures are small negative
// numbers so they can be carried as a status value.
type Code int16

// Result codes
const (
	CodeOK                   Code = 0
	CodeSerialNotInitialized Code = -1
	CodeWriteFailure         Code = -2
	CodeReadFailure          Code = -3
	CodeCommandRejected      Code = -4
	CodeChecksumMismatch     Code = -5
	CodeUnknown              Code = -128
)

// String returns a short description of the code
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeSerialNotInitialized:
		return "serial not initialized"
	case CodeWriteFailure:
		return "write failure"
	case CodeReadFailure:
		return "read failure"
	case CodeCommandRejected:
		return "command rejected"
	case CodeChecksumMismatch:
		return "checksum mismatch"
	default:
		return fmt.Sprintf("unknown (%d)", int16(c))
	}
}

// ProtocolError is returned by every failed exchange
type ProtocolError struct {
	Code  Code
	Op    string // initialize, flush, write, read, validate, decode
	Frame []byte // bytes received, when any
	Err   error
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	msg := "mhz19: "
	if e.Op != "" {
		msg += e.Op + ": "
	}
	msg += e.Code.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying transport error
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Is matches any ProtocolError carrying the same code
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is
var (
	ErrSerialNotInitialized = &ProtocolError{Code: CodeSerialNotInitialized}
	ErrWriteFailure         = &ProtocolError{Code: CodeWriteFailure}
	ErrReadFailure          = &ProtocolError{Code: CodeReadFailure}
	ErrCommandRejected      = &ProtocolError{Code: CodeCommandRejected}
	ErrChecksumMismatch     = &ProtocolError{Code: CodeChecksumMismatch}
)

// ErrInvalidArgument is returned by command builders for out-of-range parameters
var ErrInvalidArgument = errors.New("mhz19: invalid argument")

// CodeOf extracts the protocol code from err.
// Returns CodeOK for nil and CodeUnknown for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnknown
}

// IsTransient reports whether retrying the exchange may succeed.
// A missing channel is a configuration defect and a failed write usually
// means the port is gone, so neither is transient.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case CodeReadFailure, CodeChecksumMismatch, CodeCommandRejected:
		return true
	}
	return false
}
