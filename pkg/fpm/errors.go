package fpm

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStep indicates an enrollment step outside 1..3.
	ErrInvalidStep = errors.New("invalid enroll step")
)

// MalformedError indicates a reply that is not a well-formed frame.
type MalformedError struct {
	Raw    []byte
	Reason string
}

// Error implements error.
func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed response: %s (% X)", e.Reason, e.Raw)
}

// TransportError wraps a write or read failure of the underlying channel.
type TransportError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is a MalformedError.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}
