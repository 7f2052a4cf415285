// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-dispatch.

package api

import (
	"fmt"
	"syscall"
)

// Common errors used across the library.
// Coded errors compare by code, so a contextualised copy still matches with errors.Is.
var (
	ErrDuplicateWatch  = NewError(ErrCodeAlreadyExists, "duplicate fd watch")
	ErrNotWatched      = NewError(ErrCodeNotFound, "fd is not watched")
	ErrClosed          = NewError(ErrCodeClosed, "dispatcher is closed")
	ErrInvalidArgument = NewError(ErrCodeInvalidArgument, "invalid argument")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeAlreadyExists
	ErrCodeNotFound
	ErrCodeClosed
	ErrCodeInternal
)

// Error represents a structured logic error with code and context.
// These report caller misuse, never resource exhaustion.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Is reports whether target is an *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithContext returns a copy of the error with an extra context value.
// The receiver is left untouched so package-level sentinels stay immutable.
func (e *Error) WithContext(key string, value any) *Error {
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	return &Error{Code: e.Code, Message: e.Message, Context: ctx}
}

// SystemError is an unrecoverable OS failure carrying the errno of the failed call.
type SystemError struct {
	Op    string
	Errno syscall.Errno
}

// NewSystemError builds a SystemError for op. Non-errno causes are reported as EIO.
func NewSystemError(op string, err error) *SystemError {
	errno, ok := err.(syscall.Errno)
	if !ok {
		errno = syscall.EIO
	}
	return &SystemError{Op: op, Errno: errno}
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("%s: %s (errno %d)", e.Op, e.Errno.Error(), int(e.Errno))
}

// Unwrap exposes the errno so errors.Is(err, unix.EMFILE) works.
func (e *SystemError) Unwrap() error {
	return e.Errno
}
