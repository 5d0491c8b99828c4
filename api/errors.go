// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-msgpool.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	// ErrTooLarge reports an allocation above the configured maximum message size.
	ErrTooLarge = errors.New("message exceeds maximum size")
	// ErrOutOfMemory reports that the size class has no free block left.
	ErrOutOfMemory = errors.New("message pool out of memory")
	// ErrEmpty is returned by a non-blocking consume when nothing is ready.
	ErrEmpty = errors.New("channel is empty")
	// ErrUnavailable is returned for a readiness handle on a channel configured without one.
	ErrUnavailable = errors.New("readiness notification unavailable")

	ErrPoolClosed        = errors.New("message pool is closed")
	ErrInvalidHandle     = errors.New("invalid message handle")
	ErrUnknownChannel    = errors.New("unknown channel")
	ErrInUse             = errors.New("resource still in use")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrNotSupported      = errors.New("operation not supported")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeNotSupported
	ErrCodeUnknownChannel
	ErrCodeInternal
)

// Error represents a structured error with code and context.
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

// Is matches the sentinel that corresponds to the error code.
func (e *Error) Is(target error) bool {
	switch e.Code {
	case ErrCodeInvalidArgument:
		return target == ErrInvalidArgument
	case ErrCodeResourceExhausted:
		return target == ErrResourceExhausted
	case ErrCodeNotSupported:
		return target == ErrNotSupported
	case ErrCodeUnknownChannel:
		return target == ErrUnknownChannel
	}
	return false
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
