// Package exception provides custom error types and error handling utilities for the Swell streaming runtime.
// It standardizes errors that occur during streaming query execution, carrying the module where
// the error originated and the stack trace captured at creation time.
package exception

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// StreamError is a custom error type that occurs during streaming query processing.
// It holds the module where the error occurred, a message, the wrapped original error,
// and a flag indicating whether it is retryable by the engine's recovery mechanism.
type StreamError struct {
	// Module indicates the module where the error occurred (e.g., "reader", "processor", "writer", "checkpoint", "config").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// isRetryable indicates whether this error is expected to succeed on a later trigger.
	isRetryable bool
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

// NewStreamError creates a new StreamError instance.
//
// module: The module where the error occurred.
// message: The error message.
// originalErr: The original error to wrap.
// isRetryable: Whether a later trigger may succeed where this one failed.
// Returns: A new StreamError instance.
func NewStreamError(module, message string, originalErr error, isRetryable bool) *StreamError {
	// Capture stack trace (for debugging purposes)
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &StreamError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		StackTrace:  string(buf[:n]),
	}
}

// NewStreamErrorf creates a new StreamError instance using a format string.
// An optional error is extracted from the end of the variadic arguments 'a';
// the remaining arguments are used for fmt.Sprintf. Errors created this way
// are not retryable.
//
// Example:
// NewStreamErrorf("reader", "failed to decode line %d of %s", 42, "input.json", io.ErrUnexpectedEOF)
func NewStreamErrorf(module, format string, a ...interface{}) *StreamError {
	var originalErr error
	args := a

	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}

	return NewStreamError(module, fmt.Sprintf(format, args...), originalErr, false)
}

// Error implements the error interface.
// It returns the error's module, message, and the string representation of the original error.
func (e *StreamError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *StreamError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *StreamError) IsRetryable() bool {
	return e.isRetryable
}

// IsStreamError determines if the given error is of type StreamError.
func IsStreamError(err error) bool {
	if err == nil {
		return false
	}
	var se *StreamError
	return errors.As(err, &se)
}

// IsTemporary determines if an error is temporary (e.g., network error, throttled storage call).
// If it's a StreamError, its IsRetryable flag takes precedence.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var se *StreamError
	if errors.As(err, &se) {
		return se.IsRetryable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "SlowDown")
}

// ExtractErrorMessage extracts the error message string from an error.
// For StreamError, it returns the cleaner Message field.
// Otherwise, it returns the standard Error() string.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var se *StreamError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}

// ExtractStackTrace returns the stack trace captured when the error was created,
// or an empty string if the error is not a StreamError.
func ExtractStackTrace(err error) string {
	var se *StreamError
	if errors.As(err, &se) {
		return se.StackTrace
	}
	return ""
}
