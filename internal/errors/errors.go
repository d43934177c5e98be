// Package errors provides structured error types for lockable resources.
// It implements error classification and wrapping.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Kind represents the category of an error.
type Kind uint8

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown Kind = iota
	// KindConfig indicates a configuration error.
	KindConfig
	// KindValidation indicates invalid input.
	KindValidation
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindConflict indicates the resource is held by someone else.
	KindConflict
	// KindState indicates a state persistence or transition error.
	KindState
	// KindEvaluation indicates a predicate could not be evaluated.
	KindEvaluation
	// KindIO indicates a file I/O error.
	KindIO
	// KindTimeout indicates a timeout error.
	KindTimeout
	// KindCanceled indicates the operation was canceled.
	KindCanceled
	// KindInternal indicates an internal error.
	KindInternal
)

// String returns a human-readable string for the error kind.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindState:
		return "state"
	case KindEvaluation:
		return "evaluation"
	case KindIO:
		return "io"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// ExitCode returns the process exit code used by the CLI for the kind.
func (k Kind) ExitCode() int {
	switch k {
	case KindConfig, KindValidation:
		return 2
	case KindNotFound:
		return 3
	case KindConflict:
		return 4
	case KindEvaluation:
		return 5
	case KindTimeout, KindCanceled:
		return 124
	default:
		return 1
	}
}

// Error is the standard error type for lockable resources.
type Error struct {
	// Kind is the category of the error.
	Kind Kind
	// Op is the operation being performed when the error occurred.
	Op string
	// Message is a human-readable error message.
	Message string
	// Err is the underlying error.
	Err error
	// Details contains additional context about the error.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches this error.
// For *Error targets without Op only Kind is compared.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Op == t.Op
}

// WithDetail adds a single detail to the error and returns the modified error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, kind Kind, op string, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// GetKind returns the Kind of an error. Context errors map to
// KindCanceled and KindTimeout; anything else that is not an *Error is
// KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindUnknown
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// Common error constructors for frequently used error types.

// Config creates a configuration error.
func Config(op, message string) *Error {
	return &Error{
		Kind:    KindConfig,
		Op:      op,
		Message: message,
	}
}

// ConfigWrap wraps an error as a configuration error.
func ConfigWrap(err error, op, message string) *Error {
	return Wrap(err, KindConfig, op, message)
}

// Validation creates a validation error.
func Validation(op, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Op:      op,
		Message: message,
	}
}

// NotFound creates a not found error.
func NotFound(op, message string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Op:      op,
		Message: message,
	}
}

// Conflict creates a conflict error.
func Conflict(op, message string) *Error {
	return &Error{
		Kind:    KindConflict,
		Op:      op,
		Message: message,
	}
}

// ConflictWrap wraps an error as a conflict error.
func ConflictWrap(err error, op, message string) *Error {
	return Wrap(err, KindConflict, op, message)
}

// State creates a state management error.
func State(op, message string) *Error {
	return &Error{
		Kind:    KindState,
		Op:      op,
		Message: message,
	}
}

// StateWrap wraps an error as a state management error.
func StateWrap(err error, op, message string) *Error {
	return Wrap(err, KindState, op, message)
}

// EvaluationWrap wraps a predicate failure.
func EvaluationWrap(err error, op, message string) *Error {
	return Wrap(err, KindEvaluation, op, message)
}

// IOWrap wraps an error as an I/O error.
func IOWrap(err error, op, message string) *Error {
	return Wrap(err, KindIO, op, message)
}

// TimeoutWrap wraps an error as a timeout error.
func TimeoutWrap(err error, op, message string) *Error {
	return Wrap(err, KindTimeout, op, message)
}
