package resource

import (
	"errors"
	"fmt"
)

// Domain errors for resource operations.
var (
	// ErrMatchEvaluation indicates a predicate could not be evaluated to a boolean.
	ErrMatchEvaluation = errors.New("match evaluation failed")

	// ErrAlreadyHeld indicates the resource is already reserved or locked by someone else.
	ErrAlreadyHeld = errors.New("resource is already held")

	// ErrNotHeld indicates the caller does not hold the resource.
	ErrNotHeld = errors.New("resource is not held by caller")

	// ErrNoRecycler indicates no pool is attached to recycle the resource.
	ErrNoRecycler = errors.New("no recycler attached to resource")

	// ErrRecycleInProgress indicates a recycle was requested while one is already unwinding.
	ErrRecycleInProgress = errors.New("recycle already in progress")

	// ErrInvalidTransition indicates the ownership machine defines no transition for an event.
	ErrInvalidTransition = errors.New("invalid ownership transition")

	// ErrStateMismatch indicates the ownership machine disagrees with the ownership fields.
	ErrStateMismatch = errors.New("ownership state mismatch")
)

// MatchEvaluationError carries the cause of a failed predicate evaluation.
type MatchEvaluationError struct {
	Resource string
	Script   string
	Err      error
}

// Error implements the error interface.
func (e *MatchEvaluationError) Error() string {
	return fmt.Sprintf("cannot get boolean result out of expression %q for resource %s: %v",
		e.Script, e.Resource, e.Err)
}

// Unwrap returns the underlying cause.
func (e *MatchEvaluationError) Unwrap() []error {
	return []error{ErrMatchEvaluation, e.Err}
}

// HoldError describes a precondition violation on ownership.
type HoldError struct {
	Resource string
	Holder   string
	Cause    string
	kind     error
}

// Error implements the error interface.
func (e *HoldError) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("%s: %s (requested by %s)", e.kind, e.Cause, e.Holder)
	}
	return fmt.Sprintf("%s: [%s] (requested by %s)", e.kind, e.Resource, e.Holder)
}

// Unwrap returns ErrAlreadyHeld or ErrNotHeld for errors.Is compatibility.
func (e *HoldError) Unwrap() error {
	return e.kind
}
