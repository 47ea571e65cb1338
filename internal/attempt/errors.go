// Package attempt orchestrates the lifecycle of task attempts: worktree
// provisioning, executor spawning, stop escalation, and the monitor loop
// that reconciles live children with persisted execution state.
package attempt

import (
	"errors"
	"fmt"
)

// ErrValidation marks requests rejected before any mutation happened.
var ErrValidation = errors.New("validation failed")

// ValidationError describes a rejected request. Conflict distinguishes a
// running-execution conflict (HTTP 409) from plain bad input (HTTP 400).
type ValidationError struct {
	Reason   string
	Conflict bool
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a plain validation error.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NewConflictError builds a validation error for a running-execution conflict.
func NewConflictError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...), Conflict: true}
}
