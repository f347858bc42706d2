// Copyright 2026 The Backtor Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ErrorCategory classifies command errors so callers can tell bad
// input from a failed network without parsing messages.
type ErrorCategory string

const (
	// CategoryValidation: bad arguments, flags, keys or config. Fix the
	// input and retry.
	CategoryValidation ErrorCategory = "validation"

	// CategoryNotFound: the named service or socket does not exist.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryConflict: the operation collides with existing state,
	// such as an existing key file.
	CategoryConflict ErrorCategory = "conflict"

	// CategoryTransient: tor or the network failed. Retrying may help.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal: anything unexpected.
	CategoryInternal ErrorCategory = "internal"
)

// ToolError is a command error tagged with its category. The message is
// the wrapped error's; the category travels separately.
type ToolError struct {
	Category ErrorCategory
	Err      error
}

func (e *ToolError) Error() string { return e.Err.Error() }

func (e *ToolError) Unwrap() error { return e.Err }

// Validation reports bad input.
func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound reports a missing service, socket or file.
func NotFound(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// Conflict reports a collision with existing state.
func Conflict(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryConflict, Err: fmt.Errorf(format, args...)}
}

// Transient reports a failure that may succeed on retry.
func Transient(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

// Internal reports an unexpected failure.
func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}
