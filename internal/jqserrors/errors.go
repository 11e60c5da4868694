// Package jqserrors is the scheduler's error taxonomy. Every sentinel
// here can be matched with errors.Is/errors.As by callers that need to
// branch on failure kind (ledger.IsResourceExceeded/IsNegative wrap
// exactly that); everything
// else is just fmt.Errorf("%w", ...) wrapping of the underlying os/exec
// error rather than a dedicated error-hierarchy type.
package jqserrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a job directory or its metadata is missing.
	ErrNotFound = errors.New("not found")

	// ErrResourceExceeded is returned by Ledger.ApplyDelta when applying a
	// delta would push usage above limits on any resource.
	ErrResourceExceeded = errors.New("resource limit exceeded")

	// ErrNegative is returned by Ledger.ApplyDelta when applying a delta
	// would push usage below zero on any resource.
	ErrNegative = errors.New("resource usage would go negative")
)

// LaunchFailed wraps the exit code returned by a failed Supervisor.Launch
// call.
type LaunchFailed struct {
	Code int
	Err  error
}

func (e *LaunchFailed) Error() string {
	return fmt.Sprintf("supervisor launch failed (exit %d): %v", e.Code, e.Err)
}

func (e *LaunchFailed) Unwrap() error { return e.Err }

// NotFoundf formats ErrNotFound with context, preserving errors.Is(err, ErrNotFound).
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}
