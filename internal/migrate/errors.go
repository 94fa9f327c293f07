package migrate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyCatalog is returned when LATEST is requested but the source
	// catalog has no done changes.
	ErrEmptyCatalog = errors.New("no done changes available in the source catalog")

	// ErrBusy is returned when another invocation holds the migration lock.
	ErrBusy = errors.New("another migration is in progress")

	// ErrDatabaseNotFound is returned by a RevisionStore when the database
	// itself is absent on the platform, as opposed to present but never
	// migrated.
	ErrDatabaseNotFound = errors.New("database not found")
)

// ConfigError is a configuration or resolution failure: unresolved alias,
// missing default source, missing credentials. No state has changed.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// Configf builds a ConfigError.
func Configf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// UnknownTargetError reports a --to id that is not a done change in the
// source catalog.
type UnknownTargetError struct {
	ID int
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("target change #%d is not a done change in the source catalog", e.ID)
}

// CheckResult is the per-item outcome of a validation pass.
type CheckResult struct {
	ID         int
	OK         bool
	Diagnostic string
}

// ValidationError rejects a whole batch: it enumerates every failing change.
// Nothing has been executed and no marker was written.
type ValidationError struct {
	Failures []CheckResult
}

func (e *ValidationError) Error() string {
	ids := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = fmt.Sprintf("#%d", f.ID)
	}
	return fmt.Sprintf("validation failed for %d change(s): %s", len(e.Failures), strings.Join(ids, ", "))
}

// ExecutionError reports a failure while applying a plan. Applied holds the
// ids checkpointed before the failure; Checkpoint is the marker that stands.
type ExecutionError struct {
	ID         int
	Diagnostic string
	Applied    []int
	Checkpoint *RevisionMarker
	Err        error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("failed to apply change #%d", e.ID)
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	}
	if e.Checkpoint != nil {
		msg += fmt.Sprintf(" (marker checkpointed at #%d)", e.Checkpoint.Issue)
	}
	return msg
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// PlatformError wraps a transport or API failure from any gateway call.
type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform request %s failed: %v", e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// ExitCode maps an error to the CLI exit code contract: 0 success, 1
// validation or planning failure, 2 partial execution failure, 3
// configuration or resolution failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var (
		verr *ValidationError
		uerr *UnknownTargetError
		eerr *ExecutionError
		cerr *ConfigError
	)
	switch {
	case errors.As(err, &eerr):
		return 2
	case errors.As(err, &verr), errors.As(err, &uerr), errors.Is(err, ErrEmptyCatalog):
		return 1
	case errors.As(err, &cerr), errors.Is(err, ErrBusy):
		return 3
	default:
		return 1
	}
}
