package engine

import (
	"errors"
	"fmt"
)

// FailureKind categorizes why a unit ended in the failed outcome.
type FailureKind string

const (
	// FailureExecutor indicates the executor returned an error (or panicked).
	FailureExecutor FailureKind = "executor-error"

	// FailureTimeout indicates the per-unit timeout elapsed. Never cached.
	FailureTimeout FailureKind = "timeout"

	// FailureBlocked indicates a direct dependency failed, so the unit was
	// never planned or executed.
	FailureBlocked FailureKind = "blocked-by-dependency"

	// FailureCancelled indicates the run context was cancelled before the
	// unit finished. Never cached.
	FailureCancelled FailureKind = "cancelled"

	// FailureCached indicates a cached failure was replayed.
	FailureCached FailureKind = "cached-failure"
)

// UnitError describes a unit failure.
type UnitError struct {
	// Kind identifies the failure category.
	Kind FailureKind

	// UnitID identifies the failed unit.
	UnitID string

	// Dependency names the failed dependency (blocked-by-dependency only).
	Dependency string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *UnitError) Error() string {
	switch {
	case e.Dependency != "":
		return fmt.Sprintf("%s: dependency %q failed (unit=%s)", e.Kind, e.Dependency, e.UnitID)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v (unit=%s)", e.Kind, e.Err, e.UnitID)
	default:
		return fmt.Sprintf("%s (unit=%s)", e.Kind, e.UnitID)
	}
}

// Unwrap returns the underlying cause.
func (e *UnitError) Unwrap() error {
	return e.Err
}

func kindOf(err error) FailureKind {
	var ue *UnitError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return ""
}

// IsTimeout returns true if the unit failed on its timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	return kindOf(err) == FailureTimeout
}

// IsBlocked returns true if the unit was blocked by a failed dependency.
func IsBlocked(err error) bool {
	return kindOf(err) == FailureBlocked
}

// IsCancelled returns true if the unit was cancelled with the run.
func IsCancelled(err error) bool {
	return kindOf(err) == FailureCancelled
}

// cacheable reports whether a failure may be written to the cache.
// Timeouts and cancellations describe the environment, not the input.
func cacheable(kind FailureKind) bool {
	return kind == FailureExecutor
}
