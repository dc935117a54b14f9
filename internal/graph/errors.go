package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes structural graph errors.
type ErrorCode string

const (
	// ErrCodeInvalidUnit indicates an empty or otherwise malformed declaration.
	ErrCodeInvalidUnit ErrorCode = "INVALID_UNIT"

	// ErrCodeDuplicateUnit indicates two declarations share an id.
	ErrCodeDuplicateUnit ErrorCode = "DUPLICATE_UNIT"

	// ErrCodeUnhashableSpec indicates a spec payload cannot be content-hashed.
	ErrCodeUnhashableSpec ErrorCode = "UNHASHABLE_SPEC"

	// ErrCodeMissingDependency indicates a requires id names no unit.
	ErrCodeMissingDependency ErrorCode = "MISSING_DEPENDENCY"

	// ErrCodeCircularDependency indicates the requires relation has a cycle.
	ErrCodeCircularDependency ErrorCode = "CIRCULAR_DEPENDENCY"

	// ErrCodeUnsatisfiedRequirement indicates a needed capability tag has no
	// providing unit.
	ErrCodeUnsatisfiedRequirement ErrorCode = "UNSATISFIED_REQUIREMENT"
)

// Error is a structural error detected while building a graph.
// Structural errors are fatal to a run and are never patched silently.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// UnitID identifies the offending unit.
	UnitID string

	// Dependency is the unresolved requires id (missing dependency only).
	Dependency string

	// Capability is the unprovided tag (unsatisfied requirement only).
	Capability string

	// Cycle is the full cycle path, first element repeated at the end:
	// ["a", "b", "c", "a"].
	Cycle []string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.UnitID != "" {
		return fmt.Sprintf("%s: %s (unit=%s)", e.Code, e.Message, e.UnitID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func codeOf(err error) ErrorCode {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// IsCycleError returns true if the error is a circular-dependency error.
// Uses errors.As to handle wrapped errors.
func IsCycleError(err error) bool {
	return codeOf(err) == ErrCodeCircularDependency
}

// IsMissingDependencyError returns true if the error is a missing-dependency error.
func IsMissingDependencyError(err error) bool {
	return codeOf(err) == ErrCodeMissingDependency
}

// IsUnsatisfiedRequirementError returns true if a needed capability has no provider.
func IsUnsatisfiedRequirementError(err error) bool {
	return codeOf(err) == ErrCodeUnsatisfiedRequirement
}

func newCycleError(path []string) *Error {
	return &Error{
		Code:    ErrCodeCircularDependency,
		Message: "circular dependency: " + strings.Join(path, " → "),
		UnitID:  path[0],
		Cycle:   path,
	}
}

func newMissingDependencyError(unitID, dep string) *Error {
	return &Error{
		Code:       ErrCodeMissingDependency,
		Message:    fmt.Sprintf("requires unknown unit %q", dep),
		UnitID:     unitID,
		Dependency: dep,
	}
}

func newUnsatisfiedRequirementError(unitID, capability string) *Error {
	return &Error{
		Code:       ErrCodeUnsatisfiedRequirement,
		Message:    fmt.Sprintf("no unit provides capability %q", capability),
		UnitID:     unitID,
		Capability: capability,
	}
}
