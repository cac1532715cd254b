/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps these onto HTTP status codes; nothing in the engine
  swallows a failure into a silent zero or empty result.

ERROR CATEGORIES:
  1. Validation errors - bad volumes, amounts, date ranges, percentages
  2. Not-found errors  - missing concept/schedule/estimation/activity ids
  3. Permission errors - actor lacks assignment to the owning construction
  4. Computation results - expected edge cases in otherwise valid data
     (zero-duration activities, empty schedules) reported as structured
     invalid results, not raw failures

USAGE:
  if engine.IsValidation(err) { ... 400 }
  if engine.IsNotFound(err)   { ... 404 }
  if engine.IsPermission(err) { ... 403 }
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all input-validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermission is returned when the actor is not assigned to the
	// construction that owns the target record.
	ErrPermission = errors.New("permission denied")

	// ErrConflict is returned on uniqueness violations, e.g. a second
	// detail for the same (estimation, concept) pair.
	ErrConflict = errors.New("conflict")

	// ErrComputation marks expected edge cases in otherwise valid data,
	// such as computing a chain over a schedule with no activities.
	ErrComputation = errors.New("computation not possible")
)

// =============================================================================
// STRUCTURED ERRORS - Carry field-level context
// =============================================================================

// ValidationError reports which field failed and why. Surfaced to the caller
// with field-level detail; never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError identifies the missing entity without leaking anything else.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// PermissionError names the construction the actor is not assigned to.
type PermissionError struct {
	Actor        ActorID
	Construction ConstructionID
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("actor %q is not assigned to construction %q", e.Actor, e.Construction)
}

func (e *PermissionError) Unwrap() error { return ErrPermission }

// ComputationError wraps an expected edge case with its reason.
type ComputationError struct {
	Reason string
}

func (e *ComputationError) Error() string { return e.Reason }

func (e *ComputationError) Unwrap() error { return ErrComputation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsValidation(err error) bool  { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool    { return errors.Is(err, ErrNotFound) }
func IsPermission(err error) bool  { return errors.Is(err, ErrPermission) }
func IsConflict(err error) bool    { return errors.Is(err, ErrConflict) }
func IsComputation(err error) bool { return errors.Is(err, ErrComputation) }

// IsClientError reports whether the failure is attributable to the caller's
// input rather than the system.
func IsClientError(err error) bool {
	return IsValidation(err) || IsNotFound(err) || IsPermission(err) ||
		IsConflict(err) || IsComputation(err)
}
