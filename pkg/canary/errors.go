package canary

import (
	"errors"
	"fmt"
)

// Error kinds that can be checked with errors.Is().
var (
	// ErrValidation is returned when an argument violates a precondition.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned for unknown release or version identifiers.
	ErrNotFound = errors.New("not found")

	// ErrState is returned when a transition is illegal in the current state.
	ErrState = errors.New("illegal state transition")

	// ErrMissingInput is returned when aggregation receives no categories.
	ErrMissingInput = errors.New("missing input")

	// ErrInsufficientData is returned when promotion is attempted while the
	// canary is still collecting samples and no override was given.
	ErrInsufficientData = errors.New("insufficient data")
)

// ValidationError reports which precondition an argument violated.
type ValidationError struct {
	// Field is the argument that failed validation (e.g., "percent").
	Field string

	// Message describes the violated precondition.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is implements error matching for errors.Is().
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError is returned when a release or version does not exist.
type NotFoundError struct {
	// Kind is the entity type ("release", "version").
	Kind string

	// ID is the identifier that was looked up.
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is implements error matching for errors.Is().
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// StateError is returned when an operation is not permitted in the release's state.
type StateError struct {
	ReleaseID string
	Operation string
	State     State
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s release %q in state %s", e.Operation, e.ReleaseID, e.State)
}

// Is implements error matching for errors.Is().
func (e *StateError) Is(target error) bool {
	return target == ErrState
}

// MissingInputError is returned when no category scores are present.
type MissingInputError struct {
	// Known lists the categories the aggregator is configured for.
	Known []string
}

// Error implements the error interface.
func (e *MissingInputError) Error() string {
	return fmt.Sprintf("no category scores present (expected any of %v)", e.Known)
}

// Is implements error matching for errors.Is().
func (e *MissingInputError) Is(target error) bool {
	return target == ErrMissingInput
}

// InsufficientDataError is returned when a promotion is requested before the
// canary has collected the minimum number of samples.
type InsufficientDataError struct {
	ReleaseID  string
	Samples    int64
	MinSamples int64
}

// Error implements the error interface.
func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("release %q canary has %d/%d samples; use force to promote anyway",
		e.ReleaseID, e.Samples, e.MinSamples)
}

// Is implements error matching for errors.Is().
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

func validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
