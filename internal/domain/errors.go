package domain

import (
	"errors"
	"fmt"
)

// Domain errors raised while running or storing battles.
var (
	// ErrEmptyRoster indicates a battle was requested with no candidates.
	ErrEmptyRoster = errors.New("candidate roster is empty")
	// ErrEmptyPrompt indicates a battle was requested without a prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrBattleNotFound indicates a stored battle does not exist.
	ErrBattleNotFound = errors.New("battle not found")
	// ErrUnknownCandidate indicates a key that is not on the roster.
	ErrUnknownCandidate = errors.New("unknown candidate")
	// ErrDuplicateCandidate indicates a roster that lists the same key twice.
	ErrDuplicateCandidate = errors.New("duplicate candidate")
	// ErrInvalidImage covers malformed data URLs and non-image attachments.
	ErrInvalidImage = errors.New("invalid image")
	// ErrInvalidConfiguration indicates invalid or incomplete configuration.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ValidationError collects every problem found in one entity, such as a
// battle request or a roster, so they can be reported together.
type ValidationError struct {
	Entity string
	Errors []string
}

// Error lists the collected problems for the entity.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError appends one problem.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors reports whether any problem was recorded.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError starts an empty ValidationError for entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{Entity: entity, Errors: []string{}}
}
