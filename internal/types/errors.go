package types

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks across package boundaries.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotFound          = errors.New("not found")
)

// ValidationError reports malformed input. It is always returned before any write.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidTransitionError reports a disallowed state change.
type InvalidTransitionError struct {
	Entity EntityType
	ID     string
	From   string
	To     string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid %s transition for %s: %s -> %s", e.Entity, e.ID, e.From, e.To)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

// Is makes errors.Is(err, ErrInvalidTransition) match.
func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// NotFoundError reports an operation on a missing report or CAPA.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// DuplicateSignatureError is raised when an insert loses the race for an open
// failure signature. The deduplicator retries; callers only see it once the
// retries run out.
type DuplicateSignatureError struct {
	Signature string
	// ExistingID is the open report holding the signature, when it could be read
	ExistingID string
}

func (e *DuplicateSignatureError) Error() string {
	if e.ExistingID != "" {
		return fmt.Sprintf("open report %s already exists for signature %s", e.ExistingID, e.Signature)
	}
	return fmt.Sprintf("open report already exists for signature %s", e.Signature)
}
