package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrValidation signals bad caller input, rejected before the pipeline runs.
	ErrValidation = errors.New("validation failed")
	// ErrProvider signals an embedding, vector index or language model failure.
	// Transient; callers may retry. Never converted into an empty result.
	ErrProvider = errors.New("provider error")
	// ErrDegenerateInput signals zero-length content or a zero-norm vector.
	ErrDegenerateInput = errors.New("degenerate input")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
)

// ValidationError wraps ErrValidation with the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a validation error for a single field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
