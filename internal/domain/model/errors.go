package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAvailable is the normal negative result of a retrieval: nothing stored or expired.
	ErrNotAvailable = errors.New("context not available")

	// ErrRender means text synthesis produced nothing usable.
	ErrRender = errors.New("render produced empty text")
)

// ValidationError rejects malformed ingestion input. The store is left untouched.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// TransportError wraps a failed call between the polling client and the relay.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
