package domain

import "errors"

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed or missing client input.
type ValidationError struct {
	Message string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func (e *ValidationError) Error() string {
	return e.Message
}
