package models

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable is returned when the image classifier or the severity
// model is missing, unreachable or answers outside its contract.
var ErrModelUnavailable = errors.New("model unavailable")

// ValidationError reports a malformed or missing input field. It is raised at
// the service boundary before any model is consulted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a *ValidationError with a formatted reason.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
