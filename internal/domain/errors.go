// File: internal/domain/errors.go
package domain

import "fmt"

// Validation codes shared with the imaging package.
const (
	CodeRequired     = "REQUIRED"
	CodeInvalidValue = "INVALID_VALUE"
	CodeOutOfRange   = "OUT_OF_RANGE"
	CodeTooLong      = "TOO_LONG"
	CodeTooMany      = "TOO_MANY"
	CodeBadJSON      = "BAD_REQUEST_BODY"
)

// ValidationError rejects a request before any expensive work starts.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

func NewValidationError(field, code, msg string) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: msg}
}
