// File: internal/services/scheduler/errors.go
package scheduler

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrTypeBusy       ErrorType = "BUSY"
	ErrTypeGeneration ErrorType = "GENERATION"
	ErrTypeTimeout    ErrorType = "TIMEOUT"
	ErrTypeCancelled  ErrorType = "CANCELLED"
	ErrTypeClosed     ErrorType = "CLOSED"
)

// Error is returned by Submit and reported by Stream.Err.
type Error struct {
	Type      ErrorType
	Operation string
	JobID     string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("scheduler %s error in %s: %s (caused by: %v)", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("scheduler %s error in %s: %s", e.Type, e.Operation, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsType reports whether err is a scheduler error of type t.
func IsType(err error, t ErrorType) bool {
	var se *Error
	return errors.As(err, &se) && se.Type == t
}

var (
	errIdleTimeout  = errors.New("no output within the inactivity timeout")
	errShuttingDown = errors.New("scheduler is shutting down")
)

func newBusyError(depth int) *Error {
	return &Error{
		Type:      ErrTypeBusy,
		Operation: "submit",
		Message:   fmt.Sprintf("generation queue is full (%d waiting)", depth),
	}
}

func newClosedError(op string) *Error {
	return &Error{Type: ErrTypeClosed, Operation: op, Message: "scheduler is shut down"}
}

func newGenerationError(jobID string, cause error) *Error {
	return &Error{Type: ErrTypeGeneration, Operation: "generate", JobID: jobID, Message: "model call failed", Cause: cause}
}

func newLoadError(jobID string, cause error) *Error {
	return &Error{Type: ErrTypeGeneration, Operation: "load", JobID: jobID, Message: "model failed to load", Cause: cause}
}
