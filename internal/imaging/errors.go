// File: internal/imaging/errors.go
package imaging

import "fmt"

// Invariant names the image property that a ValidationError refers to.
type Invariant string

const (
	InvariantFormat     Invariant = "format"
	InvariantByteSize   Invariant = "byte_size"
	InvariantDimensions Invariant = "dimensions"
)

// ValidationError reports a decoded or declared property outside the accepted
// range. No Payload exists when it is returned.
type ValidationError struct {
	Invariant Invariant
	Message   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("image %s invalid: %s", e.Invariant, e.Message)
}

// DecodeError reports bytes that claim a supported format but cannot be read.
type DecodeError struct {
	Format  Format
	Message string
	Cause   error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode %s: %s (caused by: %v)", e.formatName(), e.Message, e.Cause)
	}
	return fmt.Sprintf("decode %s: %s", e.formatName(), e.Message)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

func (e *DecodeError) formatName() string {
	if e.Format == "" {
		return "image"
	}
	return string(e.Format)
}

// UnsupportedContainerError is returned for uploads that are not images at
// all, e.g. a PDF sent to an image endpoint.
type UnsupportedContainerError struct {
	Detected string
}

func (e *UnsupportedContainerError) Error() string {
	return fmt.Sprintf("unsupported container %q: expected JPEG, PNG or DICOM", e.Detected)
}

func newValidationError(inv Invariant, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Invariant: inv, Message: fmt.Sprintf(format, args...)}
}
