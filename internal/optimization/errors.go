package optimization

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Every *Error produced by this package and the solver
// subpackages wraps exactly one of them, so callers can branch with errors.Is.
var (
	// ErrConfig marks invalid hyperparameters or problem data detected at
	// construction time.
	ErrConfig = errors.New("config error")
	// ErrInvalidCandidate marks a permutation that is not a valid
	// arrangement of the identifiers 1..N.
	ErrInvalidCandidate = errors.New("invalid candidate")
)

// Error represents an optimization error with context
// that can be wrapped with additional information.
type Error struct {
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	if e.Component != "" && e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	} else if e.Component != "" {
		prefix = e.Component
	} else if e.Op != "" {
		prefix = e.Op
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// NewConfigError creates an ErrConfig-kind error raised by component while
// validating its configuration.
func NewConfigError(component, format string, args ...interface{}) *Error {
	return &Error{
		Message:   fmt.Sprintf(format, args...),
		Op:        "configure",
		Component: component,
		Err:       ErrConfig,
	}
}

// NewInvalidCandidateError creates an ErrInvalidCandidate-kind error.
func NewInvalidCandidateError(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Op:      "validate",
		Err:     ErrInvalidCandidate,
	}
}

// WrapError wraps an existing error with additional context.
// If err is nil, WrapError returns nil.
func WrapError(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Message: message,
		Err:     err,
	}
}

// IsOptimizationError checks if an error is of type Error.
// If the error is an optimization error, it returns the error and true.
// Otherwise, it returns nil and false.
func IsOptimizationError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsConfigError reports whether err is an ErrConfig-kind error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}

// IsInvalidCandidate reports whether err is an ErrInvalidCandidate-kind error.
func IsInvalidCandidate(err error) bool {
	return errors.Is(err, ErrInvalidCandidate)
}
