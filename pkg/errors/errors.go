package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates a conflict with existing data
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeUnauthorized indicates unauthorized access
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeTransient indicates a network or timeout-like failure worth retrying
	ErrorTypeTransient ErrorType = "TRANSIENT"

	// ErrorTypeCircuitOpen indicates a call rejected by an open circuit breaker
	ErrorTypeCircuitOpen ErrorType = "CIRCUIT_OPEN"

	// ErrorTypeProgramming indicates a fault in our own code (nil dereference, bad type assertion)
	ErrorTypeProgramming ErrorType = "PROGRAMMING"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// NewTransientError creates a new transient error
func NewTransientError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeTransient,
		Message: message,
		Err:     err,
	}
}

// NewCircuitOpenError creates an error for a call rejected by an open breaker
func NewCircuitOpenError(dependency string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeCircuitOpen,
		Message: fmt.Sprintf("circuit open for %s", dependency),
		Err:     err,
	}
}

// NewProgrammingError creates a new programming error
func NewProgrammingError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeProgramming,
		Message: message,
		Err:     err,
	}
}

// Kind is the resilience-level classification of an error.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindAuth        Kind = "auth"
	KindNotFound    Kind = "not_found"
	KindTransient   Kind = "transient"
	KindCircuitOpen Kind = "circuit_open"
	KindProgramming Kind = "programming"
)

// Classify maps any error onto the taxonomy. Unrecognized errors are treated
// as transient.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		switch appErr.Type {
		case ErrorTypeValidation, ErrorTypeConflict:
			return KindValidation
		case ErrorTypeUnauthorized:
			return KindAuth
		case ErrorTypeNotFound:
			return KindNotFound
		case ErrorTypeCircuitOpen:
			return KindCircuitOpen
		case ErrorTypeProgramming:
			return KindProgramming
		default:
			return KindTransient
		}
	}

	// Deadlines, cancellations and network faults all land here.
	return KindTransient
}

// IsRetryable reports whether a retry could plausibly succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch Classify(err) {
	case KindValidation, KindAuth, KindNotFound, KindCircuitOpen, KindProgramming:
		return false
	default:
		return true
	}
}

// IsType reports whether err wraps an AppError of the given type
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}
