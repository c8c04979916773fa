// Package errors provides custom error types and error handling utilities.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes.
const (
	// Input errors.
	CodeSchema     = "SCHEMA_ERROR"
	CodeEmptyInput = "EMPTY_INPUT"
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"

	// Estimator state errors.
	CodeNotFitted     = "NOT_FITTED"
	CodeAlreadyFitted = "ALREADY_FITTED"

	// Runtime errors.
	CodeInternal    = "INTERNAL_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout     = "TIMEOUT"
	CodeStorage     = "STORAGE_ERROR"
)

// AppError represents an application error with code and details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Convenience constructors.

// SchemaError reports malformed or mismatched input tables.
func SchemaError(message string) *AppError {
	return New(CodeSchema, message)
}

// EmptyInputError reports a stage that received no documents.
func EmptyInputError(message string) *AppError {
	return New(CodeEmptyInput, message)
}

// ValidationError creates a validation error.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// NotFoundError creates a not found error.
func NotFoundError(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// NotFittedError is returned when an estimator is used before fitting.
func NotFittedError(component string) *AppError {
	return New(CodeNotFitted, fmt.Sprintf("%s is not fitted", component))
}

// AlreadyFittedError is returned when a fitted estimator is fitted again.
func AlreadyFittedError(component string) *AppError {
	return New(CodeAlreadyFitted, fmt.Sprintf("%s is already fitted", component))
}

// InternalError creates an internal error.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// StorageError creates a persistence error.
func StorageError(message string, err error) *AppError {
	return Wrap(CodeStorage, message, err)
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsSchema checks if error is a schema error.
func IsSchema(err error) bool {
	return HasCode(err, CodeSchema)
}

// IsEmptyInput checks if error is an empty input error.
func IsEmptyInput(err error) bool {
	return HasCode(err, CodeEmptyInput)
}

// IsNotFound checks if error is a not found error.
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsValidation checks if error is a validation error.
func IsValidation(err error) bool {
	return HasCode(err, CodeValidation)
}

// IsNotFitted checks if error is a not fitted error.
func IsNotFitted(err error) bool {
	return HasCode(err, CodeNotFitted)
}

// IsAlreadyFitted checks if error is an already fitted error.
func IsAlreadyFitted(err error) bool {
	return HasCode(err, CodeAlreadyFitted)
}
