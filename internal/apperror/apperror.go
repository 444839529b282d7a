// Package apperror defines the domain errors shared by the service and handler layers.
//
// Services return these; handlers translate them into HTTP responses. Nothing in
// this package knows about HTTP.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrForbidden  = errors.New("forbidden")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Required is shorthand for the "field is required" validation failure
// every action route reports for an absent JSON field.
func Required(field string) *AppError {
	return ValidationFailed(field, fmt.Sprintf("%s is required", field))
}

// Forbidden returns an AppError indicating the operation would reach outside
// what the caller is allowed to touch (e.g. a path escaping the workspace).
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}
