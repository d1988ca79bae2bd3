// Package apperror defines the error taxonomy shared by the service, dispatch
// and HTTP layers. Callers match on the sentinels with errors.Is; handlers use
// errors.As to pull out the human-readable message.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrTransient       = errors.New("transient failure")
	ErrDuplicate       = errors.New("duplicate event")
)

type AppError struct {
	Err     error  // sentinel the error matches
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error, kept for logs
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
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

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated covers bad webhook signatures and access tokens the platform
// rejected.
func Unauthenticated(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
		Cause:   cause,
	}
}

// Transient marks a failure worth retrying: network errors, rate limits, 5xx.
func Transient(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrTransient,
		Message: message,
		Cause:   cause,
	}
}

// Duplicate reports that a comment already has a reply log entry.
func Duplicate(commentID string) *AppError {
	return &AppError{
		Err:     ErrDuplicate,
		Message: fmt.Sprintf("comment %s already processed", commentID),
	}
}
