// Package errors defines the error taxonomy shared by the pipeline and its
// front ends. Every error is local to one image: batch operations record it on
// that image's result and carry on with the rest.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// ErrorTypeInput covers missing, unreadable or unsupported image files.
	ErrorTypeInput ErrorType = "input"
	// ErrorTypeDegenerate covers image data that cannot produce a result,
	// such as a section whose histogram has no valid Otsu split.
	ErrorTypeDegenerate ErrorType = "degenerate"
	// ErrorTypeNumeric covers arithmetic that had to be guarded.
	ErrorTypeNumeric    ErrorType = "numeric"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeCanceled   ErrorType = "canceled"
	ErrorTypeInternal   ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	File    string    `json:"file,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithFile returns a copy of e tagged with the file it concerns.
func (e *AppError) WithFile(file string) *AppError {
	c := *e
	c.File = file
	return &c
}

// StatusCode maps the error type to an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Type {
	case ErrorTypeInput, ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeDegenerate, ErrorTypeNumeric:
		return http.StatusUnprocessableEntity
	case ErrorTypeCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// NewInputError creates a new input error
func NewInputError(message string, cause error) *AppError {
	return &AppError{Type: ErrorTypeInput, Message: message, Cause: cause}
}

// NewDegenerateError creates a new degenerate-data error
func NewDegenerateError(message string, cause error) *AppError {
	return &AppError{Type: ErrorTypeDegenerate, Message: message, Cause: cause}
}

// NewNumericError creates a new numeric-guard error
func NewNumericError(message string, cause error) *AppError {
	return &AppError{Type: ErrorTypeNumeric, Message: message, Cause: cause}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{Type: ErrorTypeValidation, Message: message, Cause: cause}
}

// NewCanceledError creates a new cancellation error
func NewCanceledError(message string, cause error) *AppError {
	return &AppError{Type: ErrorTypeCanceled, Message: message, Cause: cause}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{Type: ErrorTypeInternal, Message: message, Cause: cause}
}

// IsType checks if the error, or any error it wraps, is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode()
	}
	return http.StatusInternalServerError
}
