package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeNotConfigured ErrorType = "not_configured"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeConnection    ErrorType = "connection"
	ErrorTypeServer        ErrorType = "server"
	ErrorTypePersistence   ErrorType = "persistence"
	ErrorTypePrecondition  ErrorType = "precondition"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type           ErrorType `json:"type"`
	Message        string    `json:"message"`
	Details        string    `json:"details,omitempty"`
	StatusCode     int       `json:"status_code"`
	UpstreamStatus int       `json:"upstream_status,omitempty"` // detection server status, server errors only
	Cause          error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.UpstreamStatus != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.UpstreamStatus)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s (caused by: %v)", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewNotConfiguredError reports a missing or invalid detection server address
func NewNotConfiguredError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNotConfigured,
		Message:    message,
		StatusCode: http.StatusPreconditionFailed,
		Cause:      cause,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    message,
		StatusCode: http.StatusGatewayTimeout,
		Cause:      cause,
	}
}

// NewConnectionError creates a new transport-level error
func NewConnectionError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeConnection,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

// NewServerError reports a non-2xx or unparseable detection server response.
// body is kept as Details so callers can show it.
func NewServerError(message string, status int, body string, cause error) *AppError {
	return &AppError{
		Type:           ErrorTypeServer,
		Message:        message,
		Details:        body,
		StatusCode:     http.StatusBadGateway,
		UpstreamStatus: status,
		Cause:          cause,
	}
}

// NewPersistenceError creates a new local storage error
func NewPersistenceError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypePersistence,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewPreconditionError creates a new precondition error
func NewPreconditionError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypePrecondition,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Cause:      cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// As returns the first AppError in err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if appErr, ok := As(err); ok {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
