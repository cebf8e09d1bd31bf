package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeEncoding      ErrorCode = "ENCODING_ERROR"
	ErrCodeRemoteAPI     ErrorCode = "REMOTE_API_ERROR"
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// RemoteAPIError is a non-2xx response from the remote repository or CDN
// API. It is fatal to the current publish attempt and is never retried
// automatically.
type RemoteAPIError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("remote API %s returned %d: %s", e.Endpoint, e.Status, e.Body)
}

// NewRemoteAPIError creates an error for a failed remote API call.
func NewRemoteAPIError(endpoint string, status int, body string) *RemoteAPIError {
	return &RemoteAPIError{Endpoint: endpoint, Status: status, Body: body}
}

// IsRemoteAPIError extracts a RemoteAPIError from the error chain.
func IsRemoteAPIError(err error) (*RemoteAPIError, bool) {
	var apiErr *RemoteAPIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// Common error constructors
func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

// NewConfigurationError reports a missing or invalid piece of publish
// configuration (repository coordinates, credentials, encoding key).
func NewConfigurationError(message string) *AppError {
	return NewAppError(ErrCodeConfiguration, message, http.StatusInternalServerError)
}

// NewEncodingError reports a failure in whitelist payload encoding.
func NewEncodingError(message string) *AppError {
	return NewAppError(ErrCodeEncoding, message, http.StatusInternalServerError)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
