package amonheights

import (
	"fmt"
	"net/http"
)

// API error codes as constants
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeRateLimited        = "rate_limited"
	ErrorCodeUnauthorized       = "unauthorized"
	ErrorCodeSessionExpired     = "session_expired"
	ErrorCodeNotFound           = "not_found"
	ErrorCodeServerError        = "server_error"
)

// APIError is the error shape every admin route resolves to at its boundary.
// No auth-layer error propagates as an unhandled fault; they all become a
// structured JSON response with this status.
type APIError struct {
	Code    string // machine-readable error code
	Message string // human-readable message
	Status  int    // HTTP status code
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError creates a new API error
func NewAPIError(code, message string, status int) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// Common API errors as reusable constructors
var (
	// ErrInvalidRequest indicates malformed or missing input fields
	ErrInvalidRequest = func(msg string) *APIError {
		return NewAPIError(ErrorCodeInvalidRequest, msg, http.StatusBadRequest)
	}

	// ErrInvalidCredentials indicates a bad username/password pair
	ErrInvalidCredentials = func() *APIError {
		return NewAPIError(ErrorCodeInvalidCredentials, "Invalid credentials", http.StatusUnauthorized)
	}

	// ErrRateLimited indicates the identity is locked out or over the request limit
	ErrRateLimited = func(msg string) *APIError {
		return NewAPIError(ErrorCodeRateLimited, msg, http.StatusTooManyRequests)
	}

	// ErrUnauthorized indicates no valid session accompanies the request
	ErrUnauthorized = func() *APIError {
		return NewAPIError(ErrorCodeUnauthorized, "Unauthorized", http.StatusUnauthorized)
	}

	// ErrSessionExpired indicates the session outlived the expiry window and
	// has been destroyed
	ErrSessionExpired = func() *APIError {
		return NewAPIError(ErrorCodeSessionExpired, "Session expired, please log in again", http.StatusUnauthorized)
	}

	// ErrNotFound indicates the addressed resource does not exist
	ErrNotFound = func(msg string) *APIError {
		return NewAPIError(ErrorCodeNotFound, msg, http.StatusNotFound)
	}

	// ErrServerError indicates an internal failure
	ErrServerError = func(msg string) *APIError {
		return NewAPIError(ErrorCodeServerError, msg, http.StatusInternalServerError)
	}
)
