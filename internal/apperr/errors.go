// errors.go - Error taxonomy shared by the client, the workflow and the views
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthError means the session is missing, expired or was rejected.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Message, e.Err)
	}
	return "auth: " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError is a non-2xx response (or a 2xx with status "error") from the backend.
type APIError struct {
	StatusCode int
	Endpoint   string
	RawBody    string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s returned %d", e.Endpoint, e.StatusCode)
}

// NetworkError means no response was received at all.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: no response: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError is raised before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// Constructors

// NewAuthError creates an AuthError with an optional cause
func NewAuthError(message string, cause error) *AuthError {
	return &AuthError{Message: message, Err: cause}
}

// NewValidationError creates a ValidationError for a specific field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsAuth reports whether err is an AuthError or a 401 from the backend.
func IsAuth(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsConflict reports whether the backend refused because work is already running.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// UserMessage turns any error into the inline message shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		authErr  *AuthError
		apiErr   *APIError
		netErr   *NetworkError
		validErr *ValidationError
	)

	switch {
	case errors.As(err, &validErr):
		return validErr.Message
	case errors.As(err, &authErr):
		return "Sesi berakhir, silakan login kembali: " + authErr.Message
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusUnauthorized {
			return "Sesi berakhir, silakan login kembali"
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fmt.Sprintf("Server mengembalikan status %d", apiErr.StatusCode)
	case errors.As(err, &netErr):
		return "Tidak dapat terhubung ke server"
	default:
		return err.Error()
	}
}
