// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/harga-pangan/console/internal/apperr"
	"github.com/labstack/echo/v4"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field, message string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: field,
	}
}

// NewUnauthorizedError creates a 401 error
func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Status:  http.StatusUnauthorized,
		Code:    "UNAUTHORIZED",
		Message: message,
	}
}

// NewForbiddenError creates a 403 error
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Status:  http.StatusForbidden,
		Code:    "FORBIDDEN",
		Message: message,
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewConfirmationRequiredError creates a 428 error for actions the user
// has to confirm first
func NewConfirmationRequiredError(message string) *APIError {
	return &APIError{
		Status:  http.StatusPreconditionRequired,
		Code:    "CONFIRMATION_REQUIRED",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// FromDomain maps the console's error taxonomy onto an HTTP error.
func FromDomain(err error) *APIError {
	var (
		apiErr     *APIError
		validErr   *apperr.ValidationError
		authErr    *apperr.AuthError
		backendErr *apperr.APIError
		netErr     *apperr.NetworkError
	)

	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &validErr):
		return NewValidationError(validErr.Field, validErr.Message)
	case errors.As(err, &authErr):
		return NewUnauthorizedError(apperr.UserMessage(err))
	case errors.As(err, &backendErr):
		switch backendErr.StatusCode {
		case http.StatusUnauthorized:
			return NewUnauthorizedError(apperr.UserMessage(err))
		case http.StatusNotFound, http.StatusConflict, http.StatusBadRequest:
			return &APIError{
				Status:  backendErr.StatusCode,
				Code:    "BACKEND_ERROR",
				Message: apperr.UserMessage(err),
				Details: backendErr.Endpoint,
			}
		}
		return &APIError{
			Status:  http.StatusBadGateway,
			Code:    "BACKEND_ERROR",
			Message: apperr.UserMessage(err),
			Details: backendErr.Endpoint,
		}
	case errors.As(err, &netErr):
		return NewServiceUnavailableError(apperr.UserMessage(err))
	}
	return nil
}

// ErrorHandler is the echo error handler.
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	apiErr := FromDomain(err)
	if apiErr == nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			apiErr = &APIError{
				Status:  httpErr.Code,
				Code:    "HTTP_ERROR",
				Message: fmt.Sprintf("%v", httpErr.Message),
			}
		} else {
			apiErr = &APIError{
				Status:  http.StatusInternalServerError,
				Code:    "UNKNOWN_ERROR",
				Message: "An unexpected error occurred",
				Details: err.Error(),
			}
		}
	}

	if c.Request().Method == http.MethodHead {
		c.NoContent(apiErr.Status)
		return
	}
	c.JSON(apiErr.Status, apiErr)
}

// RespondWithError is a helper to respond with an APIError
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
