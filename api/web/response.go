// Package web holds the echo plumbing shared by the API handlers: the
// response envelope, error mapping, validation and hero authentication.
package web

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mozocode/On-The-Way-Rebuild/auth"
	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch"
	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
)

// ErrUnauthorized is returned when a request lacks a valid hero token.
var ErrUnauthorized = errors.New("unauthorized")

// Envelope is the standard API response wrapper.
type Envelope struct {
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
}

// APIError represents an error in the API response.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// JSON writes a JSON response with the standard envelope.
func JSON(c echo.Context, status int, data any) error {
	return c.JSON(status, Envelope{Data: data})
}

// ErrorHandler returns the echo error handler. Unexpected errors are logged.
func ErrorHandler(log logger.Logger) echo.HTTPErrorHandler {
	log = logger.OrNop(log)
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, apiErr := MapError(err)
		if status >= http.StatusInternalServerError {
			log.Errorf("%s %s: %v", c.Request().Method, c.Request().URL.Path, err)
		}
		if jsonErr := c.JSON(status, Envelope{Error: &apiErr}); jsonErr != nil {
			log.Errorf("failed to send error response: %v", jsonErr)
		}
	}
}

// MapError converts an error to an HTTP status and API error body.
func MapError(err error) (int, APIError) {
	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		return echoErr.Code, APIError{Code: http.StatusText(echoErr.Code), Message: msg}
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, APIError{
			Code:    "validation_error",
			Message: "Validation failed",
			Details: []FieldError{{Field: verr.Field, Message: verr.Message}},
		}
	}
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, APIError{Code: "unauthorized", Message: "A valid hero token is required"}
	case errors.Is(err, dispatch.ErrValidation):
		return http.StatusBadRequest, APIError{Code: "invalid_input", Message: err.Error()}
	case errors.Is(err, dispatch.ErrNotFound):
		return http.StatusNotFound, APIError{Code: "not_found", Message: err.Error()}
	case errors.Is(err, dispatch.ErrAlreadyAssigned):
		return http.StatusConflict, APIError{Code: "already_assigned", Message: err.Error()}
	case errors.Is(err, dispatch.ErrWorkerBusy):
		return http.StatusConflict, APIError{Code: "worker_busy", Message: err.Error()}
	case errors.Is(err, dispatch.ErrPreconditionFailed):
		return http.StatusConflict, APIError{Code: "precondition_failed", Message: err.Error()}
	case errors.Is(err, dispatch.ErrTransientIO):
		return http.StatusServiceUnavailable, APIError{Code: "unavailable", Message: "Temporarily unavailable, retry later"}
	default:
		return http.StatusInternalServerError, APIError{Code: "internal_error", Message: "An unexpected error occurred"}
	}
}
