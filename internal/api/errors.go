// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIError represents a structured API error response. Clients only see
// the detail string; Code and Cause are for logs.
type APIError struct {
	Status int    `json:"-"`
	Code   string `json:"-"`
	Detail string `json:"detail"`
	Cause  error  `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *APIError) Unwrap() error { return e.Cause }

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(detail string, cause error) *APIError {
	return &APIError{
		Status: http.StatusBadRequest,
		Code:   "BAD_REQUEST",
		Detail: detail,
		Cause:  cause,
	}
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Status: http.StatusBadRequest,
		Code:   "VALIDATION_ERROR",
		Detail: fmt.Sprintf("%s: %s", field, reason),
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(detail string) *APIError {
	return &APIError{
		Status: http.StatusNotFound,
		Code:   "NOT_FOUND",
		Detail: detail,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(detail string, cause error) *APIError {
	return &APIError{
		Status: http.StatusInternalServerError,
		Code:   "INTERNAL_ERROR",
		Detail: detail,
		Cause:  cause,
	}
}

// NewErrorHandler returns an echo.HTTPErrorHandler rendering every error as
// {"detail": "..."}.
// Usage: e.HTTPErrorHandler = api.NewErrorHandler(logger)
func NewErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			apiErr  *APIError
			httpErr *echo.HTTPError
		)
		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			apiErr = &APIError{
				Status: httpErr.Code,
				Code:   "HTTP_ERROR",
				Detail: fmt.Sprintf("%v", httpErr.Message),
			}
		default:
			apiErr = NewInternalError("Internal server error", err)
		}

		if apiErr.Status >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request().Context(), "request failed",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"code", apiErr.Code,
				"error", err,
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(apiErr.Status)
		} else {
			werr = c.JSON(apiErr.Status, apiErr)
		}
		if werr != nil {
			logger.Error("failed to write error response", "error", werr)
		}
	}
}
