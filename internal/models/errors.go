package models

import (
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-authentication failure returned by the remote catalog API.
// It carries the upstream status and body verbatim so callers can render
// their own messages. The gateway never retries these.
type APIError struct {
	// StatusCode is the upstream HTTP status.
	StatusCode int `json:"status"`
	// Code is the machine-readable error code, when the API supplied one.
	Code string `json:"error,omitempty"`
	// Message is the human-readable message, when the API supplied one.
	Message string `json:"message,omitempty"`
	// Body is the raw upstream response body.
	Body []byte `json:"-"`
}

// Error returns a string representation of the API error.
func (e *APIError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	case e.Code != "":
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Code)
	default:
		return fmt.Sprintf("api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
}

// IsNotFound reports whether the upstream answered 404.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// ErrorResponse is the JSON error body written by the gateway's own HTTP handlers.
type ErrorResponse struct {
	// Code is the error code (e.g., "invalid_request", "login_required").
	Code string `json:"error"`
	// Description provides additional human-readable error information.
	Description string `json:"error_description,omitempty"`
	// LoginURL is set when the caller must authenticate again.
	LoginURL string `json:"login_url,omitempty"`
	// StatusCode is the HTTP status code to return (excluded from JSON).
	StatusCode int `json:"-"`
}

// NewInvalidRequest creates an "invalid_request" error. Returns HTTP 400 Bad Request.
func NewInvalidRequest(description string) *ErrorResponse {
	return &ErrorResponse{
		Code:        "invalid_request",
		Description: description,
		StatusCode:  http.StatusBadRequest,
	}
}

// NewLoginRequired creates a "login_required" error pointing at loginURL.
// Returns HTTP 401 Unauthorized.
func NewLoginRequired(description, loginURL string) *ErrorResponse {
	return &ErrorResponse{
		Code:        "login_required",
		Description: description,
		LoginURL:    loginURL,
		StatusCode:  http.StatusUnauthorized,
	}
}

// NewAccessDenied creates an "access_denied" error. Returns HTTP 403 Forbidden.
func NewAccessDenied(description string) *ErrorResponse {
	return &ErrorResponse{
		Code:        "access_denied",
		Description: description,
		StatusCode:  http.StatusForbidden,
	}
}

// NewBadGateway creates an "upstream_unavailable" error for transport failures
// talking to the catalog API or the identity provider. Returns HTTP 502.
func NewBadGateway(description string) *ErrorResponse {
	return &ErrorResponse{
		Code:        "upstream_unavailable",
		Description: description,
		StatusCode:  http.StatusBadGateway,
	}
}

// NewServerError creates a "server_error" error. Returns HTTP 500.
func NewServerError(description string) *ErrorResponse {
	return &ErrorResponse{
		Code:        "server_error",
		Description: description,
		StatusCode:  http.StatusInternalServerError,
	}
}

// Error returns a string representation of the error response.
func (e *ErrorResponse) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// WithDescription sets the description and returns the same instance for chaining.
func (e *ErrorResponse) WithDescription(description string) *ErrorResponse {
	e.Description = description
	return e
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error returns a string representation of the validation error in the format
// "field: message". It implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a slice of ValidationError that represents multiple
// field validation errors.
type ValidationErrors []ValidationError

// Error returns a string representation of the validation errors.
// If there are no errors, it returns "validation failed".
// If there is one error, it returns that error's message.
// If there are multiple errors, it joins them.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	parts := make([]string, 0, len(e))
	for i := range e {
		parts = append(parts, e[i].Error())
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e), strings.Join(parts, "; "))
}

// HasErrors returns true if there are one or more validation errors in the collection.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}
