package models_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alpyxn/moviestar/internal/models"
)

func TestAPIErrorError(t *testing.T) {
	tests := []struct {
		name        string
		err         *models.APIError
		expectedMsg string
	}{
		{
			name:        "with_message",
			err:         &models.APIError{StatusCode: 404, Code: "not_found", Message: "Movie not found"},
			expectedMsg: "api error 404: Movie not found",
		},
		{
			name:        "code_only",
			err:         &models.APIError{StatusCode: 400, Code: "validation_failed"},
			expectedMsg: "api error 400: validation_failed",
		},
		{
			name:        "status_only",
			err:         &models.APIError{StatusCode: 500},
			expectedMsg: "api error 500: Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedMsg, tt.err.Error())
		})
	}
}

func TestAPIErrorIsNotFound(t *testing.T) {
	assert.True(t, (&models.APIError{StatusCode: http.StatusNotFound}).IsNotFound())
	assert.False(t, (&models.APIError{StatusCode: http.StatusBadRequest}).IsNotFound())
}

func TestErrorResponseError(t *testing.T) {
	assert.Equal(t, "invalid_request: missing id", models.NewInvalidRequest("missing id").Error())
	assert.Equal(t, "server_error", (&models.ErrorResponse{Code: "server_error"}).Error())
}

func TestErrorResponseWithDescription(t *testing.T) {
	err := &models.ErrorResponse{Code: "invalid_request"}

	result := err.WithDescription("New description")

	assert.Equal(t, "New description", result.Description)
	assert.Same(t, err, result)
}

func TestNewErrorFunctions(t *testing.T) {
	tests := []struct {
		name           string
		err            *models.ErrorResponse
		expectedCode   string
		expectedStatus int
	}{
		{"invalid_request", models.NewInvalidRequest("x"), "invalid_request", http.StatusBadRequest},
		{"login_required", models.NewLoginRequired("x", "/login"), "login_required", http.StatusUnauthorized},
		{"access_denied", models.NewAccessDenied("x"), "access_denied", http.StatusForbidden},
		{"bad_gateway", models.NewBadGateway("x"), "upstream_unavailable", http.StatusBadGateway},
		{"server_error", models.NewServerError("x"), "server_error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedCode, tt.err.Code)
			assert.Equal(t, tt.expectedStatus, tt.err.StatusCode)
			assert.Equal(t, "x", tt.err.Description)
		})
	}

	assert.Equal(t, "/login", models.NewLoginRequired("x", "/login").LoginURL)
}

func TestValidationErrors(t *testing.T) {
	var none models.ValidationErrors
	assert.False(t, none.HasErrors())
	assert.Equal(t, "validation failed", none.Error())

	one := models.ValidationErrors{{Field: "image", Message: "too large"}}
	assert.True(t, one.HasErrors())
	assert.Equal(t, "image: too large", one.Error())

	two := append(one, models.ValidationError{Field: "type", Message: "unsupported"})
	assert.Equal(t, "validation failed with 2 errors: image: too large; type: unsupported", two.Error())
}
