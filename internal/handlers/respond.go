// Package handlers provides the gateway's HTTP endpoints: browser and
// password login, the catalog proxy, watchlist aggregation, admin actions,
// and health checks.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/alpyxn/moviestar/internal/client"
	"github.com/alpyxn/moviestar/internal/constants"
	"github.com/alpyxn/moviestar/internal/middleware"
	"github.com/alpyxn/moviestar/internal/models"
)

// validationResponse is the 400 body for rejected input.
type validationResponse struct {
	Code        string                  `json:"error"`
	Description string                  `json:"error_description"`
	Fields      models.ValidationErrors `json:"fields"`
}

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int, log logrus.FieldLogger) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeUpstreamError maps an error from the catalog API, the identity
// provider or the upload provider onto a response:
//   - terminal auth failures become 401 login_required
//   - catalog domain errors pass through with their status and body
//   - validation failures become 400 with the offending fields
//   - anything else is a 502
func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error, log logrus.FieldLogger) {
	var (
		apiErr   *models.APIError
		fieldErr *models.ValidationError
		fields   models.ValidationErrors
	)

	switch {
	case client.IsAuthError(err):
		middleware.WriteError(w, models.NewLoginRequired("Your session has ended, sign in again", constants.LoginPath), log)

	case errors.As(err, &apiErr):
		writeAPIError(w, apiErr, log)

	case errors.As(err, &fields):
		writeJSON(w, validationResponse{"invalid_request", fields.Error(), fields}, http.StatusBadRequest, log)

	case errors.As(err, &fieldErr):
		fields = models.ValidationErrors{*fieldErr}
		writeJSON(w, validationResponse{"invalid_request", fields.Error(), fields}, http.StatusBadRequest, log)

	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response.
		log.WithField("path", r.URL.Path).Debug("Request cancelled by client")

	default:
		log.WithError(err).WithField("path", r.URL.Path).Error("Upstream call failed")
		middleware.WriteError(w, models.NewBadGateway("The catalog service is unavailable"), log)
	}
}

// writeAPIError relays a catalog API error verbatim.
func writeAPIError(w http.ResponseWriter, apiErr *models.APIError, log logrus.FieldLogger) {
	if len(apiErr.Body) > 0 {
		w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
		if !json.Valid(apiErr.Body) {
			w.Header().Set(constants.HeaderContentType, constants.ContentTypePlainUTF8)
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(apiErr.Body)))
		w.WriteHeader(apiErr.StatusCode)
		if _, err := w.Write(apiErr.Body); err != nil {
			log.WithError(err).Debug("Failed to relay API error body")
		}
		return
	}

	writeJSON(w, &models.ErrorResponse{
		Code:        cmpCode(apiErr.Code, apiErr.StatusCode),
		Description: apiErr.Message,
	}, apiErr.StatusCode, log)
}

func cmpCode(code string, status int) string {
	if code != "" {
		return code
	}
	return "upstream_" + strconv.Itoa(status)
}
