package middleware

import (
	"mime"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/alpyxn/moviestar/internal/constants"
	"github.com/alpyxn/moviestar/internal/models"
)

// acceptedBodyTypes are the request media types the gateway reads or proxies.
var acceptedBodyTypes = []string{
	constants.ContentTypeJSON,
	constants.ContentTypeFormURLEncoded,
	constants.ContentTypeMultipartForm,
}

// CORS answers preflight requests and adds CORS headers for allowed origins.
// A wildcard origin is never combined with Allow-Credentials, because the
// session cookie only travels on credentialed requests.
func (m *Stack) CORS(next http.Handler) http.Handler {
	sec := m.config.Security
	methods := strings.Join(sec.AllowedMethods, ", ")
	headers := strings.Join(sec.AllowedHeaders, ", ")
	wildcard := slices.Contains(sec.AllowedOrigins, "*")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		origin := r.Header.Get(constants.HeaderOrigin)

		switch {
		case origin != "" && slices.Contains(sec.AllowedOrigins, origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", constants.HeaderOrigin)
			if sec.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		case wildcard:
			h.Set("Access-Control-Allow-Origin", "*")
		}

		if methods != "" {
			h.Set("Access-Control-Allow-Methods", methods)
		}
		if headers != "" {
			h.Set("Access-Control-Allow-Headers", headers)
		}
		if sec.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(sec.MaxAge))
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders sets the response headers of a JSON-only API.
func (m *Stack) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// ContentType rejects bodies of write requests that are not JSON, form or
// multipart data with 415.
func (m *Stack) ContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !carriesBody(r) {
			next.ServeHTTP(w, r)
			return
		}

		mediaType, _, err := mime.ParseMediaType(r.Header.Get(constants.HeaderContentType))
		if err != nil || !slices.Contains(acceptedBodyTypes, mediaType) {
			m.writeError(w, &models.ErrorResponse{
				Code:        "unsupported_media_type",
				Description: "Content-Type must be one of " + strings.Join(acceptedBodyTypes, ", "),
				StatusCode:  http.StatusUnsupportedMediaType,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func carriesBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.ContentLength > 0 || len(r.TransferEncoding) > 0
	default:
		return false
	}
}
