package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/alpyxn/moviestar/internal/client"
	"github.com/alpyxn/moviestar/internal/config"
	"github.com/alpyxn/moviestar/internal/constants"
	"github.com/alpyxn/moviestar/internal/middleware"
	"github.com/alpyxn/moviestar/internal/models"
	"github.com/alpyxn/moviestar/pkg/logger"
)

const (
	// maxProxyBody bounds request bodies forwarded to the catalog API.
	maxProxyBody = 1 << 20
	// maxStatusIDs bounds one watchlist status lookup.
	maxStatusIDs = 200
)

// forwardedResponseHeaders are copied from the catalog API to the browser.
var forwardedResponseHeaders = []string{
	constants.HeaderContentType,
	constants.HeaderLocation,
	"Cache-Control",
	"ETag",
	"Last-Modified",
}

// CatalogHandler forwards browser calls to the catalog API through the
// caller's session gateway.
type CatalogHandler struct {
	config *config.Config
	logger *logrus.Logger
}

// WatchlistStatusResponse lists statuses in request order.
type WatchlistStatusResponse struct {
	Statuses []models.WatchlistStatus `json:"statuses"`
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(cfg *config.Config, logger *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{config: cfg, logger: logger}
}

// RegisterRoutes registers the proxy under router, which is expected to be
// mounted at /api/v1 behind the session middleware. requireSession guards
// the endpoints that make no sense anonymously.
func (h *CatalogHandler) RegisterRoutes(router *mux.Router, requireSession func(http.Handler) http.Handler) {
	router.Handle("/watchlist/status", requireSession(http.HandlerFunc(h.WatchlistStatus))).
		Methods(http.MethodGet)
	router.PathPrefix("/catalog/").HandlerFunc(h.Proxy)
}

// Proxy handles /api/v1/catalog/{path}. Method, query and body are
// forwarded unchanged; the bearer token comes from the session. Upstream
// statuses other than a terminal 401 are relayed verbatim.
func (h *CatalogHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	handle := middleware.HandleFrom(r.Context())
	if handle == nil {
		middleware.WriteError(w, models.NewServerError("Session middleware not installed"), h.logger)
		return
	}

	path := strings.TrimPrefix(r.URL.EscapedPath(), constants.APIPrefix+"/catalog")
	if !validProxyPath(path) {
		middleware.WriteError(w, models.NewInvalidRequest("Invalid catalog path"), h.logger)
		return
	}

	opts := []client.RequestOption{client.WithQuery(r.URL.Query())}
	if accept := r.Header.Get(constants.HeaderAccept); accept != "" {
		opts = append(opts, client.WithHeader(constants.HeaderAccept, accept))
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxProxyBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, &models.ErrorResponse{
				Code:        "request_too_large",
				Description: "Request body too large",
				StatusCode:  http.StatusRequestEntityTooLarge,
			}, h.logger)
			return
		}
		middleware.WriteError(w, models.NewInvalidRequest("Could not read request body"), h.logger)
		return
	}
	if len(body) > 0 {
		opts = append(opts, client.WithRawBody(body, r.Header.Get(constants.HeaderContentType)))
	}

	log := logger.WithCorrelationID(r.Context(), h.logger)

	resp, err := handle.Gateway.Do(r.Context(), r.Method, path, nil, opts...)
	if err != nil {
		if client.IsAuthError(err) && handle.ID != "" {
			middleware.ClearSessionCookie(w, &h.config.Session)
		}
		writeUpstreamError(w, r, err, log)
		return
	}
	defer resp.Body.Close()

	for _, name := range forwardedResponseHeaders {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		log.WithError(err).WithField("path", path).Warn("Failed to relay catalog response")
	}
}

// WatchlistStatus handles GET /api/v1/watchlist/status?ids=1,2,3 and
// answers for every movie in one round-trip from the browser.
func (h *CatalogHandler) WatchlistStatus(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDs(r.URL.Query()["ids"])
	if err != nil {
		writeUpstreamError(w, r, err, h.logger)
		return
	}

	handle := middleware.HandleFrom(r.Context())
	statuses, err := handle.Catalog.BatchWatchlistStatus(r.Context(), ids)
	if err != nil {
		writeUpstreamError(w, r, err, logger.WithCorrelationID(r.Context(), h.logger))
		return
	}

	resp := WatchlistStatusResponse{Statuses: make([]models.WatchlistStatus, 0, len(statuses))}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		resp.Statuses = append(resp.Statuses, statuses[id])
	}

	writeJSON(w, resp, http.StatusOK, h.logger)
}

// parseIDs accepts both ids=1,2 and ids=1&ids=2.
func parseIDs(raw []string) ([]int64, error) {
	var ids []int64
	for _, group := range raw {
		for _, s := range strings.Split(group, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil || id <= 0 {
				return nil, &models.ValidationError{Field: "ids", Message: "must be positive integers"}
			}
			ids = append(ids, id)
		}
	}

	switch {
	case len(ids) == 0:
		return nil, &models.ValidationError{Field: "ids", Message: "is required"}
	case len(ids) > maxStatusIDs:
		return nil, &models.ValidationError{Field: "ids", Message: "at most " + strconv.Itoa(maxStatusIDs) + " ids per call"}
	}
	return ids, nil
}

// validProxyPath rejects empty paths, dot segments and any percent escape
// or backslash in the escaped path.
func validProxyPath(p string) bool {
	if p == "" || p == "/" {
		return false
	}
	if strings.ContainsAny(p, "%\\") {
		return false
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return false
		}
	}
	return true
}
