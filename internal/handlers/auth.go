package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/alpyxn/moviestar/internal/auth"
	"github.com/alpyxn/moviestar/internal/config"
	"github.com/alpyxn/moviestar/internal/middleware"
	"github.com/alpyxn/moviestar/internal/models"
	"github.com/alpyxn/moviestar/pkg/logger"
)

// maxLoginBody bounds the JSON password login payload.
const maxLoginBody = 4 << 10

// AuthHandler serves login, logout and "who am I".
type AuthHandler struct {
	sessions auth.SessionService
	config   *config.Config
	logger   *logrus.Logger
}

// LoginRequest is the JSON body of a password login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// MeResponse describes the caller's session.
type MeResponse struct {
	Authenticated bool     `json:"authenticated"`
	Username      string   `json:"username,omitempty"`
	Email         string   `json:"email,omitempty"`
	Roles         []string `json:"roles"`
	IsAdmin       bool     `json:"is_admin"`
}

// LogoutResponse tells the browser where to finish the logout.
type LogoutResponse struct {
	LogoutURL string `json:"logout_url"`
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(sessions auth.SessionService, cfg *config.Config, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		config:   cfg,
		logger:   logger,
	}
}

// RegisterRoutes registers the auth endpoints under router, which is
// expected to be mounted at /api/v1/auth behind the session middleware.
func (h *AuthHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/login", h.BeginLogin).Methods(http.MethodGet)
	router.HandleFunc("/login", h.PasswordLogin).Methods(http.MethodPost)
	router.HandleFunc("/callback", h.Callback).Methods(http.MethodGet)
	router.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	router.HandleFunc("/me", h.Me).Methods(http.MethodGet)
}

// BeginLogin handles GET /auth/login and redirects the browser to the
// identity provider. The optional return_to query parameter must be a local
// path.
func (h *AuthHandler) BeginLogin(w http.ResponseWriter, r *http.Request) {
	returnTo := safeReturnTo(r.URL.Query().Get("return_to"))

	authURL, err := h.sessions.BeginLogin(r.Context(), returnTo)
	if err != nil {
		logger.WithCorrelationID(r.Context(), h.logger).WithError(err).Error("Failed to start login")
		middleware.WriteError(w, models.NewServerError("Could not start login"), h.logger)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback handles GET /auth/callback, the identity provider's redirect
// back after an authorization code login.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	log := logger.WithCorrelationID(r.Context(), h.logger)

	if providerErr := q.Get("error"); providerErr != "" {
		log.WithFields(logrus.Fields{
			"error":             providerErr,
			"error_description": q.Get("error_description"),
		}).Warn("Identity provider rejected login")
		middleware.WriteError(w, models.NewAccessDenied(providerErr), h.logger)
		return
	}

	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		middleware.WriteError(w, models.NewInvalidRequest("Missing state or code"), h.logger)
		return
	}

	handle, returnTo, err := h.sessions.CompleteLogin(r.Context(), state, code)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidLoginState) {
			middleware.WriteError(w, models.NewInvalidRequest("Login expired or already used"), h.logger)
			return
		}
		log.WithError(err).Error("Failed to complete login")
		middleware.WriteError(w, models.NewBadGateway("Could not complete login"), h.logger)
		return
	}

	middleware.SetSessionCookie(w, &h.config.Session, handle.ID)
	http.Redirect(w, r, h.appURL(returnTo), http.StatusFound)
}

// PasswordLogin handles POST /auth/login with a JSON body. It is meant for
// first-party clients that cannot follow a browser redirect.
func (h *AuthHandler) PasswordLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
		middleware.WriteError(w, models.NewInvalidRequest("Invalid JSON body"), h.logger)
		return
	}

	var errs models.ValidationErrors
	if strings.TrimSpace(req.Username) == "" {
		errs = append(errs, models.ValidationError{Field: "username", Message: "is required"})
	}
	if req.Password == "" {
		errs = append(errs, models.ValidationError{Field: "password", Message: "is required"})
	}
	if errs.HasErrors() {
		writeUpstreamError(w, r, errs, h.logger)
		return
	}

	handle, err := h.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		logger.WithCorrelationID(r.Context(), h.logger).WithError(err).
			WithField("username", req.Username).Warn("Password login failed")
		middleware.WriteError(w, models.NewAccessDenied("Invalid username or password"), h.logger)
		return
	}

	middleware.SetSessionCookie(w, &h.config.Session, handle.ID)
	writeJSON(w, h.describe(handle), http.StatusOK, h.logger)
}

// Logout handles POST /auth/logout. The session is ended locally and at the
// provider; the response names the provider's front-channel logout page.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	handle := middleware.HandleFrom(r.Context())

	logoutURL := h.appURL("")
	if handle != nil && handle.ID != "" {
		var err error
		logoutURL, err = h.sessions.Logout(r.Context(), handle.ID)
		if err != nil {
			logger.WithCorrelationID(r.Context(), h.logger).WithError(err).Warn("Logout did not complete cleanly")
		}
	}

	middleware.ClearSessionCookie(w, &h.config.Session)
	writeJSON(w, LogoutResponse{LogoutURL: logoutURL}, http.StatusOK, h.logger)
}

// Me handles GET /auth/me. Anonymous callers get authenticated=false
// rather than an error.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.describe(middleware.HandleFrom(r.Context())), http.StatusOK, h.logger)
}

func (h *AuthHandler) describe(handle *auth.Handle) MeResponse {
	resp := MeResponse{Roles: []string{}}
	if handle == nil || !handle.Session.Authenticated() {
		return resp
	}

	cred := handle.Session.Credential()
	resp.Authenticated = true
	resp.Username = cred.Username
	resp.Email = cred.Email
	if len(cred.Roles) > 0 {
		resp.Roles = cred.Roles
	}
	resp.IsAdmin = handle.Session.HasRealmRole(h.config.Identity.AdminRole)
	return resp
}

// appURL resolves a local return path against the application URL.
func (h *AuthHandler) appURL(returnTo string) string {
	if returnTo == "" {
		return h.config.Server.AppURL
	}
	base, err := url.Parse(h.config.Server.AppURL)
	if err != nil {
		return returnTo
	}
	ref, err := url.Parse(returnTo)
	if err != nil {
		return h.config.Server.AppURL
	}
	return base.ResolveReference(ref).String()
}

// safeReturnTo accepts only local absolute paths so the login flow cannot be
// used as an open redirect.
func safeReturnTo(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, `\`) {
		return ""
	}
	u, err := url.Parse(p)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return p
}
