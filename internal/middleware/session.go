package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/alpyxn/moviestar/internal/auth"
	"github.com/alpyxn/moviestar/internal/config"
	"github.com/alpyxn/moviestar/internal/constants"
	"github.com/alpyxn/moviestar/internal/models"
	"github.com/alpyxn/moviestar/pkg/logger"
)

type handleKey struct{}

// WithHandle returns a copy of ctx carrying the request's session handle.
func WithHandle(ctx context.Context, h *auth.Handle) context.Context {
	return context.WithValue(ctx, handleKey{}, h)
}

// HandleFrom returns the session handle stored by Session, or nil.
func HandleFrom(ctx context.Context) *auth.Handle {
	h, _ := ctx.Value(handleKey{}).(*auth.Handle)
	return h
}

// Session resolves the session cookie into a live handle. Requests without
// a valid session get the shared anonymous handle, and a stale cookie is
// cleared.
func (m *Stack) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := m.sessions.Anonymous()

		if cookie, err := r.Cookie(m.config.Session.CookieName); err == nil && cookie.Value != "" {
			resolved, resolveErr := m.sessions.Resolve(r.Context(), cookie.Value)
			switch {
			case resolveErr == nil:
				h = resolved
			case errors.Is(resolveErr, auth.ErrNoSession):
				ClearSessionCookie(w, &m.config.Session)
			default:
				logger.WithCorrelationID(r.Context(), m.logger).WithError(resolveErr).Error("Failed to resolve session")
				m.writeError(w, models.NewServerError("Session storage unavailable"))
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithHandle(r.Context(), h)))
	})
}

// RequireSession rejects anonymous requests with 401 login_required.
func (m *Stack) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := HandleFrom(r.Context())
		if h == nil || !h.Session.Authenticated() {
			m.writeError(w, models.NewLoginRequired("Sign in to continue", constants.LoginPath))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRealmRole rejects sessions lacking role with 403. It is a
// presentation gate; the catalog API authorizes every call itself.
func (m *Stack) RequireRealmRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := HandleFrom(r.Context())
			if !h.Session.HasRealmRole(role) {
				logger.WithCorrelationID(r.Context(), m.logger).WithField("role", role).Warn("Insufficient role for endpoint")
				m.writeError(w, models.NewAccessDenied("Requires role "+role))
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// SetSessionCookie hands the session id to the browser.
func SetSessionCookie(w http.ResponseWriter, cfg *config.SessionConfig, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: sameSite(cfg.SameSite),
	})
}

// ClearSessionCookie removes the session cookie from the browser.
func ClearSessionCookie(w http.ResponseWriter, cfg *config.SessionConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: sameSite(cfg.SameSite),
	})
}

func sameSite(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
