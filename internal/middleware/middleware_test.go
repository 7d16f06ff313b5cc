package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpyxn/moviestar/internal/auth"
	"github.com/alpyxn/moviestar/internal/config"
	"github.com/alpyxn/moviestar/internal/identity"
	"github.com/alpyxn/moviestar/internal/models"
	"github.com/alpyxn/moviestar/pkg/logger"
)

// stubSessions serves fixed handles keyed by session id.
type stubSessions struct {
	auth.SessionService
	handles   map[string]*auth.Handle
	anonymous *auth.Handle
	err       error
}

func (s *stubSessions) Resolve(_ context.Context, id string) (*auth.Handle, error) {
	if s.err != nil {
		return nil, s.err
	}
	if h, ok := s.handles[id]; ok {
		return h, nil
	}
	return nil, auth.ErrNoSession
}

func (s *stubSessions) Anonymous() *auth.Handle { return s.anonymous }

func handleWith(cred *identity.Credential) *auth.Handle {
	return &auth.Handle{Session: identity.NewSession(nil, cred, logger.NewDiscard())}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Session.CookieName = "moviestar_session"
	cfg.Session.TTL = time.Hour
	cfg.Session.SameSite = "strict"
	cfg.Security.AllowedOrigins = []string{"http://localhost:5173"}
	cfg.Security.AllowedMethods = []string{"GET", "POST"}
	cfg.Security.AllowCredentials = true
	cfg.Security.MaxAge = 600
	return cfg
}

func newTestStack(sessions auth.SessionService) *Stack {
	return NewStack(testConfig(), sessions, nil, logger.NewDiscard())
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestSession_ResolvesCookie(t *testing.T) {
	user := handleWith(&identity.Credential{AccessToken: "at", Username: "ada"})
	anon := handleWith(nil)
	m := newTestStack(&stubSessions{handles: map[string]*auth.Handle{"s1": user}, anonymous: anon})

	var seen *auth.Handle
	h := m.Session(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = HandleFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "moviestar_session", Value: "s1"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Same(t, user, seen)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Same(t, anon, seen)
}

func TestSession_StaleCookieIsCleared(t *testing.T) {
	anon := handleWith(nil)
	m := newTestStack(&stubSessions{anonymous: anon})

	var seen *auth.Handle
	h := m.Session(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = HandleFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "moviestar_session", Value: "gone"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Same(t, anon, seen)
	cookie := rec.Result().Cookies()
	require.Len(t, cookie, 1)
	assert.Equal(t, -1, cookie[0].MaxAge)
}

func TestSession_StoreFailure(t *testing.T) {
	m := newTestStack(&stubSessions{anonymous: handleWith(nil), err: assert.AnError})
	h := m.Session(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "moviestar_session", Value: "s1"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireSession(t *testing.T) {
	m := newTestStack(&stubSessions{})
	h := m.RequireSession(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithHandle(req.Context(), handleWith(nil)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "login_required", body.Code)
	assert.Equal(t, "/api/v1/auth/login", body.LoginURL)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithHandle(req.Context(), handleWith(&identity.Credential{AccessToken: "at"})))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRealmRole(t *testing.T) {
	m := newTestStack(&stubSessions{})
	h := m.RequireRealmRole("ADMIN")(http.HandlerFunc(okHandler))

	tests := []struct {
		name   string
		handle *auth.Handle
		want   int
	}{
		{"anonymous", handleWith(nil), http.StatusUnauthorized},
		{"user", handleWith(&identity.Credential{AccessToken: "at", Roles: []string{"USER"}}), http.StatusForbidden},
		{"admin", handleWith(&identity.Credential{AccessToken: "at", Roles: []string{"USER", "ADMIN"}}), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin", nil)
			req = req.WithContext(WithHandle(req.Context(), tt.handle))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequestLogger_CorrelationID(t *testing.T) {
	m := newTestStack(&stubSessions{})

	var id string
	h := m.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = logger.CorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog/movies", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", id)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, id, 36)
	assert.Equal(t, id, rec.Header().Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	m := newTestStack(&stubSessions{})
	h := m.CORS(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestContentType(t *testing.T) {
	m := newTestStack(&stubSessions{})
	h := m.ContentType(http.HandlerFunc(okHandler))

	tests := []struct {
		contentType string
		want        int
	}{
		{"application/json", http.StatusOK},
		{"multipart/form-data; boundary=x", http.StatusOK},
		{"application/x-www-form-urlencoded", http.StatusOK},
		{"text/xml", http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
		req.Header.Set("Content-Type", tt.contentType)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tt.want, rec.Code, tt.contentType)
	}
}

func TestRecovery(t *testing.T) {
	m := newTestStack(&stubSessions{})
	h := m.Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "server_error", decodeError(t, rec).Code)
}

func TestRateLimit_DisabledWithoutRedis(t *testing.T) {
	m := newTestStack(&stubSessions{})
	h := m.RateLimit(http.HandlerFunc(okHandler))

	for i := 0; i < 100; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	m := newTestStack(&stubSessions{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:5000"
	assert.Equal(t, "::1", m.clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "::1", m.clientIP(req), "untrusted peers cannot choose their address")

	m.config.Security.TrustedProxies = []string{"::1"}
	assert.Equal(t, "203.0.113.9", m.clientIP(req))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.4")
	assert.Equal(t, "198.51.100.4", m.clientIP(req))
}

func TestRecovery_AbortHandlerPropagates(t *testing.T) {
	m := newTestStack(&stubSessions{})
	h := m.Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestRequestLogger_RequestID(t *testing.T) {
	m := newTestStack(&stubSessions{})
	var seen string
	h := m.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.CorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/movies", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-42", seen)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/movies", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestSessionCookie(t *testing.T) {
	cfg := testConfig()
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, &cfg.Session, "s1")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "s1", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)
	assert.Equal(t, 3600, cookies[0].MaxAge)
}

