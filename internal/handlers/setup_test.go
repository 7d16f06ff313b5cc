package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/alpyxn/moviestar/internal/auth"
	"github.com/alpyxn/moviestar/internal/client"
	"github.com/alpyxn/moviestar/internal/config"
	"github.com/alpyxn/moviestar/internal/constants"
	"github.com/alpyxn/moviestar/internal/handlers"
	"github.com/alpyxn/moviestar/internal/identity"
	"github.com/alpyxn/moviestar/internal/middleware"
	"github.com/alpyxn/moviestar/internal/redis"
	"github.com/alpyxn/moviestar/internal/upload"
	"github.com/alpyxn/moviestar/pkg/logger"
)

const (
	staleToken = "stale-token"
	cookieName = "moviestar_session"
)

// idp issues tokens named after the user; "stale" gets a token the API
// rejects and a refresh that fails.
type idp struct {
	refreshes atomic.Int32
}

func (p *idp) PasswordLogin(_ context.Context, username, password string) (*identity.Credential, error) {
	if password != "secret" {
		return nil, errors.New("invalid_grant")
	}
	cred := &identity.Credential{
		AccessToken:  "token-" + username,
		RefreshToken: "rt-" + username,
		ExpiresAt:    time.Now().Add(5 * time.Minute),
		Username:     username,
		Roles:        []string{"USER"},
	}
	switch username {
	case "admin":
		cred.Roles = append(cred.Roles, "ADMIN")
	case "stale":
		cred.AccessToken = staleToken
	}
	return cred, nil
}

func (p *idp) NewVerifier() string { return "verifier" }

func (p *idp) AuthCodeURL(state, _ string) string {
	return "https://idp.example/auth?state=" + state
}

func (p *idp) Exchange(_ context.Context, code, verifier string) (*identity.Credential, error) {
	if verifier != "verifier" {
		return nil, errors.New("pkce mismatch")
	}
	return &identity.Credential{
		AccessToken: "token-" + code,
		ExpiresAt:   time.Now().Add(5 * time.Minute),
		Username:    code,
	}, nil
}

func (p *idp) Refresh(context.Context, string) (*identity.Credential, error) {
	p.refreshes.Add(1)
	return nil, errors.New("invalid_grant")
}

func (p *idp) EndSession(context.Context, *identity.Credential) error { return nil }

func (p *idp) LogoutURL(_ *identity.Credential, redirectTo string) string {
	return "https://idp.example/logout?redirect=" + redirectTo
}

// apiCall is one request seen by the fake catalog API.
type apiCall struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

// catalogAPI fakes the remote REST API under /api.
type catalogAPI struct {
	server *httptest.Server

	mu    sync.Mutex
	calls []apiCall
}

func (a *catalogAPI) record(r *http.Request) apiCall {
	body, _ := io.ReadAll(r.Body)
	call := apiCall{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Auth:   r.Header.Get("Authorization"),
		Body:   string(body),
	}
	a.mu.Lock()
	a.calls = append(a.calls, call)
	a.mu.Unlock()
	return call
}

func (a *catalogAPI) last(t *testing.T) apiCall {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	require.NotEmpty(t, a.calls)
	return a.calls[len(a.calls)-1]
}

func (a *catalogAPI) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func newCatalogAPI(t *testing.T) *catalogAPI {
	t.Helper()
	api := &catalogAPI{}

	r := mux.NewRouter()
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		call := api.record(req)
		if call.Auth == "Bearer "+staleToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		req.Body = io.NopCloser(strings.NewReader(call.Body))
		r.ServeHTTP(w, req)
	}))
	t.Cleanup(api.server.Close)

	requireAuth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("Authorization") == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, req)
		}
	}

	r.HandleFunc("/api/movies", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`[{"id":1,"title":"Alien"}]`))
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/movies/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","message":"Movie not found"}`))
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/comments", requireAuth(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	})).Methods(http.MethodPost)

	r.HandleFunc("/api/watchlist/status/batch", requireAuth(func(w http.ResponseWriter, req *http.Request) {
		var in struct {
			MovieIDs []int64 `json:"movieIds"`
		}
		_ = json.NewDecoder(req.Body).Decode(&in)
		var out []map[string]any
		for _, id := range in.MovieIDs {
			if id == 2 {
				out = append(out, map[string]any{"movieId": id, "inWatchlist": true, "status": "WATCHING"})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})).Methods(http.MethodPost)

	r.HandleFunc("/api/admin/users/{id}/{action}", requireAuth(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).Methods(http.MethodPost, http.MethodDelete)

	return api
}

// fakeUploader records uploads instead of calling the image host.
type fakeUploader struct {
	enabled bool
	err     error
	got     string
}

func (u *fakeUploader) Enabled() bool { return u.enabled }

func (u *fakeUploader) UploadImage(_ context.Context, filename string, r io.Reader) (*upload.Result, error) {
	if u.err != nil {
		return nil, u.err
	}
	data, _ := io.ReadAll(r)
	u.got = filename + ":" + string(data)
	return &upload.Result{URL: "https://i.example/" + filename, ContentType: "image/png", Size: int64(len(data))}, nil
}

// app is a fully wired gateway in front of the fakes.
type app struct {
	handler  http.Handler
	api      *catalogAPI
	idp      *idp
	store    *redis.MemoryStore
	uploader *fakeUploader
	cfg      *config.Config
}

func newApp(t *testing.T) *app {
	t.Helper()
	log := logger.NewDiscard()

	cfg := &config.Config{}
	cfg.Server.AppURL = "http://app.example/"
	cfg.Identity.MinValidity = 30 * time.Second
	cfg.Identity.LoginStateTTL = time.Minute
	cfg.Identity.AdminRole = "ADMIN"
	cfg.Session.CookieName = cookieName
	cfg.Session.TTL = time.Hour
	cfg.Session.SameSite = "lax"
	cfg.Upload.MaxBytes = 1 << 10

	api := newCatalogAPI(t)
	store := redis.NewMemoryStore(log)
	t.Cleanup(func() { _ = store.Close() })

	provider := &idp{}
	base := client.NewBaseClient(api.server.URL+"/api", 2*time.Second, log)
	registry := prometheus.NewRegistry()
	sessions := auth.NewSessionService(cfg, store, "memory", provider, base, client.NewMetrics(registry), log)
	uploader := &fakeUploader{enabled: true}

	stack := middleware.NewStack(cfg, sessions, nil, log)

	router := mux.NewRouter()
	v1 := router.PathPrefix(constants.APIPrefix).Subrouter()
	handlers.NewHealthHandler(cfg, store, sessions, base, handlers.NewHealthMetrics(registry), log).RegisterRoutes(v1)

	withSession := v1.NewRoute().Subrouter()
	withSession.Use(stack.Session)
	handlers.NewAuthHandler(sessions, cfg, log).RegisterRoutes(withSession.PathPrefix("/auth").Subrouter())
	handlers.NewCatalogHandler(cfg, log).RegisterRoutes(withSession, stack.RequireSession)

	admin := withSession.PathPrefix("/admin").Subrouter()
	admin.Use(stack.RequireRealmRole(cfg.Identity.AdminRole))
	handlers.NewAdminHandler(uploader, cfg.Upload.MaxBytes, log).RegisterRoutes(admin)

	return &app{
		handler:  stack.Chain(router, stack.Recovery, stack.RequestLogger, stack.ContentType),
		api:      api,
		idp:      provider,
		store:    store,
		uploader: uploader,
		cfg:      cfg,
	}
}

// do serves req, attaching the session cookie when sessionID is set.
func (a *app) do(req *http.Request, sessionID string) *httptest.ResponseRecorder {
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: sessionID})
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

// login opens a session by password and returns its id.
func (a *app) login(t *testing.T, username string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username":"`+username+`","password":"secret"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := a.do(req, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sessionCookie(t, rec).Value
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", cookieName)
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), rec.Body.String())
	return v
}
