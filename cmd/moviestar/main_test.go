package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpyxn/moviestar/internal/config"
	"github.com/alpyxn/moviestar/internal/identity"
	"github.com/alpyxn/moviestar/internal/models"
	"github.com/alpyxn/moviestar/pkg/logger"
)

type fakeProvider struct {
	refreshes atomic.Int32
	ended     atomic.Int32
}

func (p *fakeProvider) PasswordLogin(_ context.Context, username, password string) (*identity.Credential, error) {
	if password != "secret" {
		return nil, errors.New("invalid_grant")
	}
	return &identity.Credential{
		AccessToken:  "token-" + username,
		RefreshToken: "refresh-" + username,
		ExpiresAt:    time.Now().Add(time.Hour),
		Username:     username,
		Roles:        []string{"USER"},
	}, nil
}

func (p *fakeProvider) Refresh(context.Context, string) (*identity.Credential, error) {
	p.refreshes.Add(1)
	return nil, errors.New("invalid_grant: token is not active")
}

func (p *fakeProvider) EndSession(context.Context, *identity.Credential) error {
	p.ended.Add(1)
	return nil
}

// catalogStub serves five movies as a plain array and answers the batch
// watchlist status endpoint for bearer "token-ada".
type catalogStub struct {
	server   *httptest.Server
	requests atomic.Int32
	lastAuth atomic.Value
}

func newCatalogStub(t *testing.T) *catalogStub {
	t.Helper()
	s := &catalogStub{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /movies", func(w http.ResponseWriter, _ *http.Request) {
		var movies []models.Movie
		for i, title := range []string{"Alien", "Heat", "Ran", "Ikiru", "Brazil"} {
			movies = append(movies, models.Movie{ID: int64(i + 1), Title: title})
		}
		writeStub(w, http.StatusOK, movies)
	})
	mux.HandleFunc("GET /actors", func(w http.ResponseWriter, _ *http.Request) {
		writeStub(w, http.StatusOK, map[string]any{
			"content": []models.Actor{{Person: models.Person{ID: 7, Name: "Toshiro", Surname: "Mifune"}}},
			"last":    true,
		})
	})
	mux.HandleFunc("GET /directors", func(w http.ResponseWriter, _ *http.Request) {
		writeStub(w, http.StatusInternalServerError, map[string]string{"message": "database down"})
	})
	mux.HandleFunc("POST /watchlist/status/batch", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-ada" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeStub(w, http.StatusOK, []models.WatchlistStatus{
			{MovieID: 2, InWatchlist: true, Status: models.WatchStatusWatching},
		})
	})

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		s.lastAuth.Store(r.Header.Get("Authorization"))
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func writeStub(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type harness struct {
	cli      *cli
	provider *fakeProvider
	api      *catalogStub
	path     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	api := newCatalogStub(t)

	cfg := &config.Config{}
	cfg.API.BaseURL = api.server.URL
	cfg.API.Timeout = 5 * time.Second
	cfg.Identity.MinValidity = 30 * time.Second
	cfg.Identity.AdminRole = "ADMIN"
	cfg.Loader.ProximityThreshold = 2
	cfg.Loader.Views = map[string]int{viewMovies: 2}

	path := filepath.Join(t.TempDir(), "credentials.json")
	p := &fakeProvider{}
	return &harness{
		cli: &cli{
			cfg:      cfg,
			logger:   logger.NewDiscard(),
			creds:    &credentialStore{path: path},
			provider: p,
		},
		provider: p,
		api:      api,
		path:     path,
	}
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(h.cli)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) saveCredential(t *testing.T, cred *identity.Credential) {
	t.Helper()
	require.NoError(t, h.cli.creds.Save(cred))
}

func TestCredentialStore(t *testing.T) {
	store := &credentialStore{path: filepath.Join(t.TempDir(), "nested", "credentials.json")}

	cred, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, cred)

	want := &identity.Credential{AccessToken: "a", RefreshToken: "r", Username: "ada", Roles: []string{"USER"}}
	require.NoError(t, store.Save(want))

	info, err := os.Stat(store.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.Roles, got.Roles)

	require.NoError(t, store.Save(nil))
	_, err = os.Stat(store.path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, store.Save(nil))
}

func TestCredentialStore_Corrupt(t *testing.T) {
	store := &credentialStore{path: filepath.Join(t.TempDir(), "credentials.json")}
	require.NoError(t, os.WriteFile(store.path, []byte("{"), 0o600))

	_, err := store.Load()
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "secret\n", "login", "-u", "ada")
	require.NoError(t, err)
	assert.Equal(t, "Logged in as ada.\n", out)

	cred, err := h.cli.creds.Load()
	require.NoError(t, err)
	assert.Equal(t, "token-ada", cred.AccessToken)
}

func TestLogin_PromptsForUsername(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "grace\nsecret\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "grace")
}

func TestLogin_Rejected(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "wrong\n", "login", "-u", "ada")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid username or password")

	_, statErr := os.Stat(h.path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWhoami(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Equal(t, "Not logged in.\n", out)

	h.saveCredential(t, &identity.Credential{
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresAt:    time.Now().Add(-time.Minute),
		Username:     "root",
		Roles:        []string{"USER", "ADMIN"},
	})
	out, err = h.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "User:    root")
	assert.Contains(t, out, "Admin:   true")
	assert.Contains(t, out, "expired, refreshed on next use")
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.saveCredential(t, &identity.Credential{AccessToken: "a", Username: "ada"})

	out, err := h.run(t, "", "logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out.\n", out)
	assert.Equal(t, int32(1), h.provider.ended.Load())

	_, statErr := os.Stat(h.path)
	assert.True(t, os.IsNotExist(statErr))

	out, err = h.run(t, "", "logout")
	require.NoError(t, err)
	assert.Equal(t, "Not logged in.\n", out)
}

func TestBrowse_LoadsOneBatchPerEnter(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "\n", "browse", "movies")
	require.NoError(t, err)

	assert.Contains(t, out, "Heat")
	assert.Contains(t, out, "Ikiru")
	assert.NotContains(t, out, "Brazil")
	assert.Equal(t, int32(2), h.api.requests.Load())
	assert.Empty(t, h.api.lastAuth.Load())
}

func TestBrowse_ToTheEnd(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "\n\n\n", "browse", "movies", "--batch", "2")
	require.NoError(t, err)

	assert.Contains(t, out, "Brazil")
	assert.Contains(t, out, "-- end of list, 5 shown --")
	assert.Equal(t, int32(3), h.api.requests.Load())
}

func TestBrowse_Quit(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "q\n", "browse", "movies", "--batch", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "Ran")
	assert.NotContains(t, out, "Ikiru")
	assert.Equal(t, int32(1), h.api.requests.Load())
}

func TestBrowse_PagedEndpoint(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "", "browse", "actors")
	require.NoError(t, err)
	assert.Contains(t, out, "Toshiro Mifune")
	assert.Contains(t, out, "-- end of list, 1 shown --")
}

func TestBrowse_FailedFetchEndsList(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "", "browse", "directors")
	require.NoError(t, err)
	assert.Equal(t, "-- end of list, 0 shown --\n", out)
	assert.Equal(t, int32(1), h.api.requests.Load())
}

func TestBrowse_InvalidArguments(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "", "browse", "genres")
	assert.Error(t, err)

	_, err = h.run(t, "", "browse", "actors", "--search", "mifune")
	assert.Error(t, err)
	assert.Zero(t, h.api.requests.Load())
}

func TestWatchlistStatus(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "", "watchlist", "status", "1", "2")
	assert.ErrorIs(t, err, errNotLoggedIn)

	cred, err := h.provider.PasswordLogin(context.Background(), "ada", "secret")
	require.NoError(t, err)
	h.saveCredential(t, cred)

	out, err := h.run(t, "", "watchlist", "status", "1", "2", "1")
	require.NoError(t, err)
	assert.Equal(t, "     1  not on watchlist\n     2  WATCHING\n", out)

	_, err = h.run(t, "", "watchlist", "status", "x")
	assert.Error(t, err)
}

func TestWatchlistStatus_SessionEnds(t *testing.T) {
	h := newHarness(t)
	h.saveCredential(t, &identity.Credential{
		AccessToken:  "revoked",
		RefreshToken: "r",
		ExpiresAt:    time.Now().Add(time.Hour),
		Username:     "ada",
	})

	_, err := h.run(t, "", "watchlist", "status", "2")
	assert.ErrorIs(t, err, errSessionExpired)
	assert.Equal(t, int32(1), h.provider.refreshes.Load())

	_, statErr := os.Stat(h.path)
	assert.True(t, os.IsNotExist(statErr), "the dead credential is forgotten")
}
