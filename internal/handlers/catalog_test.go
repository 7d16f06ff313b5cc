package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpyxn/moviestar/internal/handlers"
	"github.com/alpyxn/moviestar/internal/models"
	"github.com/alpyxn/moviestar/internal/redis"
)

func TestProxy_AnonymousRead(t *testing.T) {
	a := newApp(t)

	rec := a.do(httptest.NewRequest(http.MethodGet, "/api/v1/catalog/movies?page=1&size=12", nil), "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":1,"title":"Alien"}]`, rec.Body.String())
	assert.Equal(t, `"v1"`, rec.Header().Get("ETag"))

	call := a.api.last(t)
	assert.Equal(t, "/api/movies", call.Path)
	assert.Equal(t, "page=1&size=12", call.Query)
	assert.Empty(t, call.Auth)
}

func TestProxy_ForwardsBodyWithSessionToken(t *testing.T) {
	a := newApp(t)
	id := a.login(t, "ada")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/catalog/comments",
		strings.NewReader(`{"movieId":1,"content":"Great"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := a.do(req, id)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"movieId":1,"content":"Great"}`, rec.Body.String())

	call := a.api.last(t)
	assert.Equal(t, "Bearer token-ada", call.Auth)
	assert.Equal(t, `{"movieId":1,"content":"Great"}`, call.Body)
}

func TestProxy_RejectsEscapedTraversal(t *testing.T) {
	a := newApp(t)
	id := a.login(t, "ada")
	before := a.api.count()

	for _, target := range []string{
		"/api/v1/catalog/movies/%252e%252e/%252e%252e/internal",
		"/api/v1/catalog/movies/%2e%2e/%2e%2e/internal",
		"/api/v1/catalog/movies%2F..%2F..%2Finternal",
	} {
		rec := a.do(httptest.NewRequest(http.MethodGet, target, nil), id)
		assert.NotEqual(t, http.StatusOK, rec.Code, target)
	}
	assert.Equal(t, before, a.api.count(), "nothing reaches the catalog API")

	rec := a.do(httptest.NewRequest(http.MethodGet, "/api/v1/catalog/movies/%252e%252e/%252e%252e/internal", nil), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProxy_DomainErrorPassesThrough(t *testing.T) {
	a := newApp(t)

	rec := a.do(httptest.NewRequest(http.MethodGet, "/api/v1/catalog/movies/99", nil), "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not_found","message":"Movie not found"}`, rec.Body.String())
}

func TestProxy_AnonymousWriteNeedsLogin(t *testing.T) {
	a := newApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/catalog/comments", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := a.do(req, "")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode[models.ErrorResponse](t, rec)
	assert.Equal(t, "login_required", body.Code)
	assert.Equal(t, "/api/v1/auth/login", body.LoginURL)
	assert.Equal(t, 1, a.api.count(), "an anonymous 401 is never retried")
}

func TestProxy_ExpiredSessionEnds(t *testing.T) {
	a := newApp(t)
	id := a.login(t, "stale")

	rec := a.do(httptest.NewRequest(http.MethodGet, "/api/v1/catalog/movies", nil), id)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "login_required", decode[models.ErrorResponse](t, rec).Code)
	assert.Equal(t, -1, sessionCookie(t, rec).MaxAge)
	assert.Equal(t, int32(1), a.idp.refreshes.Load())

	_, err := a.store.GetSession(context.Background(), id)
	assert.ErrorIs(t, err, redis.ErrCacheMiss)
}

func TestProxy_RejectsOversizeBody(t *testing.T) {
	a := newApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/catalog/comments",
		strings.NewReader(`{"content":"`+strings.Repeat("x", 2<<20)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := a.do(req, "")

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, a.api.count())
}

func TestWatchlistStatus(t *testing.T) {
	a := newApp(t)

	rec := a.do(httptest.NewRequest(http.MethodGet, "/api/v1/watchlist/status?ids=1,2", nil), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	id := a.login(t, "ada")
	rec = a.do(httptest.NewRequest(http.MethodGet, "/api/v1/watchlist/status?ids=3,2&ids=3", nil), id)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[handlers.WatchlistStatusResponse](t, rec)
	assert.Equal(t, []models.WatchlistStatus{
		{MovieID: 3},
		{MovieID: 2, InWatchlist: true, Status: models.WatchStatusWatching},
	}, resp.Statuses)
	assert.JSONEq(t, `{"movieIds":[3,2]}`, a.api.last(t).Body)
}

func TestWatchlistStatus_InvalidIDs(t *testing.T) {
	a := newApp(t)
	id := a.login(t, "ada")

	for _, q := range []string{"", "?ids=", "?ids=1,abc", "?ids=-4"} {
		rec := a.do(httptest.NewRequest(http.MethodGet, "/api/v1/watchlist/status"+q, nil), id)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}
