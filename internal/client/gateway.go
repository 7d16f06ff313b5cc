package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alpyxn/moviestar/pkg/logger"
)

// DefaultMinValidity is how close to expiry a token may get before it is
// refreshed ahead of use.
const DefaultMinValidity = 30 * time.Second

// TokenProvider is the gateway's read-mostly view of the user's credential.
// *identity.Session implements it.
type TokenProvider interface {
	Authenticated() bool
	Token() string
	NeedsRefresh(minValidity time.Duration) bool
	// UpdateToken refreshes when the token expires within minValidity; a
	// negative minValidity forces the refresh.
	UpdateToken(ctx context.Context, minValidity time.Duration) (bool, error)
	ClearToken()
}

// LoginRedirector sends the user back to the login flow. It is the
// re-authentication side effect of a terminal authentication failure.
type LoginRedirector func(ctx context.Context, cause error)

// Gateway extends BaseClient with bearer-token injection and transparent
// recovery from token expiry. Concurrent callers that find the token
// expired share a single refresh round-trip.
type Gateway struct {
	*BaseClient // Embedded - inherits Do, DecodeResponse and ParseErrorResponse

	tokens      TokenProvider
	refresher   *refresher
	minValidity time.Duration
	onLogin     LoginRedirector
	metrics     *Metrics

	expireMu sync.Mutex
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithMinValidity sets the refresh-ahead window.
func WithMinValidity(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d >= 0 {
			g.minValidity = d
		}
	}
}

// WithLoginRedirect sets the re-authentication side effect.
func WithLoginRedirect(fn LoginRedirector) GatewayOption {
	return func(g *Gateway) {
		g.onLogin = fn
	}
}

// WithMetrics records gateway activity in m.
func WithMetrics(m *Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// NewGateway creates an authenticated gateway for one credential.
//
// Parameters:
//   - baseClient: Base HTTP client for core operations
//   - tokens: The credential holder, usually an *identity.Session
func NewGateway(baseClient *BaseClient, tokens TokenProvider, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		BaseClient:  baseClient,
		tokens:      tokens,
		minValidity: DefaultMinValidity,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.refresher = &refresher{metrics: g.metrics}
	return g
}

// Do executes a request with the current bearer token attached.
//
// A token that is about to expire is refreshed first. A 401 on a request
// that carried a token triggers one forced refresh and one resubmission; a
// second 401 is returned as an *AuthError. Any other status, including
// other errors, is returned to the caller untouched, and transport errors
// are never retried.
//
// Returns the HTTP response. Caller is responsible for closing response body.
func (g *Gateway) Do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	opts ...RequestOption,
) (*http.Response, error) {
	o := buildOptions(opts)
	p, err := encodeBody(body, o)
	if err != nil {
		return nil, err
	}

	token, err := g.validToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := g.attempt(ctx, method, path, p, o, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	if token == "" {
		authErr := &AuthError{Reason: ErrLoginRequired}
		g.redirect(ctx, authErr)
		return nil, authErr
	}

	g.log(ctx).WithFields(logrus.Fields{
		"method": method,
		"path":   path,
	}).Debug("Received 401 Unauthorized, forcing token refresh and retrying once")
	g.metrics.observeRetry()

	token, err = g.refreshAfterUnauthorized(ctx, token)
	if err != nil {
		return nil, err
	}

	resp, err = g.attempt(ctx, method, path, p, o, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		authErr := &AuthError{Reason: ErrSessionExpired, Err: errors.New("request rejected after token refresh")}
		g.expire(ctx, authErr)
		return nil, authErr
	}

	return resp, nil
}

// Request executes a request and decodes a JSON response into out.
// Non-2xx responses are returned as *models.APIError.
func (g *Gateway) Request(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	out interface{},
	opts ...RequestOption,
) error {
	resp, err := g.Do(ctx, method, path, body, opts...)
	if err != nil {
		return err
	}
	return g.DecodeResponse(resp, out)
}

// Get issues an authenticated GET and decodes the response into out.
func (g *Gateway) Get(ctx context.Context, path string, out interface{}, opts ...RequestOption) error {
	return g.Request(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post issues an authenticated POST and decodes the response into out.
func (g *Gateway) Post(ctx context.Context, path string, body, out interface{}, opts ...RequestOption) error {
	return g.Request(ctx, http.MethodPost, path, body, out, opts...)
}

// Put issues an authenticated PUT and decodes the response into out.
func (g *Gateway) Put(ctx context.Context, path string, body, out interface{}, opts ...RequestOption) error {
	return g.Request(ctx, http.MethodPut, path, body, out, opts...)
}

// Delete issues an authenticated DELETE and discards the response body.
func (g *Gateway) Delete(ctx context.Context, path string, opts ...RequestOption) error {
	return g.Request(ctx, http.MethodDelete, path, nil, nil, opts...)
}

// Authenticated reports whether requests currently carry a credential.
func (g *Gateway) Authenticated() bool {
	return g.tokens.Authenticated()
}

// RefreshState reports whether a refresh is in flight and how many requests
// are queued behind it.
func (g *Gateway) RefreshState() (refreshing bool, waiting int) {
	return g.refresher.state()
}

func (g *Gateway) attempt(
	ctx context.Context,
	method string,
	path string,
	p *payload,
	o *requestOptions,
	token string,
) (*http.Response, error) {
	req, err := g.newRequest(ctx, method, path, p, o, token)
	if err != nil {
		return nil, err
	}
	resp, err := g.send(req)
	if err != nil {
		g.metrics.observeRequest(method, 0)
		return nil, err
	}
	g.metrics.observeRequest(method, resp.StatusCode)
	return resp, nil
}

// validToken returns the token to attach, refreshing it first when it is
// about to expire. Anonymous sessions get "".
func (g *Gateway) validToken(ctx context.Context) (string, error) {
	if !g.tokens.Authenticated() {
		return "", nil
	}
	if !g.tokens.NeedsRefresh(g.minValidity) {
		return g.tokens.Token(), nil
	}

	return g.refresher.do(ctx, refreshCall{
		trigger: triggerExpiry,
		needed: func() bool {
			return g.tokens.NeedsRefresh(g.minValidity)
		},
		current: g.currentToken,
		run: func(ctx context.Context) (string, error) {
			return g.update(ctx, g.minValidity)
		},
		failed: g.refreshFailed,
	})
}

// refreshAfterUnauthorized forces a refresh unless another caller already
// replaced stale, in which case the newer token is reused.
func (g *Gateway) refreshAfterUnauthorized(ctx context.Context, stale string) (string, error) {
	return g.refresher.do(ctx, refreshCall{
		trigger: triggerUnauthorized,
		needed: func() bool {
			return g.tokens.Authenticated() && g.tokens.Token() == stale
		},
		current: g.currentToken,
		run: func(ctx context.Context) (string, error) {
			return g.update(ctx, -1)
		},
		failed: g.refreshFailed,
	})
}

func (g *Gateway) currentToken() (string, error) {
	if !g.tokens.Authenticated() {
		return "", &AuthError{Reason: ErrSessionExpired}
	}
	return g.tokens.Token(), nil
}

// update runs the refresh primitive. Every failure is wrapped once here so
// that the leader and all its waiters observe the same error value.
func (g *Gateway) update(ctx context.Context, minValidity time.Duration) (string, error) {
	if _, err := g.tokens.UpdateToken(ctx, minValidity); err != nil {
		return "", &AuthError{Reason: ErrSessionExpired, Err: err}
	}
	token := g.tokens.Token()
	if token == "" {
		return "", &AuthError{Reason: ErrSessionExpired}
	}
	return token, nil
}

func (g *Gateway) refreshFailed(ctx context.Context, err error) {
	g.log(ctx).WithError(err).Warn("Token refresh failed, redirecting to login")
	g.tokens.ClearToken()
	g.redirect(ctx, err)
}

// expire ends an authenticated session after the API rejected a freshly
// refreshed token. Concurrent rejections trigger the redirect once.
func (g *Gateway) expire(ctx context.Context, cause error) {
	g.expireMu.Lock()
	wasAuthenticated := g.tokens.Authenticated()
	if wasAuthenticated {
		g.tokens.ClearToken()
	}
	g.expireMu.Unlock()

	if wasAuthenticated {
		g.log(ctx).WithError(cause).Warn("Refreshed token rejected, redirecting to login")
		g.redirect(ctx, cause)
	}
}

func (g *Gateway) redirect(ctx context.Context, cause error) {
	if g.onLogin != nil {
		g.onLogin(ctx, cause)
	}
}

func (g *Gateway) log(ctx context.Context) *logrus.Entry {
	return logger.WithCorrelationID(ctx, g.logger)
}
