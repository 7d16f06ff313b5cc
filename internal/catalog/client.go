// Package catalog is the typed client for the remote movie catalog API:
// movies, people, genres, comments, ratings, watchlists and user
// administration. Every call goes through the authenticated gateway.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/alpyxn/moviestar/internal/client"
)

// DefaultStatusConcurrency bounds the per-movie watchlist checks issued when
// the batch status endpoint is unavailable.
const DefaultStatusConcurrency = 4

// Requester performs one API call and decodes the JSON response into out.
// *client.Gateway implements it.
type Requester interface {
	Request(ctx context.Context, method, path string, body, out interface{}, opts ...client.RequestOption) error
}

// Client provides methods for interacting with the catalog API.
type Client struct {
	api    Requester
	logger *logrus.Logger

	statusConcurrency int
}

// Option configures a Client.
type Option func(*Client)

// WithStatusConcurrency sets how many per-movie status checks may run at
// once during the batch status fallback.
func WithStatusConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.statusConcurrency = n
		}
	}
}

// NewClient creates a catalog client over an authenticated gateway.
//
// Parameters:
//   - api: Usually the *client.Gateway bound to the caller's session
//   - logger: Structured logger for catalog operations
func NewClient(api Requester, logger *logrus.Logger, opts ...Option) *Client {
	c := &Client{
		api:               api,
		logger:            logger,
		statusConcurrency: DefaultStatusConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) get(ctx context.Context, path string, out interface{}, opts ...client.RequestOption) error {
	return c.api.Request(ctx, http.MethodGet, path, nil, out, opts...)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.api.Request(ctx, http.MethodPost, path, body, out)
}

func (c *Client) put(ctx context.Context, path string, body, out interface{}) error {
	return c.api.Request(ctx, http.MethodPut, path, body, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.api.Request(ctx, http.MethodDelete, path, nil, nil)
}

// fetchList loads a whole collection. Failures are logged and reported in
// the result, never swallowed.
func fetchList[T any](ctx context.Context, c *Client, what, path string, opts ...client.RequestOption) ListResult[T] {
	var items []T
	if err := c.get(ctx, path, &items, opts...); err != nil {
		c.logger.WithError(err).WithField("path", path).Warnf("Failed to fetch %s", what)
		return failed[T](fmt.Errorf("failed to fetch %s: %w", what, err))
	}
	c.logger.WithFields(logrus.Fields{
		"path":  path,
		"count": len(items),
	}).Debugf("Fetched %s", what)
	return loaded(items)
}

func fetchOne[T any](ctx context.Context, c *Client, what, path string) (*T, error) {
	var item T
	if err := c.get(ctx, path, &item); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", what, err)
	}
	return &item, nil
}

func send[T any](ctx context.Context, c *Client, method, what, path string, body interface{}) (*T, error) {
	var item T
	if err := c.api.Request(ctx, method, path, body, &item); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"method": method,
			"path":   path,
		}).Warnf("Failed to %s", what)
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	return &item, nil
}

func idPath(prefix string, id int64, suffix ...string) string {
	p := prefix + "/" + strconv.FormatInt(id, 10)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

func queryOption(key, value string) client.RequestOption {
	return client.WithQuery(url.Values{key: {value}})
}
