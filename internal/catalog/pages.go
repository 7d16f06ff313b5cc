package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alpyxn/moviestar/internal/client"
	"github.com/alpyxn/moviestar/internal/loader"
	"github.com/alpyxn/moviestar/internal/models"
)

// page is the paged list body the API returns when asked for page and size.
type page[T any] struct {
	Content []T  `json:"content"`
	Last    bool `json:"last"`
}

// pager builds a loader.PageFetcher over a list endpoint.
//
// The API answers ?page=N&size=M with a page object. Endpoints that ignore
// paging answer with the whole collection as a plain array; the window at
// offset is then cut out of it locally.
func pager[T any](c *Client, path string, extra url.Values) loader.PageFetcher[T] {
	return func(ctx context.Context, offset, limit int) ([]T, bool, error) {
		q := url.Values{}
		for k, vs := range extra {
			q[k] = vs
		}
		q.Set("page", strconv.Itoa(offset/limit))
		q.Set("size", strconv.Itoa(limit))

		var raw json.RawMessage
		if err := c.api.Request(ctx, http.MethodGet, path, nil, &raw, client.WithQuery(q)); err != nil {
			return nil, false, err
		}
		return decodePage[T](raw, offset, limit)
	}
}

func decodePage[T any](raw json.RawMessage, offset, limit int) ([]T, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, false, nil
	}

	if raw[0] == '[' {
		var all []T
		if err := json.Unmarshal(raw, &all); err != nil {
			return nil, false, fmt.Errorf("failed to decode list: %w", err)
		}
		if offset >= len(all) {
			return nil, false, nil
		}
		end := min(offset+limit, len(all))
		return all[offset:end], end < len(all), nil
	}

	var p page[T]
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, fmt.Errorf("failed to decode page: %w", err)
	}
	return p.Content, !p.Last && len(p.Content) > 0, nil
}

// MoviePages pages through the catalog, or through search results when
// query is not blank.
func (c *Client) MoviePages(query string) loader.PageFetcher[models.Movie] {
	if q := strings.TrimSpace(query); q != "" {
		return pager[models.Movie](c, "/movies/search", url.Values{"query": {q}})
	}
	return pager[models.Movie](c, "/movies", nil)
}

// ActorPages pages through the actors.
func (c *Client) ActorPages() loader.PageFetcher[models.Actor] {
	return pager[models.Actor](c, "/actors", nil)
}

// DirectorPages pages through the directors.
func (c *Client) DirectorPages() loader.PageFetcher[models.Director] {
	return pager[models.Director](c, "/directors", nil)
}

// CommentPages pages through the comments on a movie.
func (c *Client) CommentPages(movieID int64) loader.PageFetcher[models.Comment] {
	return pager[models.Comment](c, idPath("/comments/movie", movieID), nil)
}

// UserPages pages through the platform users. Admin only.
func (c *Client) UserPages() loader.PageFetcher[models.UserProfile] {
	return pager[models.UserProfile](c, "/admin/users", nil)
}
