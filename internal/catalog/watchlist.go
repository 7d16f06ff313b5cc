package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alpyxn/moviestar/internal/models"
)

// Watchlist fetches the current user's watchlist.
func (c *Client) Watchlist(ctx context.Context) ListResult[models.WatchlistEntry] {
	return fetchList[models.WatchlistEntry](ctx, c, "watchlist", "/watchlist")
}

// AddToWatchlist puts a movie on the current user's watchlist. An empty
// status means PLAN_TO_WATCH.
func (c *Client) AddToWatchlist(ctx context.Context, movieID int64, status models.WatchStatus) (*models.WatchlistEntry, error) {
	if status == "" {
		status = models.WatchStatusPlanned
	}
	in := &models.WatchlistInput{MovieID: movieID, Status: status}
	return send[models.WatchlistEntry](ctx, c, http.MethodPost, "add to watchlist", "/watchlist", in)
}

// UpdateWatchStatus moves a watchlist entry to another status.
func (c *Client) UpdateWatchStatus(ctx context.Context, movieID int64, status models.WatchStatus) (*models.WatchlistEntry, error) {
	in := &models.WatchlistInput{MovieID: movieID, Status: status}
	return send[models.WatchlistEntry](ctx, c, http.MethodPut, "update watch status", idPath("/watchlist", movieID), in)
}

// RemoveFromWatchlist takes a movie off the current user's watchlist.
func (c *Client) RemoveFromWatchlist(ctx context.Context, movieID int64) error {
	return c.delete(ctx, idPath("/watchlist", movieID))
}

// WatchlistStatus reports whether one movie is on the current user's watchlist.
func (c *Client) WatchlistStatus(ctx context.Context, movieID int64) (*models.WatchlistStatus, error) {
	st, err := fetchOne[models.WatchlistStatus](ctx, c, "watchlist status", idPath("/watchlist/status", movieID))
	if err != nil {
		return nil, err
	}
	st.MovieID = movieID
	return st, nil
}

// BatchWatchlistStatus reports the watchlist status of several movies in one
// call. When the API has no batch endpoint (404 or 405) it falls back to
// per-movie checks, at most statusConcurrency at a time. Duplicate ids are
// checked once.
func (c *Client) BatchWatchlistStatus(ctx context.Context, movieIDs []int64) (map[int64]models.WatchlistStatus, error) {
	ids := uniqueIDs(movieIDs)
	out := make(map[int64]models.WatchlistStatus, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var statuses []models.WatchlistStatus
	err := c.post(ctx, "/watchlist/status/batch", &models.BatchStatusRequest{MovieIDs: ids}, &statuses)
	switch {
	case err == nil:
		for _, st := range statuses {
			out[st.MovieID] = st
		}
		// Movies the API left out are not on the watchlist.
		for _, id := range ids {
			if _, ok := out[id]; !ok {
				out[id] = models.WatchlistStatus{MovieID: id}
			}
		}
		return out, nil
	case isStatus(err, http.StatusNotFound, http.StatusMethodNotAllowed):
		c.logger.WithFields(logrus.Fields{
			"movies":      len(ids),
			"concurrency": c.statusConcurrency,
		}).Debug("Batch watchlist status unavailable, checking movies one by one")
		return c.statusEach(ctx, ids)
	default:
		return nil, fmt.Errorf("failed to fetch watchlist status: %w", err)
	}
}

func (c *Client) statusEach(ctx context.Context, ids []int64) (map[int64]models.WatchlistStatus, error) {
	results := make([]models.WatchlistStatus, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.statusConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			st, err := c.WatchlistStatus(gctx, id)
			if err != nil {
				return fmt.Errorf("movie %s: %w", strconv.FormatInt(id, 10), err)
			}
			results[i] = *st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[int64]models.WatchlistStatus, len(ids))
	for _, st := range results {
		out[st.MovieID] = st
	}
	return out, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// isStatus reports whether err carries an API error with one of the given statuses.
func isStatus(err error, statuses ...int) bool {
	var apiErr *models.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, s := range statuses {
		if apiErr.StatusCode == s {
			return true
		}
	}
	return false
}
