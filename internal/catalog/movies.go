package catalog

import (
	"context"
	"net/http"
	"strings"

	"github.com/alpyxn/moviestar/internal/models"
)

// Movies fetches the whole movie catalog.
func (c *Client) Movies(ctx context.Context) ListResult[models.Movie] {
	return fetchList[models.Movie](ctx, c, "movies", "/movies")
}

// Movie fetches one movie.
func (c *Client) Movie(ctx context.Context, id int64) (*models.Movie, error) {
	return fetchOne[models.Movie](ctx, c, "movie", idPath("/movies", id))
}

// SearchMovies runs a server-side title search. A blank query lists everything.
func (c *Client) SearchMovies(ctx context.Context, query string) ListResult[models.Movie] {
	query = strings.TrimSpace(query)
	if query == "" {
		return c.Movies(ctx)
	}
	return fetchList[models.Movie](ctx, c, "movie search results", "/movies/search", queryOption("query", query))
}

// MoviesByGenre fetches the movies tagged with a genre.
func (c *Client) MoviesByGenre(ctx context.Context, genreID int64) ListResult[models.Movie] {
	return fetchList[models.Movie](ctx, c, "movies by genre", idPath("/movies/genre", genreID))
}

// CreateMovie adds a movie. Admin only.
func (c *Client) CreateMovie(ctx context.Context, in *models.MovieInput) (*models.Movie, error) {
	return send[models.Movie](ctx, c, http.MethodPost, "create movie", "/movies", in)
}

// UpdateMovie replaces a movie's fields. Admin only.
func (c *Client) UpdateMovie(ctx context.Context, id int64, in *models.MovieInput) (*models.Movie, error) {
	return send[models.Movie](ctx, c, http.MethodPut, "update movie", idPath("/movies", id), in)
}

// DeleteMovie removes a movie. Admin only.
func (c *Client) DeleteMovie(ctx context.Context, id int64) error {
	return c.delete(ctx, idPath("/movies", id))
}
