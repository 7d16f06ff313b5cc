package catalog

import (
	"context"
	"net/http"

	"github.com/alpyxn/moviestar/internal/models"
)

// Actors fetches every actor.
func (c *Client) Actors(ctx context.Context) ListResult[models.Actor] {
	return fetchList[models.Actor](ctx, c, "actors", "/actors")
}

// Actor fetches one actor with their filmography.
func (c *Client) Actor(ctx context.Context, id int64) (*models.Actor, error) {
	return fetchOne[models.Actor](ctx, c, "actor", idPath("/actors", id))
}

func (c *Client) CreateActor(ctx context.Context, in *models.PersonInput) (*models.Actor, error) {
	return send[models.Actor](ctx, c, http.MethodPost, "create actor", "/actors", in)
}

func (c *Client) UpdateActor(ctx context.Context, id int64, in *models.PersonInput) (*models.Actor, error) {
	return send[models.Actor](ctx, c, http.MethodPut, "update actor", idPath("/actors", id), in)
}

func (c *Client) DeleteActor(ctx context.Context, id int64) error {
	return c.delete(ctx, idPath("/actors", id))
}

// Directors fetches every director.
func (c *Client) Directors(ctx context.Context) ListResult[models.Director] {
	return fetchList[models.Director](ctx, c, "directors", "/directors")
}

// Director fetches one director with their filmography.
func (c *Client) Director(ctx context.Context, id int64) (*models.Director, error) {
	return fetchOne[models.Director](ctx, c, "director", idPath("/directors", id))
}

func (c *Client) CreateDirector(ctx context.Context, in *models.PersonInput) (*models.Director, error) {
	return send[models.Director](ctx, c, http.MethodPost, "create director", "/directors", in)
}

func (c *Client) UpdateDirector(ctx context.Context, id int64, in *models.PersonInput) (*models.Director, error) {
	return send[models.Director](ctx, c, http.MethodPut, "update director", idPath("/directors", id), in)
}

func (c *Client) DeleteDirector(ctx context.Context, id int64) error {
	return c.delete(ctx, idPath("/directors", id))
}

// Genres fetches every genre.
func (c *Client) Genres(ctx context.Context) ListResult[models.Genre] {
	return fetchList[models.Genre](ctx, c, "genres", "/genres")
}

func (c *Client) CreateGenre(ctx context.Context, name string) (*models.Genre, error) {
	return send[models.Genre](ctx, c, http.MethodPost, "create genre", "/genres", models.Genre{Name: name})
}

func (c *Client) UpdateGenre(ctx context.Context, id int64, name string) (*models.Genre, error) {
	return send[models.Genre](ctx, c, http.MethodPut, "update genre", idPath("/genres", id), models.Genre{ID: id, Name: name})
}

func (c *Client) DeleteGenre(ctx context.Context, id int64) error {
	return c.delete(ctx, idPath("/genres", id))
}
