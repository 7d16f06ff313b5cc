package catalog

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alpyxn/moviestar/internal/models"
)

// Comments fetches the comments on a movie.
func (c *Client) Comments(ctx context.Context, movieID int64) ListResult[models.Comment] {
	return fetchList[models.Comment](ctx, c, "comments", idPath("/comments/movie", movieID))
}

// AddComment posts a comment on a movie as the current user.
func (c *Client) AddComment(ctx context.Context, movieID int64, content string) (*models.Comment, error) {
	in := &models.CommentInput{MovieID: movieID, Content: content}
	return send[models.Comment](ctx, c, http.MethodPost, "add comment", "/comments", in)
}

// UpdateComment edits the current user's comment.
func (c *Client) UpdateComment(ctx context.Context, id int64, content string) (*models.Comment, error) {
	in := &models.CommentInput{Content: content}
	return send[models.Comment](ctx, c, http.MethodPut, "update comment", idPath("/comments", id), in)
}

// DeleteComment removes a comment. Users may delete their own; admins any.
func (c *Client) DeleteComment(ctx context.Context, id int64) error {
	return c.delete(ctx, idPath("/comments", id))
}

// LikeComment records a like and returns the updated comment.
func (c *Client) LikeComment(ctx context.Context, id int64) (*models.Comment, error) {
	return send[models.Comment](ctx, c, http.MethodPost, "like comment", idPath("/comments", id, "like"), nil)
}

// DislikeComment records a dislike and returns the updated comment.
func (c *Client) DislikeComment(ctx context.Context, id int64) (*models.Comment, error) {
	return send[models.Comment](ctx, c, http.MethodPost, "dislike comment", idPath("/comments", id, "dislike"), nil)
}

// RateMovie sets the current user's rating for a movie, 1 to 10.
func (c *Client) RateMovie(ctx context.Context, movieID int64, score int) (*models.Rating, error) {
	if score < 1 || score > 10 {
		return nil, &models.ValidationError{
			Field:   "rating",
			Message: fmt.Sprintf("must be between 1 and 10, got %d", score),
		}
	}
	in := &models.RatingInput{MovieID: movieID, Score: score}
	return send[models.Rating](ctx, c, http.MethodPost, "rate movie", "/ratings", in)
}

// MyRating fetches the current user's rating of a movie. A movie the user
// has not rated yields (nil, nil).
func (c *Client) MyRating(ctx context.Context, movieID int64) (*models.Rating, error) {
	r, err := fetchOne[models.Rating](ctx, c, "rating", idPath("/ratings/movie", movieID, "me"))
	if isStatus(err, http.StatusNotFound) {
		return nil, nil
	}
	return r, err
}

// MyRatings fetches every rating the current user has given.
func (c *Client) MyRatings(ctx context.Context) ListResult[models.Rating] {
	return fetchList[models.Rating](ctx, c, "ratings", "/ratings/me")
}

// DeleteRating withdraws the current user's rating of a movie.
func (c *Client) DeleteRating(ctx context.Context, movieID int64) error {
	return c.delete(ctx, idPath("/ratings/movie", movieID))
}
