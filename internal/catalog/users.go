package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/alpyxn/moviestar/internal/models"
)

// Profile fetches the current user's profile.
func (c *Client) Profile(ctx context.Context) (*models.UserProfile, error) {
	return fetchOne[models.UserProfile](ctx, c, "profile", "/users/me")
}

// UpdateProfile changes the current user's profile.
func (c *Client) UpdateProfile(ctx context.Context, in *models.ProfileInput) (*models.UserProfile, error) {
	return send[models.UserProfile](ctx, c, http.MethodPut, "update profile", "/users/me", in)
}

// Users lists every platform user. Admin only.
func (c *Client) Users(ctx context.Context) ListResult[models.UserProfile] {
	return fetchList[models.UserProfile](ctx, c, "users", "/admin/users")
}

// BanUser bans a user. Admin only.
func (c *Client) BanUser(ctx context.Context, userID, reason string) error {
	c.logger.WithField("user_id", userID).Info("Banning user")
	if err := c.post(ctx, userPath(userID, "ban"), &models.BanRequest{Reason: reason}, nil); err != nil {
		return fmt.Errorf("failed to ban user: %w", err)
	}
	return nil
}

// UnbanUser lifts a ban. Admin only.
func (c *Client) UnbanUser(ctx context.Context, userID string) error {
	c.logger.WithField("user_id", userID).Info("Unbanning user")
	if err := c.post(ctx, userPath(userID, "unban"), nil, nil); err != nil {
		return fmt.Errorf("failed to unban user: %w", err)
	}
	return nil
}

// DeleteUserComments removes every comment a user wrote. Admin only.
func (c *Client) DeleteUserComments(ctx context.Context, userID string) error {
	c.logger.WithFields(logrus.Fields{
		"user_id": userID,
	}).Info("Deleting all comments of user")
	if err := c.delete(ctx, userPath(userID, "comments")); err != nil {
		return fmt.Errorf("failed to delete user comments: %w", err)
	}
	return nil
}

func userPath(userID, action string) string {
	return "/admin/users/" + url.PathEscape(userID) + "/" + action
}
