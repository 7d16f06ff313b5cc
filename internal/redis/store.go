// Package redis stores the gateway's browser sessions and pending logins.
//
// Keys:
//   - moviestar:session:{id} - browser sessions, expiring with the refresh token
//   - moviestar:login:{state} - pending authorization code logins, redeemed once
//
// MemoryStore implements the same Store interface for local development.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alpyxn/moviestar/internal/models"
)

// ErrCacheMiss is returned when a key does not exist or has expired.
var ErrCacheMiss = errors.New("cache miss")

const (
	sessionPrefix = "moviestar:session:"
	loginPrefix   = "moviestar:login:"
)

// Store is the session storage used by the auth package. Implementations
// must be safe for concurrent use.
type Store interface {
	Close() error
	Ping(ctx context.Context) error

	// SaveSession creates or replaces a session. A non-positive ttl deletes it.
	SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error
	// GetSession returns ErrCacheMiss when the session is unknown or expired.
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	// DeleteSession is idempotent.
	DeleteSession(ctx context.Context, sessionID string) error

	SaveLoginState(ctx context.Context, state *models.LoginState, ttl time.Duration) error
	// TakeLoginState returns and removes a pending login in one step, so a
	// state value is redeemed at most once.
	TakeLoginState(ctx context.Context, state string) (*models.LoginState, error)

	CountSessions(ctx context.Context) (int, error)
}

func sessionKey(sessionID string) string { return sessionPrefix + sessionID }

func loginKey(state string) string { return loginPrefix + state }

// maskID keeps session ids out of logs; they are bearer secrets.
func maskID(id string) string {
	if len(id) <= 8 {
		return "***"
	}
	return id[:8] + "***"
}
