package models

import (
	"time"

	"github.com/alpyxn/moviestar/internal/identity"
)

// Session is a browser session kept by the gateway. The browser only holds
// the opaque ID in a cookie; the credential never leaves the server.
type Session struct {
	ID         string               `json:"id"`
	Credential *identity.Credential `json:"credential"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// TTL returns how long the session should be kept: until the refresh token
// expires, or fallback when the provider did not report that.
func (s *Session) TTL(fallback time.Duration) time.Duration {
	if s.Credential == nil || s.Credential.RefreshExpiresAt.IsZero() {
		return fallback
	}
	if ttl := time.Until(s.Credential.RefreshExpiresAt); ttl > 0 {
		return ttl
	}
	return 0
}

// LoginState is the one-shot record of a browser login in progress. It is
// keyed by the OAuth2 state parameter.
type LoginState struct {
	State     string    `json:"state"`
	Verifier  string    `json:"verifier"`
	ReturnTo  string    `json:"return_to,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionStats summarizes the session store for the health endpoint.
type SessionStats struct {
	ActiveSessions int    `json:"active_sessions"`
	Backend        string `json:"backend"`
}
