package identity

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Refresher is the part of the provider a Session needs.
// *Client implements it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)
	EndSession(ctx context.Context, cred *Credential) error
}

// ChangeHook is called after every credential replacement. cred is nil when
// the credential was cleared.
type ChangeHook func(cred *Credential)

// Session holds the credential of one user. Reads are lock free; the
// credential is swapped as a whole so readers never see a partial update.
//
// Session does not deduplicate concurrent refreshes: that is the gateway's job.
type Session struct {
	provider Refresher
	cred     atomic.Pointer[Credential]
	onChange ChangeHook
	logger   *logrus.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithChangeHook persists or observes credential changes.
func WithChangeHook(hook ChangeHook) SessionOption {
	return func(s *Session) {
		s.onChange = hook
	}
}

// NewSession creates a session. cred may be nil for an anonymous session.
func NewSession(provider Refresher, cred *Credential, logger *logrus.Logger, opts ...SessionOption) *Session {
	s := &Session{
		provider: provider,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if cred != nil {
		s.cred.Store(cred)
	}
	return s
}

// Authenticated reports whether the session currently holds a credential.
func (s *Session) Authenticated() bool {
	return s.cred.Load() != nil
}

// Token returns the current access token, or "" when anonymous.
func (s *Session) Token() string {
	if cred := s.cred.Load(); cred != nil {
		return cred.AccessToken
	}
	return ""
}

// Credential returns the current credential, or nil. The returned value must
// not be modified.
func (s *Session) Credential() *Credential {
	return s.cred.Load()
}

// HasRealmRole reports whether the current credential carries role.
// This is a presentation gate only; the API enforces authorization itself.
func (s *Session) HasRealmRole(role string) bool {
	return s.cred.Load().HasRole(role)
}

// NeedsRefresh reports whether the session is authenticated and its access
// token expires within minValidity.
func (s *Session) NeedsRefresh(minValidity time.Duration) bool {
	cred := s.cred.Load()
	return cred != nil && cred.Expired(minValidity)
}

// SetCredential installs a credential obtained from a login.
func (s *Session) SetCredential(cred *Credential) {
	s.cred.Store(cred)
	s.notify(cred)
}

// UpdateToken refreshes the credential when it expires within minValidity.
// A negative minValidity forces the refresh. It reports whether a refresh
// happened. Any refresh failure clears the credential, so the session is no
// longer authenticated afterwards.
func (s *Session) UpdateToken(ctx context.Context, minValidity time.Duration) (bool, error) {
	cred := s.cred.Load()
	if cred == nil {
		return false, ErrNotAuthenticated
	}
	if minValidity >= 0 && !cred.Expired(minValidity) {
		return false, nil
	}

	if !cred.CanRefresh() {
		s.clearIfCurrent(cred)
		return false, ErrRefreshUnavailable
	}

	fresh, err := s.provider.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		s.logger.WithError(err).WithField("username", cred.Username).Warn("Token refresh failed, clearing credential")
		s.clearIfCurrent(cred)
		return false, fmt.Errorf("failed to update token: %w", err)
	}

	// Providers may not echo identity claims or the refresh token on refresh.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cred.RefreshToken
		fresh.RefreshExpiresAt = cred.RefreshExpiresAt
	}
	if fresh.IDToken == "" {
		fresh.IDToken = cred.IDToken
	}
	if fresh.Username == "" {
		fresh.Username = cred.Username
		fresh.Subject = cred.Subject
	}

	// A logout or another replacement won while the provider was called.
	// The fresh tokens belong to nobody now, so they are revoked instead of
	// being installed.
	if !s.cred.CompareAndSwap(cred, fresh) {
		s.logger.WithField("username", fresh.Username).Debug("Credential replaced during refresh, discarding refreshed tokens")
		if err := s.provider.EndSession(context.WithoutCancel(ctx), fresh); err != nil {
			s.logger.WithError(err).Warn("Failed to end orphaned provider session")
		}
		return false, ErrNotAuthenticated
	}
	s.notify(fresh)

	s.logger.WithFields(logrus.Fields{
		"username":   fresh.Username,
		"expires_at": fresh.ExpiresAt,
	}).Debug("Access token refreshed")

	return true, nil
}

// ClearToken drops the credential without contacting the provider.
func (s *Session) ClearToken() {
	if old := s.cred.Swap(nil); old != nil {
		s.notify(nil)
	}
}

// clearIfCurrent drops cred unless it has already been replaced.
func (s *Session) clearIfCurrent(cred *Credential) {
	if s.cred.CompareAndSwap(cred, nil) {
		s.notify(nil)
	}
}

// Logout drops the credential and ends the provider session. The local
// credential is gone even when the provider call fails.
func (s *Session) Logout(ctx context.Context) error {
	old := s.cred.Swap(nil)
	if old == nil {
		return nil
	}
	s.notify(nil)

	if err := s.provider.EndSession(ctx, old); err != nil {
		s.logger.WithError(err).Warn("Failed to end provider session")
		return err
	}
	return nil
}

func (s *Session) notify(cred *Credential) {
	if s.onChange != nil {
		s.onChange(cred)
	}
}
