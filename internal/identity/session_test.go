package identity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpyxn/moviestar/internal/identity"
)

type fakeProvider struct {
	mu         sync.Mutex
	refreshes  int
	ended      int
	next       *identity.Credential
	refreshErr error
	endErr     error
}

func (f *fakeProvider) Refresh(_ context.Context, _ string) (*identity.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	next := *f.next
	return &next, nil
}

func (f *fakeProvider) EndSession(_ context.Context, _ *identity.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended++
	return f.endErr
}

func credential(token string, expiresIn time.Duration, roles ...string) *identity.Credential {
	return &identity.Credential{
		AccessToken:  token,
		RefreshToken: "refresh-" + token,
		IDToken:      "id-" + token,
		ExpiresAt:    time.Now().Add(expiresIn),
		Username:     "alice",
		Roles:        roles,
	}
}

func TestSession_Anonymous(t *testing.T) {
	s := identity.NewSession(&fakeProvider{}, nil, testLogger())

	assert.False(t, s.Authenticated())
	assert.Empty(t, s.Token())
	assert.Nil(t, s.Credential())
	assert.False(t, s.HasRealmRole("ADMIN"))
	assert.False(t, s.NeedsRefresh(time.Minute))

	_, err := s.UpdateToken(context.Background(), 0)
	assert.ErrorIs(t, err, identity.ErrNotAuthenticated)
}

func TestSession_UpdateToken_NotNeeded(t *testing.T) {
	provider := &fakeProvider{next: credential("new", time.Hour)}
	s := identity.NewSession(provider, credential("old", time.Hour, "ADMIN"), testLogger())

	refreshed, err := s.UpdateToken(context.Background(), 30*time.Second)
	require.NoError(t, err)

	assert.False(t, refreshed)
	assert.Equal(t, "old", s.Token())
	assert.Equal(t, 0, provider.refreshes)
	assert.True(t, s.HasRealmRole("ADMIN"))
}

func TestSession_UpdateToken_Expired(t *testing.T) {
	provider := &fakeProvider{next: &identity.Credential{AccessToken: "new", ExpiresAt: time.Now().Add(time.Hour)}}
	var changes []*identity.Credential
	s := identity.NewSession(provider, credential("old", 10*time.Second), testLogger(),
		identity.WithChangeHook(func(c *identity.Credential) { changes = append(changes, c) }))

	assert.True(t, s.NeedsRefresh(30*time.Second))

	refreshed, err := s.UpdateToken(context.Background(), 30*time.Second)
	require.NoError(t, err)

	assert.True(t, refreshed)
	assert.Equal(t, "new", s.Token())
	assert.Equal(t, 1, provider.refreshes)

	// Fields the provider did not echo are carried over.
	cred := s.Credential()
	assert.Equal(t, "refresh-old", cred.RefreshToken)
	assert.Equal(t, "id-old", cred.IDToken)
	assert.Equal(t, "alice", cred.Username)

	require.Len(t, changes, 1)
	assert.Same(t, cred, changes[0])
}

func TestSession_UpdateToken_Forced(t *testing.T) {
	provider := &fakeProvider{next: credential("forced", time.Hour)}
	s := identity.NewSession(provider, credential("valid", time.Hour), testLogger())

	refreshed, err := s.UpdateToken(context.Background(), -1)
	require.NoError(t, err)

	assert.True(t, refreshed)
	assert.Equal(t, "forced", s.Token())
}

func TestSession_UpdateToken_FailureClears(t *testing.T) {
	boom := errors.New("provider down")
	provider := &fakeProvider{refreshErr: boom}
	var cleared bool
	s := identity.NewSession(provider, credential("old", 0), testLogger(),
		identity.WithChangeHook(func(c *identity.Credential) { cleared = c == nil }))

	_, err := s.UpdateToken(context.Background(), 30*time.Second)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, s.Authenticated())
	assert.True(t, cleared)
}

func TestSession_UpdateToken_NoRefreshToken(t *testing.T) {
	provider := &fakeProvider{}
	cred := credential("old", 0)
	cred.RefreshToken = ""
	s := identity.NewSession(provider, cred, testLogger())

	_, err := s.UpdateToken(context.Background(), 0)

	assert.ErrorIs(t, err, identity.ErrRefreshUnavailable)
	assert.False(t, s.Authenticated())
	assert.Equal(t, 0, provider.refreshes)
}

func TestSession_UpdateToken_RefreshTokenExpired(t *testing.T) {
	provider := &fakeProvider{}
	cred := credential("old", 0)
	cred.RefreshExpiresAt = time.Now().Add(-time.Minute)
	s := identity.NewSession(provider, cred, testLogger())

	_, err := s.UpdateToken(context.Background(), 0)

	assert.ErrorIs(t, err, identity.ErrRefreshUnavailable)
	assert.Equal(t, 0, provider.refreshes)
}

func TestSession_Logout(t *testing.T) {
	provider := &fakeProvider{}
	s := identity.NewSession(provider, credential("tok", time.Hour), testLogger())

	require.NoError(t, s.Logout(context.Background()))
	assert.False(t, s.Authenticated())
	assert.Equal(t, 1, provider.ended)

	// Second logout is a no-op.
	require.NoError(t, s.Logout(context.Background()))
	assert.Equal(t, 1, provider.ended)
}

func TestSession_LogoutProviderFailureStillClears(t *testing.T) {
	provider := &fakeProvider{endErr: errors.New("unreachable")}
	s := identity.NewSession(provider, credential("tok", time.Hour), testLogger())

	assert.Error(t, s.Logout(context.Background()))
	assert.False(t, s.Authenticated())
}

// parkedProvider holds every Refresh until release is closed.
type parkedProvider struct {
	fakeProvider
	started chan struct{}
	release chan struct{}
}

func (p *parkedProvider) Refresh(ctx context.Context, token string) (*identity.Credential, error) {
	close(p.started)
	<-p.release
	return p.fakeProvider.Refresh(ctx, token)
}

func TestSession_LogoutDuringRefreshWins(t *testing.T) {
	provider := &parkedProvider{
		fakeProvider: fakeProvider{next: credential("fresh", time.Hour)},
		started:      make(chan struct{}),
		release:      make(chan struct{}),
	}

	var (
		mu    sync.Mutex
		hooks []string
	)
	s := identity.NewSession(provider, credential("stale", -time.Minute), testLogger(),
		identity.WithChangeHook(func(c *identity.Credential) {
			mu.Lock()
			defer mu.Unlock()
			if c == nil {
				hooks = append(hooks, "cleared")
				return
			}
			hooks = append(hooks, "saved:"+c.AccessToken)
		}))

	done := make(chan error, 1)
	go func() {
		_, err := s.UpdateToken(context.Background(), 0)
		done <- err
	}()

	<-provider.started
	require.NoError(t, s.Logout(context.Background()))
	close(provider.release)

	assert.ErrorIs(t, <-done, identity.ErrNotAuthenticated)
	assert.False(t, s.Authenticated())
	assert.Empty(t, s.Token())

	mu.Lock()
	assert.Equal(t, []string{"cleared"}, hooks)
	mu.Unlock()

	provider.mu.Lock()
	defer provider.mu.Unlock()
	assert.Equal(t, 2, provider.ended, "the logged-out and the refreshed provider sessions are both ended")
}

func TestSession_SetCredentialAndClear(t *testing.T) {
	var hookCalls int
	s := identity.NewSession(&fakeProvider{}, nil, testLogger(),
		identity.WithChangeHook(func(*identity.Credential) { hookCalls++ }))

	s.SetCredential(credential("tok", time.Hour, "USER"))
	assert.True(t, s.Authenticated())
	assert.True(t, s.HasRealmRole("USER"))

	s.ClearToken()
	s.ClearToken()
	assert.False(t, s.Authenticated())
	assert.Equal(t, 2, hookCalls, "clearing an empty session does not notify")
}

func TestCredential_Expired(t *testing.T) {
	var nilCred *identity.Credential
	assert.True(t, nilCred.Expired(0))
	assert.False(t, (&identity.Credential{AccessToken: "x"}).Expired(time.Hour), "unknown expiry is assumed valid")
	assert.True(t, credential("x", 10*time.Second).Expired(30*time.Second))
	assert.False(t, credential("x", time.Minute).Expired(30*time.Second))
}
