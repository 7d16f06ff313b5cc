// Package auth manages the gateway's browser sessions: logging users in
// against the identity provider, keeping one live credential holder and
// authenticated gateway per session, and ending sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/alpyxn/moviestar/internal/catalog"
	"github.com/alpyxn/moviestar/internal/client"
	"github.com/alpyxn/moviestar/internal/config"
	"github.com/alpyxn/moviestar/internal/identity"
	"github.com/alpyxn/moviestar/internal/models"
	"github.com/alpyxn/moviestar/internal/redis"
	"github.com/alpyxn/moviestar/pkg/logger"
)

// storeTimeout bounds store calls that run detached from a request:
// writes triggered by credential changes and shared session loads.
const storeTimeout = 5 * time.Second

var (
	// ErrNoSession is returned for unknown, expired or ended sessions.
	ErrNoSession = errors.New("session not found")
	// ErrInvalidLoginState is returned when a login callback carries a state
	// that was never issued, already redeemed or timed out.
	ErrInvalidLoginState = errors.New("invalid or expired login state")
)

// IdentityProvider is what the session service needs from the identity
// provider. *identity.Client implements it.
type IdentityProvider interface {
	identity.Refresher
	PasswordLogin(ctx context.Context, username, password string) (*identity.Credential, error)
	NewVerifier() string
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*identity.Credential, error)
	LogoutURL(cred *identity.Credential, redirectTo string) string
}

// Handle is the live state of one session. The same Handle is returned for
// every request of a session, so concurrent requests share one credential
// and one refresh queue.
type Handle struct {
	ID      string
	Session *identity.Session
	Gateway *client.Gateway
	Catalog *catalog.Client
}

// SessionService creates, resolves and ends browser sessions.
type SessionService interface {
	// Login runs the password grant and opens a session.
	Login(ctx context.Context, username, password string) (*Handle, error)
	// BeginLogin starts the browser redirect flow and returns the provider URL.
	BeginLogin(ctx context.Context, returnTo string) (string, error)
	// CompleteLogin redeems the callback and opens a session. It also
	// returns where the browser wanted to go.
	CompleteLogin(ctx context.Context, state, code string) (*Handle, string, error)
	// Resolve returns the live handle of a session.
	Resolve(ctx context.Context, sessionID string) (*Handle, error)
	// Anonymous returns the shared handle for requests without a session.
	Anonymous() *Handle
	// Logout ends a session locally and at the provider. It returns the
	// provider's front-channel logout URL for browsers.
	Logout(ctx context.Context, sessionID string) (string, error)
	// Stats reports the number of stored sessions.
	Stats(ctx context.Context) (*models.SessionStats, error)
}

type sessionService struct {
	config   *config.Config
	store    redis.Store
	backend  string
	provider IdentityProvider
	api      *client.BaseClient
	metrics  *client.Metrics
	logger   *logrus.Logger

	mu      sync.Mutex
	handles map[string]*Handle
	loads   singleflight.Group

	anonymous *Handle
}

// NewSessionService wires the session service.
//
// Parameters:
//   - cfg: Service configuration (identity, session and loader settings)
//   - store: Session storage; backend names it for stats ("redis", "memory")
//   - provider: Identity provider client
//   - api: Shared HTTP client for the catalog API
//   - metrics: Gateway metrics shared by all sessions, may be nil
func NewSessionService(
	cfg *config.Config,
	store redis.Store,
	backend string,
	provider IdentityProvider,
	api *client.BaseClient,
	metrics *client.Metrics,
	logger *logrus.Logger,
) SessionService {
	s := &sessionService{
		config:   cfg,
		store:    store,
		backend:  backend,
		provider: provider,
		api:      api,
		metrics:  metrics,
		logger:   logger,
		handles:  make(map[string]*Handle),
	}
	s.anonymous = s.newHandle("", nil)
	return s
}

func (s *sessionService) Login(ctx context.Context, username, password string) (*Handle, error) {
	s.logger.WithField("username", username).Info("Processing password login")

	cred, err := s.provider.PasswordLogin(ctx, username, password)
	if err != nil {
		s.logger.WithError(err).WithField("username", username).Warn("Password login failed")
		return nil, err
	}
	return s.open(ctx, cred)
}

func (s *sessionService) BeginLogin(ctx context.Context, returnTo string) (string, error) {
	state := &models.LoginState{
		State:     uuid.NewString(),
		Verifier:  s.provider.NewVerifier(),
		ReturnTo:  returnTo,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveLoginState(ctx, state, s.config.Identity.LoginStateTTL); err != nil {
		return "", fmt.Errorf("failed to save login state: %w", err)
	}
	return s.provider.AuthCodeURL(state.State, state.Verifier), nil
}

func (s *sessionService) CompleteLogin(ctx context.Context, state, code string) (*Handle, string, error) {
	pending, err := s.store.TakeLoginState(ctx, state)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, "", ErrInvalidLoginState
		}
		return nil, "", fmt.Errorf("failed to load login state: %w", err)
	}

	cred, err := s.provider.Exchange(ctx, code, pending.Verifier)
	if err != nil {
		s.logger.WithError(err).Warn("Authorization code exchange failed")
		return nil, "", err
	}

	h, err := s.open(ctx, cred)
	if err != nil {
		return nil, "", err
	}
	return h, pending.ReturnTo, nil
}

// open stores a new session for cred and caches its handle.
func (s *sessionService) open(ctx context.Context, cred *identity.Credential) (*Handle, error) {
	now := time.Now().UTC()
	session := &models.Session{
		ID:         uuid.NewString(),
		Credential: cred,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.SaveSession(ctx, session, session.TTL(s.config.Session.TTL)); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	h := s.newHandle(session.ID, session)

	s.mu.Lock()
	s.handles[session.ID] = h
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"username": cred.Username,
		"roles":    cred.Roles,
	}).Info("Session opened")
	return h, nil
}

func (s *sessionService) Resolve(ctx context.Context, sessionID string) (*Handle, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}
	if h := s.cached(sessionID); h != nil {
		return h, nil
	}

	// Concurrent first requests of a session must end up on the same handle.
	// The shared load is detached from whichever caller started it; each
	// caller only waits as long as its own ctx allows.
	ch := s.loads.DoChan(sessionID, func() (interface{}, error) {
		if h := s.cached(sessionID); h != nil {
			return h, nil
		}

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		defer cancel()

		stored, err := s.store.GetSession(loadCtx, sessionID)
		if err != nil {
			if errors.Is(err, redis.ErrCacheMiss) {
				return nil, ErrNoSession
			}
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		if stored.Credential == nil {
			return nil, ErrNoSession
		}

		h := s.newHandle(sessionID, stored)
		s.mu.Lock()
		s.handles[sessionID] = h
		s.mu.Unlock()
		return h, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *sessionService) cached(sessionID string) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[sessionID]
	if !ok {
		return nil
	}
	if !h.Session.Authenticated() {
		delete(s.handles, sessionID)
		return nil
	}
	return h
}

func (s *sessionService) Anonymous() *Handle {
	return s.anonymous
}

func (s *sessionService) Logout(ctx context.Context, sessionID string) (string, error) {
	appURL := s.config.Server.AppURL

	h, err := s.Resolve(ctx, sessionID)
	if errors.Is(err, ErrNoSession) {
		return appURL, nil
	}
	if err != nil {
		return "", err
	}

	cred := h.Session.Credential()
	logoutURL := s.provider.LogoutURL(cred, appURL)

	// The credential is gone locally even when the provider call fails.
	if logoutErr := h.Session.Logout(ctx); logoutErr != nil {
		s.logger.WithError(logoutErr).Warn("Provider logout failed, session ended locally")
	}
	s.end(ctx, sessionID)

	if cred != nil {
		s.logger.WithField("username", cred.Username).Info("Session closed")
	}
	return logoutURL, nil
}

func (s *sessionService) Stats(ctx context.Context) (*models.SessionStats, error) {
	n, err := s.store.CountSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	return &models.SessionStats{ActiveSessions: n, Backend: s.backend}, nil
}

// newHandle builds the credential holder, gateway and catalog client of a
// session. An empty id builds the anonymous handle, which is never stored.
func (s *sessionService) newHandle(id string, stored *models.Session) *Handle {
	var (
		cred *identity.Credential
		opts []identity.SessionOption
	)
	if stored != nil {
		cred = stored.Credential
		createdAt := stored.CreatedAt
		opts = append(opts, identity.WithChangeHook(func(c *identity.Credential) {
			s.persist(id, createdAt, c)
		}))
	}

	session := identity.NewSession(s.provider, cred, s.logger, opts...)

	gwOpts := []client.GatewayOption{
		client.WithMinValidity(s.config.Identity.MinValidity),
		client.WithMetrics(s.metrics),
	}
	if id != "" {
		gwOpts = append(gwOpts, client.WithLoginRedirect(func(ctx context.Context, cause error) {
			logger.WithCorrelationID(ctx, s.logger).WithError(cause).Info("Session ended, login required")
			s.end(ctx, id)
		}))
	}
	gw := client.NewGateway(s.api, session, gwOpts...)

	return &Handle{
		ID:      id,
		Session: session,
		Gateway: gw,
		Catalog: catalog.NewClient(gw, s.logger),
	}
}

// persist writes a refreshed credential back to the store, or ends the
// session when the credential was cleared.
func (s *sessionService) persist(id string, createdAt time.Time, cred *identity.Credential) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if cred == nil {
		s.end(ctx, id)
		return
	}

	session := &models.Session{
		ID:         id,
		Credential: cred,
		CreatedAt:  createdAt,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.store.SaveSession(ctx, session, session.TTL(s.config.Session.TTL)); err != nil {
		s.logger.WithError(err).Error("Failed to persist refreshed credential")
	}
}

// end deletes a session and evicts its handle. It is idempotent.
func (s *sessionService) end(ctx context.Context, id string) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()

	if err := s.store.DeleteSession(ctx, id); err != nil {
		s.logger.WithError(err).Error("Failed to delete session")
	}
}
