package redis

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alpyxn/moviestar/internal/models"
)

// CleanupInterval is the interval between expired item cleanup runs.
const CleanupInterval = 5 * time.Minute

// MemoryStore is an in-memory implementation of the Store interface.
// It provides the same functionality as the Redis store but without persistence.
// Expired items are invisible immediately and purged by a background goroutine.
type MemoryStore struct {
	sessions    map[string]*expiringItem[models.Session]
	logins      map[string]*expiringItem[models.LoginState]
	logger      *logrus.Logger
	mu          sync.RWMutex
	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// expiringItem wraps data with expiration time for TTL support.
type expiringItem[T any] struct {
	Data      T
	ExpiresAt time.Time
}

func (e *expiringItem[T]) isExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// NewMemoryStore creates a new in-memory store with TTL cleanup.
func NewMemoryStore(logger *logrus.Logger) *MemoryStore {
	return newMemoryStore(logger, CleanupInterval)
}

func newMemoryStore(logger *logrus.Logger, interval time.Duration) *MemoryStore {
	store := &MemoryStore{
		sessions:    make(map[string]*expiringItem[models.Session]),
		logins:      make(map[string]*expiringItem[models.LoginState]),
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}

	go store.cleanupExpiredItems(interval)

	logger.Info("In-memory session store initialized with TTL cleanup")
	return store
}

// cleanupExpiredItems runs periodically to remove expired items.
func (m *MemoryStore) cleanupExpiredItems(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *MemoryStore) performCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	expired := purge(m.sessions, now) + purge(m.logins, now)

	if expired > 0 {
		m.logger.WithField("expired_items", expired).Debug("Cleaned up expired items from memory store")
	}
}

func purge[T any](items map[string]*expiringItem[T], now time.Time) int {
	expired := 0
	for key, item := range items {
		if item.isExpired(now) {
			delete(items, key)
			expired++
		}
	}
	return expired
}

// Close stops the cleanup goroutine. It is idempotent.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.stopCleanup)
	})
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func (m *MemoryStore) SaveSession(_ context.Context, session *models.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl <= 0 {
		delete(m.sessions, session.ID)
		return nil
	}
	m.sessions[session.ID] = &expiringItem[models.Session]{
		Data:      *session,
		ExpiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.sessions[sessionID]
	if !ok || item.isExpired(time.Now()) {
		return nil, ErrCacheMiss
	}
	session := item.Data
	return &session, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryStore) SaveLoginState(_ context.Context, state *models.LoginState, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logins[state.State] = &expiringItem[models.LoginState]{
		Data:      *state,
		ExpiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (m *MemoryStore) TakeLoginState(_ context.Context, state string) (*models.LoginState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.logins[state]
	if !ok {
		return nil, ErrCacheMiss
	}
	delete(m.logins, state)
	if item.isExpired(time.Now()) {
		return nil, ErrCacheMiss
	}
	ls := item.Data
	return &ls, nil
}

func (m *MemoryStore) CountSessions(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	count := 0
	for _, item := range m.sessions {
		if !item.isExpired(now) {
			count++
		}
	}
	return count, nil
}
