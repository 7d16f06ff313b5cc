package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/alpyxn/moviestar/internal/config"
	"github.com/alpyxn/moviestar/internal/models"
)

// scanCount is the COUNT hint passed to SCAN when counting sessions.
const scanCount = 100

// Client is the Redis implementation of Store.
type Client struct {
	rdb    *redis.Client
	logger *logrus.Logger
}

// NewClient connects to Redis and fails when the server does not answer PING.
func NewClient(cfg *config.RedisConfig, logger *logrus.Logger) (*Client, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{rdb: redis.NewClient(opts), logger: logger}
	if err := c.Ping(context.Background()); err != nil {
		_ = c.rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	logger.WithFields(logrus.Fields{
		"addr": opts.Addr,
		"db":   opts.DB,
	}).Info("Connected to Redis")
	return c, nil
}

// options layers the pool settings over the connection URL. An explicit
// password or database wins over the one in the URL.
func options(cfg *config.RedisConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password // pragma: allowlist secret
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	opts.MaxRetries = cfg.MaxRetries
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConn
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PoolTimeout = cfg.PoolTimeout
	opts.ConnMaxIdleTime = cfg.IdleTimeout
	return opts, nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("failed to close Redis: %w", err)
	}
	c.logger.Info("Redis connection closed")
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// GetRedisClient exposes the go-redis client to the rate limiter.
func (c *Client) GetRedisClient() *redis.Client {
	return c.rdb
}

func (c *Client) SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error {
	if ttl <= 0 {
		return c.DeleteSession(ctx, session.ID)
	}
	if err := c.setJSON(ctx, sessionKey(session.ID), session, ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	c.logger.WithFields(logrus.Fields{
		"session_id": maskID(session.ID),
		"ttl":        ttl,
	}).Debug("Session saved")
	return nil
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var s models.Session
	if err := decode(c.rdb.Get(ctx, sessionKey(sessionID)), &s); err != nil {
		return nil, wrapMiss("get session", err)
	}
	return &s, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	n, err := c.rdb.Del(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n > 0 {
		c.logger.WithField("session_id", maskID(sessionID)).Debug("Session deleted")
	}
	return nil
}

func (c *Client) SaveLoginState(ctx context.Context, state *models.LoginState, ttl time.Duration) error {
	if err := c.setJSON(ctx, loginKey(state.State), state, ttl); err != nil {
		return fmt.Errorf("save login state: %w", err)
	}
	return nil
}

// TakeLoginState redeems a pending login with GETDEL.
func (c *Client) TakeLoginState(ctx context.Context, state string) (*models.LoginState, error) {
	var ls models.LoginState
	if err := decode(c.rdb.GetDel(ctx, loginKey(state)), &ls); err != nil {
		return nil, wrapMiss("take login state", err)
	}
	return &ls, nil
}

// CountSessions walks the session keyspace with SCAN rather than KEYS so a
// large store does not block the server.
func (c *Client) CountSessions(ctx context.Context) (int, error) {
	count := 0
	iter := c.rdb.Scan(ctx, 0, sessionPrefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

func (c *Client) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

func decode(cmd *redis.StringCmd, v any) error {
	data, err := cmd.Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// wrapMiss maps a missing key to ErrCacheMiss and annotates everything else.
func wrapMiss(op string, err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	return fmt.Errorf("%s: %w", op, err)
}
