// Package middleware provides HTTP middleware components for the gateway
// including rate limiting, CORS, logging, security headers, session
// resolution and role checks.
package middleware

import (
	"encoding/json"
	"net/http"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/alpyxn/moviestar/internal/auth"
	"github.com/alpyxn/moviestar/internal/config"
	"github.com/alpyxn/moviestar/internal/constants"
	"github.com/alpyxn/moviestar/internal/models"
)

// Stack holds all middleware dependencies and provides
// methods to create HTTP middleware handlers.
type Stack struct {
	config   *config.Config
	sessions auth.SessionService
	limiter  *redis_rate.Limiter
	logger   *logrus.Logger
}

// NewStack creates a new middleware stack with the provided dependencies.
// redisClient is only used for rate limiting; nil disables it, which is the
// case when sessions fall back to the in-memory store.
func NewStack(
	cfg *config.Config,
	sessions auth.SessionService,
	redisClient *redis.Client,
	logger *logrus.Logger,
) *Stack {
	m := &Stack{
		config:   cfg,
		sessions: sessions,
		logger:   logger,
	}
	if redisClient != nil {
		m.limiter = redis_rate.NewLimiter(redisClient)
	}
	return m
}

// Chain wraps h so that the first middleware listed is the outermost.
func (m *Stack) Chain(h http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

func (m *Stack) writeError(w http.ResponseWriter, errResp *models.ErrorResponse) {
	WriteError(w, errResp, m.logger)
}

// WriteError writes errResp as a JSON error body with its status code.
func WriteError(w http.ResponseWriter, errResp *models.ErrorResponse, log logrus.FieldLogger) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(errResp.StatusCode)
	if err := json.NewEncoder(w).Encode(errResp); err != nil && log != nil {
		log.WithError(err).Error("Failed to encode error response")
	}
}
