package middleware

import (
	"math"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/sirupsen/logrus"

	"github.com/alpyxn/moviestar/internal/constants"
	"github.com/alpyxn/moviestar/internal/models"
)

const rateLimitKeyPrefix = "moviestar:ratelimit:client:"

// RateLimit limits requests per client IP with redis_rate's GCRA at
// Security.RateLimitRPS. Without Redis it is a no-op, and a Redis error lets
// the request through.
func (m *Stack) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil || m.config.Security.RateLimitRPS <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := m.clientIP(r)
		res, err := m.limiter.Allow(r.Context(), rateLimitKeyPrefix+ip, redis_rate.PerSecond(m.config.Security.RateLimitRPS))
		if err != nil {
			m.logger.WithError(err).Error("Failed to check rate limit")
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-Ratelimit-Limit", strconv.Itoa(res.Limit.Burst))
		h.Set("X-Ratelimit-Remaining", strconv.Itoa(res.Remaining))

		if res.Allowed > 0 {
			next.ServeHTTP(w, r)
			return
		}

		m.logger.WithFields(logrus.Fields{
			"client_ip": ip,
			"method":    r.Method,
			"path":      r.URL.Path,
		}).Warn("Rate limit exceeded")

		h.Set(constants.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
		m.writeError(w, &models.ErrorResponse{
			Code:        "rate_limited",
			Description: "Too many requests",
			StatusCode:  http.StatusTooManyRequests,
		})
	})
}

// clientIP is the address the request came from. Forwarding headers are
// only believed when the direct peer is a trusted proxy, so clients cannot
// pick their own rate limit bucket.
func (m *Stack) clientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !slices.Contains(m.config.Security.TrustedProxies, peer) {
		return peer
	}
	if xff := r.Header.Get(constants.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get(constants.HeaderXRealIP); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	return peer
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
