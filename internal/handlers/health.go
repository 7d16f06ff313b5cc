package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/alpyxn/moviestar/internal/auth"
	"github.com/alpyxn/moviestar/internal/config"
	"github.com/alpyxn/moviestar/internal/redis"
)

const (
	// HealthCheckTimeout bounds each dependency probe.
	HealthCheckTimeout = 5 * time.Second
	// slowCheck marks a reachable but sluggish dependency as degraded.
	slowCheck = time.Second
)

// Version is set at build time with -ldflags "-X ...handlers.Version=...".
var Version = "dev"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus is the state of the gateway or one of its dependencies.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// rank orders statuses from best to worst.
func (s HealthStatus) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Env        config.Environment         `json:"environment,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	CheckedAt  time.Time                  `json:"checked_at"`
	Took       string                     `json:"took,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// ComponentHealth is the outcome of one dependency check.
type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
	Latency string       `json:"latency,omitempty"`
}

// ReadinessResponse is the body of GET /health/ready.
type ReadinessResponse struct {
	Ready      bool                       `json:"ready"`
	CheckedAt  time.Time                  `json:"checked_at"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Sessions   int                        `json:"active_sessions"`
	Backend    string                     `json:"session_backend,omitempty"`
}

// HealthMetrics holds the health endpoint's Prometheus collectors.
type HealthMetrics struct {
	HealthChecksTotal     *prometheus.CounterVec
	ComponentHealthStatus *prometheus.GaugeVec
	ActiveSessions        prometheus.Gauge
}

// NewHealthMetrics creates the health collectors and registers them with reg.
func NewHealthMetrics(reg prometheus.Registerer) *HealthMetrics {
	m := &HealthMetrics{
		HealthChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moviestar_health_checks_total",
			Help: "Health endpoint calls by endpoint and outcome",
		}, []string{"endpoint", "status"}),
		ComponentHealthStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "moviestar_component_health_status",
			Help: "Health status of gateway dependencies (1=healthy, 0=not healthy)",
		}, []string{"component"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "moviestar_active_sessions",
			Help: "Browser sessions in the session store at the last readiness check",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.HealthChecksTotal, m.ComponentHealthStatus, m.ActiveSessions)
	}
	return m
}

// dependency is one entry of the health report. A critical dependency
// that is down takes the whole gateway down; the others only degrade it.
type dependency struct {
	name     string
	critical bool
	check    func(ctx context.Context) ComponentHealth
}

// HealthHandler serves the liveness, readiness and health endpoints.
type HealthHandler struct {
	config   *config.Config
	store    redis.Store
	sessions auth.SessionService
	deps     []dependency
	metrics  *HealthMetrics
	logger   *logrus.Logger
	started  time.Time
}

// NewHealthHandler creates a new health check handler. catalog may be nil
// to skip the catalog API probe.
func NewHealthHandler(
	cfg *config.Config,
	store redis.Store,
	sessions auth.SessionService,
	catalog Pinger,
	metrics *HealthMetrics,
	logger *logrus.Logger,
) *HealthHandler {
	h := &HealthHandler{
		config:   cfg,
		store:    store,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
		started:  time.Now(),
	}

	// Without the store nobody can stay logged in.
	h.deps = append(h.deps, dependency{name: "session_store", critical: true, check: h.checkStore})
	if catalog != nil {
		h.deps = append(h.deps, dependency{name: "catalog_api", check: func(ctx context.Context) ComponentHealth {
			return h.ping(ctx, "catalog API", catalog)
		}})
	}
	h.deps = append(h.deps, dependency{name: "configuration", check: func(context.Context) ComponentHealth {
		return h.checkConfiguration()
	}})
	return h
}

// RegisterRoutes registers health check endpoints under router.
func (h *HealthHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/live", h.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", h.Readiness).Methods(http.MethodGet)
}

// Health checks every dependency concurrently and reports the worst
// outcome, where non-critical failures count as degraded.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	components := h.runChecks(r.Context(), h.deps)

	overall := StatusHealthy
	for _, dep := range h.deps {
		status := components[dep.name].Status
		if !dep.critical && status == StatusUnhealthy {
			status = StatusDegraded
		}
		if status.rank() > overall.rank() {
			overall = status
		}
	}

	for name, c := range components {
		up := 0.0
		if c.Status == StatusHealthy {
			up = 1
		}
		h.metrics.ComponentHealthStatus.WithLabelValues(name).Set(up)
	}
	h.metrics.HealthChecksTotal.WithLabelValues("health", string(overall)).Inc()

	code := http.StatusOK
	if overall == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	took := time.Since(start)
	writeJSON(w, HealthResponse{
		Status:     overall,
		Version:    Version,
		Env:        h.config.Environment.Environment,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		CheckedAt:  time.Now().UTC(),
		Took:       took.String(),
		Components: components,
	}, code, h.logger)

	h.logger.WithFields(logrus.Fields{
		"status":   overall,
		"duration": took.String(),
	}).Debug("Health check completed")
}

// Liveness answers as long as the process can serve HTTP.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	h.metrics.HealthChecksTotal.WithLabelValues("liveness", string(StatusHealthy)).Inc()
	writeJSON(w, map[string]string{
		"status": "alive",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}, http.StatusOK, h.logger)
}

// Readiness reports whether the session store answers, plus the session count.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	store := h.checkStore(ctx)

	resp := ReadinessResponse{
		Ready:      store.Status != StatusUnhealthy,
		CheckedAt:  time.Now().UTC(),
		Components: map[string]ComponentHealth{"session_store": store},
	}

	if resp.Ready && h.sessions != nil {
		statsCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
		stats, err := h.sessions.Stats(statsCtx)
		cancel()
		if err != nil {
			h.logger.WithError(err).Warn("Failed to read session stats")
		} else {
			resp.Sessions = stats.ActiveSessions
			resp.Backend = stats.Backend
			h.metrics.ActiveSessions.Set(float64(stats.ActiveSessions))
		}
	}

	outcome, code := "ready", http.StatusOK
	if !resp.Ready {
		outcome, code = "not_ready", http.StatusServiceUnavailable
	}
	h.metrics.HealthChecksTotal.WithLabelValues("readiness", outcome).Inc()

	writeJSON(w, resp, code, h.logger)
}

func (h *HealthHandler) runChecks(ctx context.Context, deps []dependency) map[string]ComponentHealth {
	var (
		mu  sync.Mutex
		out = make(map[string]ComponentHealth, len(deps))
		g   errgroup.Group
	)
	for _, dep := range deps {
		g.Go(func() error {
			c := dep.check(ctx)
			mu.Lock()
			out[dep.name] = c
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (h *HealthHandler) checkStore(ctx context.Context) ComponentHealth {
	_, inMemory := h.store.(*redis.MemoryStore)
	name := "Redis"
	if inMemory {
		name = "in-memory store"
	}

	c := h.ping(ctx, name, h.store)
	// Latency of the in-memory store says nothing about its health.
	if inMemory && c.Status == StatusDegraded {
		c.Status = StatusHealthy
		c.Message = name + " is healthy"
	}
	return c
}

func (h *HealthHandler) ping(ctx context.Context, name string, p Pinger) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	latency := time.Since(start)

	switch {
	case err != nil:
		h.logger.WithError(err).WithField("component", name).Warn("Health check failed")
		return ComponentHealth{Status: StatusUnhealthy, Message: name + " unreachable: " + err.Error(), Latency: latency.String()}
	case latency > slowCheck:
		return ComponentHealth{Status: StatusDegraded, Message: name + " is slow", Latency: latency.String()}
	default:
		return ComponentHealth{Status: StatusHealthy, Message: name + " is healthy", Latency: latency.String()}
	}
}

// checkConfiguration flags settings that leave features switched off.
func (h *HealthHandler) checkConfiguration() ComponentHealth {
	var issues []string
	if h.config.Upload.APIKey == "" {
		issues = append(issues, "image upload API key is not set")
	}
	if h.config.Environment.Environment == config.Prod && !h.config.Session.SecureCookies {
		issues = append(issues, "session cookies are not marked secure")
	}
	if h.config.Identity.MinValidity == 0 {
		issues = append(issues, "tokens are only refreshed after they expire")
	}

	if len(issues) == 0 {
		return ComponentHealth{Status: StatusHealthy, Message: "configuration is complete"}
	}
	return ComponentHealth{Status: StatusDegraded, Message: strings.Join(issues, "; ")}
}
