package client

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	refreshes      *prometheus.CounterVec
	refreshWaiters prometheus.Gauge
	retries        prometheus.Counter
}

// NewMetrics creates the gateway collectors and registers them with reg.
// One instance is shared by every gateway in the process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moviestar_gateway_requests_total",
				Help: "Outbound catalog API requests by method and status class",
			},
			[]string{"method", "status"},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moviestar_gateway_token_refreshes_total",
				Help: "Token refresh round-trips by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		refreshWaiters: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "moviestar_gateway_refresh_waiters",
				Help: "Requests currently queued behind an in-flight token refresh",
			},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "moviestar_gateway_unauthorized_retries_total",
				Help: "Requests resubmitted after a 401 and a forced refresh",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.refreshes, m.refreshWaiters, m.retries)
	}
	return m
}

func (m *Metrics) observeRequest(method string, status int) {
	if m == nil {
		return
	}
	class := "error"
	if status > 0 {
		class = strconv.Itoa(status/100) + "xx"
	}
	m.requests.WithLabelValues(method, class).Inc()
}

func (m *Metrics) observeRefresh(trigger string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.refreshes.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) addWaiters(n int) {
	if m == nil {
		return
	}
	m.refreshWaiters.Add(float64(n))
}

func (m *Metrics) observeRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
