package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the security kernel
type Metrics struct {
	// Authentication metrics
	LoginAttemptsTotal *prometheus.CounterVec // outcome: success, failure, banned
	TokenMintsTotal    prometheus.Counter
	TokenVerifiesTotal *prometheus.CounterVec // outcome: valid, invalid, expired
	ClientsBannedTotal prometheus.Counter

	// Authorization metrics
	ActionChecksTotal  *prometheus.CounterVec // action, decision
	ActionCheckSeconds *prometheus.HistogramVec

	// Resource descriptor metrics
	DescriptorOpsTotal   *prometheus.CounterVec // op, outcome
	DescriptorsCached    prometheus.Gauge
	DescriptorLoadErrors prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,

		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citadel_login_attempts_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		TokenMintsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "citadel_token_mints_total",
				Help: "Bearer tokens minted",
			},
		),
		TokenVerifiesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citadel_token_verifies_total",
				Help: "Token verifications by outcome",
			},
			[]string{"outcome"},
		),
		// Bans are lifted lazily inside the trackers, so only the
		// monotonic trip count is observable.
		ClientsBannedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "citadel_clients_banned_total",
				Help: "Clients banned for repeated login failures",
			},
		),

		ActionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citadel_action_checks_total",
				Help: "checkAction calls by action and decision",
			},
			[]string{"action", "decision"},
		),
		ActionCheckSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "citadel_action_check_duration_seconds",
				Help:    "checkAction latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),

		DescriptorOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "citadel_descriptor_operations_total",
				Help: "Secured resource descriptor operations by outcome",
			},
			[]string{"op", "outcome"},
		),
		DescriptorsCached: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "citadel_descriptors_cached",
				Help: "Resource descriptors held in the in-memory cache",
			},
		),
		DescriptorLoadErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "citadel_descriptor_load_errors_total",
				Help: "Malformed descriptor files skipped during bulk loads",
			},
		),
	}

	registry.MustRegister(
		m.LoginAttemptsTotal,
		m.TokenMintsTotal,
		m.TokenVerifiesTotal,
		m.ClientsBannedTotal,
		m.ActionChecksTotal,
		m.ActionCheckSeconds,
		m.DescriptorOpsTotal,
		m.DescriptorsCached,
		m.DescriptorLoadErrors,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveActionCheck records one checkAction call
func (m *Metrics) ObserveActionCheck(action, decision string, elapsed time.Duration) {
	m.ActionChecksTotal.WithLabelValues(action, decision).Inc()
	m.ActionCheckSeconds.WithLabelValues(action).Observe(elapsed.Seconds())
}
