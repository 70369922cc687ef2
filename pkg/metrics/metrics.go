// Package metrics provides Prometheus instrumentation for the AI
// enrichment layer: cache effectiveness, remote-call outcomes, retries,
// coalescing, and circuit-breaker activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for tasklift.
type Metrics struct {
	CacheHits       *prometheus.CounterVec
	CacheMisses     *prometheus.CounterVec
	RemoteCalls     *prometheus.CounterVec
	CallDuration    *prometheus.HistogramVec
	CoalescedWaits  *prometheus.CounterVec
	Retries         *prometheus.CounterVec
	BreakerTrips    prometheus.Counter
	CooldownRejects prometheus.Counter
	ThrottleRejects prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all tasklift metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	// Include default Go and process collectors
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasklift_cache_hits_total",
				Help: "Cache hits by operation family.",
			},
			[]string{"family"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasklift_cache_misses_total",
				Help: "Cache misses by operation family.",
			},
			[]string{"family"},
		),
		RemoteCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasklift_remote_calls_total",
				Help: "Remote generation call attempts by family and outcome class.",
			},
			[]string{"family", "outcome"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tasklift_remote_call_duration_seconds",
				Help:    "Remote generation call latency distribution.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"family"},
		),
		CoalescedWaits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasklift_coalesced_waits_total",
				Help: "Callers that shared another caller's in-flight remote call.",
			},
			[]string{"family"},
		),
		Retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasklift_retries_total",
				Help: "Backoff retries issued for transient rate limits, by family.",
			},
			[]string{"family"},
		),
		BreakerTrips: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tasklift_breaker_trips_total",
				Help: "Times the quota circuit breaker was armed.",
			},
		),
		CooldownRejects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tasklift_cooldown_rejects_total",
				Help: "Calls refused without a network attempt while the breaker was active.",
			},
		),
		ThrottleRejects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tasklift_throttle_rejects_total",
				Help: "Refine calls served the inert default by the per-minute throttle.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.CacheHits,
		m.CacheMisses,
		m.RemoteCalls,
		m.CallDuration,
		m.CoalescedWaits,
		m.Retries,
		m.BreakerTrips,
		m.CooldownRejects,
		m.ThrottleRejects,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
