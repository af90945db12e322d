package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "portfolio_host"

// Metrics holds all Prometheus metrics for the host service.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	Resolutions        *prometheus.CounterVec
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	DirectoryLookups   prometheus.Counter
	Invalidations      *prometheus.CounterVec
	BindingTransitions *prometheus.CounterVec
	BillingEvents      *prometheus.CounterVec
	ProviderCalls      *prometheus.CounterVec
	ProviderLatency    *prometheus.HistogramVec
}

// New initializes the metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Host resolutions by classification and outcome.",
		}, []string{"classification", "result"}), // result: found, absent, not_entitled
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "cache_hits_total",
			Help:      "Total number of resolved-host cache hits.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "cache_misses_total",
			Help:      "Total number of resolved-host cache misses.",
		}),
		DirectoryLookups: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "directory_lookups_total",
			Help:      "Directory queries issued after collapsing concurrent misses.",
		}),
		Invalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Invalidated keys by kind and target.",
		}, []string{"kind", "target"}), // target: host_cache, render, broadcast
		BindingTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "binding",
			Name:      "transitions_total",
			Help:      "Domain binding state transitions by target status.",
		}, []string{"status"}),
		BillingEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "events_total",
			Help:      "Billing events by outcome.",
		}, []string{"outcome"}), // applied, duplicate, stale, linked, unknown_customer, error
		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "External provider calls by provider, operation and outcome.",
		}, []string{"provider", "operation", "outcome"}),
		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "External provider call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
	}
}

func (m *Metrics) ObserveResolution(classification, result string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(classification, result).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

func (m *Metrics) DirectoryLookup() {
	if m == nil {
		return
	}
	m.DirectoryLookups.Inc()
}

func (m *Metrics) Invalidated(kind, target string, n int) {
	if m == nil {
		return
	}
	m.Invalidations.WithLabelValues(kind, target).Add(float64(n))
}

func (m *Metrics) BindingTransition(status string) {
	if m == nil {
		return
	}
	m.BindingTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) BillingEvent(outcome string) {
	if m == nil {
		return
	}
	m.BillingEvents.WithLabelValues(outcome).Inc()
}

// ProviderCall records one external provider call
func (m *Metrics) ProviderCall(provider, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ProviderCalls.WithLabelValues(provider, operation, outcome).Inc()
	m.ProviderLatency.WithLabelValues(provider, operation).Observe(seconds)
}
