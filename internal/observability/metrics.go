package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds the engine's Prometheus metrics.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Submission metrics.
	SubmissionsTotal   *prometheus.CounterVec
	SubmissionDuration *prometheus.HistogramVec
	RejectionsTotal    *prometheus.CounterVec
	ActiveRuns         prometheus.Gauge

	// Capability metrics (script-facing, cache included).
	CapabilityCallsTotal   *prometheus.CounterVec
	CapabilityLoadDuration *prometheus.HistogramVec

	// Provider metrics (loads that reached the provider).
	ProviderRequestsTotal   *prometheus.CounterVec
	ProviderRequestDuration *prometheus.HistogramVec
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		SubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cexrpt",
			Subsystem: "engine",
			Name:      "submissions_total",
			Help:      "Total script submissions by outcome.",
		}, []string{"outcome"}),

		SubmissionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cexrpt",
			Subsystem: "engine",
			Name:      "submission_duration_seconds",
			Help:      "End-to-end submission duration in seconds.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"outcome"}),

		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cexrpt",
			Subsystem: "validator",
			Name:      "rejections_total",
			Help:      "Total validation rejections by class.",
		}, []string{"class"}),

		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cexrpt",
			Subsystem: "engine",
			Name:      "active_runs",
			Help:      "Script runs currently executing.",
		}),

		CapabilityCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cexrpt",
			Subsystem: "capability",
			Name:      "calls_total",
			Help:      "Total data function calls by capability and status.",
		}, []string{"capability", "status"}),

		CapabilityLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cexrpt",
			Subsystem: "capability",
			Name:      "load_duration_seconds",
			Help:      "Data function load duration in seconds, cache included.",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"capability"}),

		ProviderRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cexrpt",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Total provider loads by capability and status.",
		}, []string{"capability", "status"}),

		ProviderRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cexrpt",
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Provider load duration in seconds.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		}, []string{"capability"}),
	}

	reg.MustRegister(
		m.SubmissionsTotal,
		m.SubmissionDuration,
		m.RejectionsTotal,
		m.ActiveRuns,
		m.CapabilityCallsTotal,
		m.CapabilityLoadDuration,
		m.ProviderRequestsTotal,
		m.ProviderRequestDuration,
	)

	return m
}
