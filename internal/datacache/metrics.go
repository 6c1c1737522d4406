package datacache

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the dataset cache.
type Metrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Coalesced prometheus.Counter
	Entries   prometheus.Gauge
	Sweeps    prometheus.Counter
}

// NewMetrics creates and registers cache metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cexrpt",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total reads served from a fresh cache entry.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cexrpt",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total reads that required a provider load.",
		}),
		Coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cexrpt",
			Subsystem: "cache",
			Name:      "coalesced_total",
			Help:      "Total reads that shared another caller's in-flight load.",
		}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cexrpt",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Cache entries currently held.",
		}),
		Sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cexrpt",
			Subsystem: "cache",
			Name:      "swept_entries_total",
			Help:      "Total expired entries removed by the janitor.",
		}),
	}

	reg.MustRegister(
		m.Hits,
		m.Misses,
		m.Coalesced,
		m.Entries,
		m.Sweeps,
	)

	return m
}
