package embedder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// adapterMetrics holds the Prometheus collectors owned by an Adapter.
type adapterMetrics struct {
	// requestsTotal counts provider calls by provider label and outcome ("ok", "error").
	requestsTotal *prometheus.CounterVec

	// durationSeconds records provider call latency.
	durationSeconds *prometheus.HistogramVec

	// fallbackTotal counts calls where the caller's provider failed and the
	// default provider was used instead.
	fallbackTotal *prometheus.CounterVec
}

// newAdapterMetrics registers the adapter collectors against reg. A nil reg
// yields working but unregistered collectors.
func newAdapterMetrics(reg prometheus.Registerer) *adapterMetrics {
	factory := promauto.With(reg)

	return &adapterMetrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plotline",
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Embedding provider calls, partitioned by provider and outcome.",
		}, []string{"provider", "outcome"}),

		durationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "plotline",
			Subsystem: "embedding",
			Name:      "duration_seconds",
			Help:      "Latency of embedding provider calls.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),

		fallbackTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plotline",
			Subsystem: "embedding",
			Name:      "fallback_total",
			Help:      "Embed calls that fell back from the caller's provider to the default provider.",
		}, []string{"from", "to"}),
	}
}
