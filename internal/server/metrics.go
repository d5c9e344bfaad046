package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler is the "handler" label used to partition metrics by route
// pattern rather than the raw URL path, which carries book ids.
const labelHandler = "handler"

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
type serverMetrics struct {
	// suggestRequestsTotal counts completed /suggest streams by outcome:
	// "ok", "timeout", or "error".
	suggestRequestsTotal *prometheus.CounterVec

	// suggestDurationSeconds records the wall-clock duration of each /suggest stream.
	suggestDurationSeconds *prometheus.HistogramVec

	// suggestActiveStreams is the number of /suggest SSE streams currently open.
	suggestActiveStreams prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests handled by the mux.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec

	// rateLimitedTotal counts 429 responses by limiter tier ("query", "reindex").
	rateLimitedTotal *prometheus.CounterVec
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		suggestRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plotline",
			Subsystem: "suggest",
			Name:      "requests_total",
			Help:      "Total number of /suggest requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		suggestDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "plotline",
			Subsystem: "suggest",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /suggest streams from receipt to completion.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),

		suggestActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "plotline",
			Subsystem: "suggest",
			Name:      "active_streams",
			Help:      "Number of /suggest SSE streams currently open.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plotline",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "plotline",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),

		rateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plotline",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected with 429, partitioned by limiter tier.",
		}, []string{"tier"}),
	}
}
