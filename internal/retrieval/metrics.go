package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type serviceMetrics struct {
	// reindexEntities counts entities visited by reindex, by outcome
	// ("indexed", "skipped", "failed").
	reindexEntities *prometheus.CounterVec

	// reindexDuration records full reindex latency.
	reindexDuration prometheus.Histogram

	// searchTotal counts searches by outcome ("ok", "degraded", "error").
	searchTotal *prometheus.CounterVec

	// chunksWritten counts chunks upserted through the service.
	chunksWritten prometheus.Counter
}

func newServiceMetrics(reg prometheus.Registerer) *serviceMetrics {
	factory := promauto.With(reg)

	return &serviceMetrics{
		reindexEntities: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plotline",
			Subsystem: "retrieval",
			Name:      "reindex_entities_total",
			Help:      "Entities visited by collection reindex, partitioned by outcome.",
		}, []string{"outcome"}),

		reindexDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "plotline",
			Subsystem: "retrieval",
			Name:      "reindex_duration_seconds",
			Help:      "Wall-clock duration of a full collection reindex.",
			Buckets:   []float64{0.5, 1, 5, 15, 60, 300, 900},
		}),

		searchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plotline",
			Subsystem: "retrieval",
			Name:      "search_total",
			Help:      "Similarity searches, partitioned by outcome.",
		}, []string{"outcome"}),

		chunksWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "plotline",
			Subsystem: "retrieval",
			Name:      "chunks_written_total",
			Help:      "Chunks written by reindex and incremental updates.",
		}),
	}
}
