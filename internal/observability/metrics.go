package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the ingestion core. Advisory
// only: nothing in the core depends on them for correctness.
type Metrics struct {
	FetchPasses        *prometheus.CounterVec
	FetchFailures      *prometheus.CounterVec
	RowsIngested       *prometheus.CounterVec
	GrowersCacheHits   prometheus.Counter
	GrowersCacheMisses prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchPasses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "driverscout_fetch_passes_total",
			Help: "Completed ingestion passes by category.",
		}, []string{"category"}),
		FetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "driverscout_fetch_failures_total",
			Help: "Failed ingestion passes by category.",
		}, []string{"category"}),
		RowsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "driverscout_rows_ingested_total",
			Help: "Normalized rows persisted by category.",
		}, []string{"category"}),
		GrowersCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "driverscout_growers_cache_hits_total",
			Help: "Top-growers requests served from cache.",
		}),
		GrowersCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "driverscout_growers_cache_misses_total",
			Help: "Top-growers requests that recomputed the leaderboard.",
		}),
	}
}
