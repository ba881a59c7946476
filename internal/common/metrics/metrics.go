package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecommendationsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendations_served_total",
			Help: "Total number of recommendation responses by source",
		},
		[]string{"source"},
	)

	RecommendationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_errors_total",
			Help: "Total number of failed recommendation requests by error code",
		},
		[]string{"error_code"},
	)

	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_cache_operations_total",
			Help: "Cache operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	ScoringDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendation_scoring_duration_seconds",
			Help:    "Time spent scoring and ranking a candidate set",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	CandidatesScored = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recommendation_candidates_scored",
			Help:    "Number of candidates scored per computed request",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
	)

	InteractionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interactions_recorded_total",
			Help: "Interactions upserted by kind",
		},
		[]string{"kind"},
	)

	StoreRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feature_store_retries_total",
			Help: "Feature store operations retried after a transient failure",
		},
		[]string{"operation"},
	)

	CacheBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recommendation_cache_breaker_state",
			Help: "Cache circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)
