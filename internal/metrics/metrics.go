package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartcache_hits_total",
			Help: "SmartCache hits by cache name",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartcache_misses_total",
			Help: "SmartCache misses (absent or expired) by cache name",
		},
		[]string{"cache"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartcache_evictions_total",
			Help: "SmartCache removals by cache name and reason",
		},
		[]string{"cache", "reason"}, // "pressure", "expired", "tag"
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "smartcache_entries",
			Help: "Current SmartCache entry count",
		},
		[]string{"cache"},
	)

	SimilarityLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "similarity_cache_lookups_total",
			Help: "Cosine similarity cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss"
	)

	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_requests_total",
			Help: "Embedding generations by outcome",
		},
		[]string{"kind", "outcome"}, // outcome: "upstream", "fallback"
	)

	ScoringFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scoring_candidate_failures_total",
			Help: "Candidates that fell back to minimal confidence",
		},
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommendation_duration_seconds",
			Help:    "End-to-end recommendation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"cache_hit"},
	)

	DegradedResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommendation_degraded_total",
			Help: "Degraded recommendation responses by reason",
		},
		[]string{"reason"},
	)
)
