package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "facematch"

var (
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_calls_total",
		Help:      "Face provider calls by provider, operation and outcome",
	}, []string{"provider", "operation", "outcome"})

	ProviderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "provider_call_duration_seconds",
		Help:      "Duration of face provider calls",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"provider", "operation"})

	SearchMatches = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "search_matches",
		Help:      "Number of matches returned per face search",
		Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
	})

	SearchReferenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_reference_failures_total",
		Help:      "References scored as zero because comparison failed",
	})

	RegeneratedEmbeddings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "regenerated_embeddings_total",
		Help:      "Embedding regeneration outcomes",
	}, []string{"outcome"})

	ConfigCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_config_cache_lookups_total",
		Help:      "Provider configuration cache lookups by result",
	}, []string{"result"})

	PhotoCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "photo_cache_lookups_total",
		Help:      "Reference photo cache lookups by result",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_processed_total",
		Help:      "Queue events processed by subject and outcome",
	}, []string{"subject", "outcome"})
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	ResultHit      = "hit"
	ResultMiss     = "miss"
)
