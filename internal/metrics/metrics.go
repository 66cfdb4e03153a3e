package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"tier"}, // tier: device_meta, pipeline, agg
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"tier"},
	)

	CacheAdmissionRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_admission_rejected_total",
			Help: "Total number of results rejected by the size guard",
		},
		[]string{"tier"},
	)

	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Total number of write-path invalidation runs",
		},
	)

	CacheKeysInvalidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_keys_invalidated_total",
			Help: "Total number of keys removed by invalidation",
		},
	)

	CacheDegradedOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_degraded_operations_total",
			Help: "Total number of cache operations absorbed as miss/no-op due to backend failure",
		},
		[]string{"op"}, // op: get, set, delete, delete_pattern, stats
	)

	CacheOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_operation_duration_seconds",
			Help:    "Duration of cache backend operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
		[]string{"op"},
	)

	// Backend status gauges, updated by the stats collector
	CacheBackendUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_backend_up",
			Help: "Whether the cache backend is reachable (1) or not (0)",
		},
	)

	CacheBackendKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_backend_keys",
			Help: "Number of keys under the cache namespace",
		},
	)

	// Source store metrics
	SourceQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "source_query_duration_seconds",
			Help:    "Duration of source store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"}, // op: aggregate, resolve, insert
	)

	SourceQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_queries_total",
			Help: "Total number of source store operations",
		},
		[]string{"op"}, // op: resolve_device, aggregate, insert
	)

	// Circuit breaker state (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current state of circuit breakers (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker open transitions",
		},
		[]string{"name"},
	)
)
