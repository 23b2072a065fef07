package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream feature service calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	layerQueryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "layer_query_duration_seconds",
			Help:    "Duration of one full per-layer query (both passes) in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"layer", "status"},
	)

	fetchPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_pages_total",
			Help: "Pages requested from upstream feature services.",
		},
		[]string{"layer"},
	)

	fetchTruncatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_truncated_total",
			Help: "Fetch loops stopped at the record safety ceiling.",
		},
		[]string{"layer"},
	)

	featuresDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "features_dropped_total",
			Help: "Features dropped during evaluation by reason.",
		},
		[]string{"reason"},
	)

	cacheOpTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Cache operations by op and outcome.",
		},
		[]string{"op", "outcome"},
	)

	cacheOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Duration of Redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cache results by outcome.",
		},
		[]string{"outcome"},
	)

	invalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidations_total",
			Help: "Invalidation events processed by op and outcome.",
		},
		[]string{"op", "layer", "outcome"},
	)

	invalidationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "invalidation_duration_seconds",
			Help:    "Duration of invalidation event handling in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	invalidationKeysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_keys_total",
			Help: "Cache keys deleted by invalidation events.",
		},
		[]string{"layer"},
	)

	kafkaConsumerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func ObserveLayerQuery(layer, status string, durationSeconds float64) {
	layerQueryDurationSeconds.WithLabelValues(layer, status).Observe(durationSeconds)
}

func IncFetchPage(layer string) {
	fetchPagesTotal.WithLabelValues(layer).Inc()
}

func IncFetchTruncated(layer string) {
	fetchTruncatedTotal.WithLabelValues(layer).Inc()
}

func IncFeatureDropped(reason string) {
	featuresDroppedTotal.WithLabelValues(reason).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	cacheOpTotal.WithLabelValues(op, outcome).Inc()
	cacheOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func AddCacheHits(n int) {
	if n > 0 {
		cacheResults.WithLabelValues("hit").Add(float64(n))
	}
}

func AddCacheMisses(n int) {
	if n > 0 {
		cacheResults.WithLabelValues("miss").Add(float64(n))
	}
}

func ObserveInvalidation(op, layer string, keys int, dur time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	invalidationsTotal.WithLabelValues(op, layer, outcome).Inc()
	invalidationDurationSeconds.WithLabelValues(op).Observe(dur.Seconds())
	if keys > 0 {
		invalidationKeysTotal.WithLabelValues(layer).Add(float64(keys))
	}
}

func IncKafkaConsumerError(kind string) {
	kafkaConsumerErrors.WithLabelValues(kind).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
