package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CacheOperation identifies the cache method being instrumented.
type CacheOperation string

const (
	// CacheOperationGet records result cache reads.
	CacheOperationGet CacheOperation = "get"
	// CacheOperationSet records result cache write attempts.
	CacheOperationSet CacheOperation = "set"
)

// CacheOutcome captures the result of a cache operation.
type CacheOutcome string

const (
	// CacheHit indicates the read returned a stored entry.
	CacheHit CacheOutcome = "hit"
	// CacheMiss indicates no entry was present.
	CacheMiss CacheOutcome = "miss"
	// CacheStored indicates a write persisted an entry.
	CacheStored CacheOutcome = "stored"
	// CacheError indicates the store reported a failure.
	CacheError CacheOutcome = "error"
)

// RateLimitOutcome captures the result of a rate-limit check.
type RateLimitOutcome string

const (
	// RateLimitAllowed indicates the request fit inside the window.
	RateLimitAllowed RateLimitOutcome = "allowed"
	// RateLimitDenied indicates the window budget was exhausted.
	RateLimitDenied RateLimitOutcome = "denied"
	// RateLimitFailOpen indicates a store error let the request through.
	RateLimitFailOpen RateLimitOutcome = "fail_open"
)

// Recorder publishes Prometheus metrics for proxy activity.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	searchRequests *prometheus.CounterVec
	searchLatency  *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec

	rateLimitDecisions *prometheus.CounterVec

	upstreamRequests *prometheus.CounterVec
	upstreamLatency  prometheus.Histogram
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a
// dedicated registry is created so multiple recorders can coexist without
// conflicting with the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	searchRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "searchedge",
		Subsystem: "search",
		Name:      "requests_total",
		Help:      "Total search requests processed by the proxy.",
	}, []string{"outcome", "status_code", "cache"})

	searchLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "searchedge",
		Subsystem: "search",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed search requests.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"outcome"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "searchedge",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Result cache operations executed by the proxy.",
	}, []string{"operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "searchedge",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for result cache operations.",
		Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}, []string{"operation", "result"})

	rateLimitDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "searchedge",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Fixed-window rate limit decisions, including fail-open recoveries.",
	}, []string{"result"})

	upstreamRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "searchedge",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Outbound upstream search calls by terminal result.",
	}, []string{"result"})

	upstreamLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "searchedge",
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for upstream search calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	})

	reg.MustRegister(searchRequests, searchLatency, cacheOperations, cacheLatency, rateLimitDecisions, upstreamRequests, upstreamLatency)

	return &Recorder{
		gatherer:           reg,
		handler:            promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		searchRequests:     searchRequests,
		searchLatency:      searchLatency,
		cacheOperations:    cacheOperations,
		cacheLatency:       cacheLatency,
		rateLimitDecisions: rateLimitDecisions,
		upstreamRequests:   upstreamRequests,
		upstreamLatency:    upstreamLatency,
	}
}

// Handler exposes the /metrics endpoint for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return r.handler
}

// Gatherer returns the underlying Prometheus gatherer for tests and advanced
// integrations.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.gatherer
}

// ObserveSearch records the outcome and latency for a completed search
// request.
func (r *Recorder) ObserveSearch(outcome string, statusCode int, fromCache bool, duration time.Duration) {
	if r == nil {
		return
	}
	outcomeLabel := normalizeLabel(outcome)
	statusLabel := strconv.Itoa(statusCode)
	if statusCode <= 0 {
		statusLabel = "unknown"
	}
	cacheLabel := "false"
	if fromCache {
		cacheLabel = "true"
	}
	r.searchRequests.WithLabelValues(outcomeLabel, statusLabel, cacheLabel).Inc()
	r.searchLatency.WithLabelValues(outcomeLabel).Observe(duration.Seconds())
}

// ObserveCache records the result of a cache get or set.
func (r *Recorder) ObserveCache(operation CacheOperation, result CacheOutcome, duration time.Duration) {
	if r == nil {
		return
	}
	opLabel := string(operation)
	if opLabel == "" {
		opLabel = string(CacheOperationGet)
	}
	resLabel := normalizeLabel(string(result))
	r.cacheOperations.WithLabelValues(opLabel, resLabel).Inc()
	r.cacheLatency.WithLabelValues(opLabel, resLabel).Observe(duration.Seconds())
}

// ObserveRateLimit records a rate-limit decision.
func (r *Recorder) ObserveRateLimit(result RateLimitOutcome) {
	if r == nil {
		return
	}
	r.rateLimitDecisions.WithLabelValues(normalizeLabel(string(result))).Inc()
}

// ObserveUpstream records an outbound search call.
func (r *Recorder) ObserveUpstream(result string, duration time.Duration) {
	if r == nil {
		return
	}
	r.upstreamRequests.WithLabelValues(normalizeLabel(result)).Inc()
	r.upstreamLatency.Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
