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
	// CacheOperationGet records cache read calls.
	CacheOperationGet CacheOperation = "get"
	// CacheOperationSet records cache write attempts.
	CacheOperationSet CacheOperation = "set"
)

// CacheResult captures the outcome of a cache operation.
type CacheResult string

const (
	// CacheHit indicates a read returned a live entry.
	CacheHit CacheResult = "hit"
	// CacheMiss indicates no live entry was present.
	CacheMiss CacheResult = "miss"
	// CacheStored indicates a write persisted the entry.
	CacheStored CacheResult = "stored"
	// CacheError indicates the operation failed against the backend.
	CacheError CacheResult = "error"
)

// Recorder publishes Prometheus metrics for the render pipeline.
type Recorder struct {
	gatherer prometheus.Gatherer
	handler  http.Handler

	renderRequests *prometheus.CounterVec
	renderLatency  *prometheus.HistogramVec

	cacheOperations *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec
}

// NewRecorder constructs a Prometheus-backed Recorder. When reg is nil a dedicated
// registry is created so multiple recorders can coexist without conflicting with
// the global default registerer.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	renderRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pagesnap",
		Subsystem: "render",
		Name:      "requests_total",
		Help:      "Total /render requests processed by the orchestrator.",
	}, []string{"outcome", "status_code", "from_cache"})

	renderLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pagesnap",
		Subsystem: "render",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for completed /render requests.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"outcome"})

	cacheOperations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pagesnap",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Cache store operations executed by the pipeline.",
	}, []string{"operation", "result"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pagesnap",
		Subsystem: "cache",
		Name:      "operation_duration_seconds",
		Help:      "Latency distribution for cache store operations.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"operation", "result"})

	reg.MustRegister(renderRequests, renderLatency, cacheOperations, cacheLatency)

	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return &Recorder{
		gatherer:        reg,
		handler:         handler,
		renderRequests:  renderRequests,
		renderLatency:   renderLatency,
		cacheOperations: cacheOperations,
		cacheLatency:    cacheLatency,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
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

// ObserveRender records the outcome and latency for a completed /render request.
func (r *Recorder) ObserveRender(outcome string, statusCode int, fromCache bool, duration time.Duration) {
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
	r.renderRequests.WithLabelValues(outcomeLabel, statusLabel, cacheLabel).Inc()
	r.renderLatency.WithLabelValues(outcomeLabel).Observe(duration.Seconds())
}

// ObserveCache records the result of a cache store operation.
func (r *Recorder) ObserveCache(operation CacheOperation, result CacheResult, duration time.Duration) {
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

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
