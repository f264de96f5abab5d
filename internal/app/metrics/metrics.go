package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "archive_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "archive_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive_layer",
			Subsystem: "evaluation",
			Name:      "evaluations_total",
			Help:      "Total number of completed evaluations.",
		},
		[]string{"outcome"},
	)

	oracleCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive_layer",
			Subsystem: "oracle",
			Name:      "calls_total",
			Help:      "Total number of oracle invocations.",
		},
		[]string{"success"},
	)

	oracleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "archive_layer",
			Subsystem: "oracle",
			Name:      "call_duration_seconds",
			Help:      "Duration of oracle invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10), // 500ms to ~4m
		},
	)

	allocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive_layer",
			Subsystem: "ledger",
			Name:      "allocations_total",
			Help:      "Total number of confirmed allocations.",
		},
		[]string{"epoch", "tag"},
	)

	allocatedTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "archive_layer",
			Subsystem: "ledger",
			Name:      "allocated_tokens_total",
			Help:      "Total token amount allocated per epoch.",
		},
		[]string{"epoch"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		evaluations,
		oracleCalls,
		oracleDuration,
		allocations,
		allocatedTokens,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordEvaluation counts a finished evaluation by outcome
// (qualified/unqualified/error).
func RecordEvaluation(outcome string) {
	evaluations.WithLabelValues(outcome).Inc()
}

// RecordOracleCall records one oracle invocation.
func RecordOracleCall(duration time.Duration, success bool) {
	result := "false"
	if success {
		result = "true"
	}
	oracleCalls.WithLabelValues(result).Inc()
	if duration > 0 {
		oracleDuration.Observe(duration.Seconds())
	}
}

// RecordAllocation records a confirmed ledger allocation.
func RecordAllocation(epoch, tag string, amount float64) {
	allocations.WithLabelValues(epoch, tag).Inc()
	if amount > 0 {
		allocatedTokens.WithLabelValues(epoch).Add(amount)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses record IDs so the path label stays low-cardinality.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "contributions" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/contributions"
	}
	if len(parts) == 2 {
		return "/contributions/:id"
	}
	return "/contributions/:id/" + parts[2]
}
