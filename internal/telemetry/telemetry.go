// Package telemetry exposes Prometheus collectors for the service.
package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	jobsTotal                  *prometheus.CounterVec
	stageEventsTotal           *prometheus.CounterVec
	resultsRecordedTotal       prometheus.Counter
	validationsTotal           *prometheus.CounterVec
	searchDurationSeconds      prometheus.Histogram
	signedURLCacheTotal        *prometheus.CounterVec
	subscriberDropsTotal       prometheus.Counter
	activeValidationWorkers    prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "argus_jobs_total",
				Help: "Total number of job status transitions, labeled by status.",
			},
			[]string{"status"},
		)

		stageEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "argus_stage_events_total",
				Help: "Total number of stage events recorded, labeled by event type.",
			},
			[]string{"type"},
		)

		resultsRecordedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "argus_results_recorded_total",
				Help: "Total number of job results ingested.",
			},
		)

		validationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "argus_validations_total",
				Help: "Total number of computed validations, labeled by outcome status.",
			},
			[]string{"status"},
		)

		searchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "argus_search_duration_seconds",
				Help:    "Histogram of similarity search latencies.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		)

		signedURLCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "argus_signed_url_cache_total",
				Help: "Signed URL cache lookups, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		subscriberDropsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "argus_monitor_subscriber_drops_total",
				Help: "Total job updates dropped because a subscriber buffer was full.",
			},
		)

		activeValidationWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "argus_validation_active_workers",
				Help: "Number of workers currently computing a validation.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}
		ObserveHTTPRequest(r.Method, route, rec.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJob increments the job transition counter for the given status.
func ObserveJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveStageEvent increments the stage event counter for the given type.
func ObserveStageEvent(eventType string) {
	stageEventsTotal.WithLabelValues(eventType).Inc()
}

// ObserveResults adds n to the ingested result counter.
func ObserveResults(n int) {
	if n > 0 {
		resultsRecordedTotal.Add(float64(n))
	}
}

// ObserveValidation increments the validation counter for the given status.
func ObserveValidation(status string) {
	validationsTotal.WithLabelValues(status).Inc()
}

// ObserveSearch records the duration of one similarity search.
func ObserveSearch(duration time.Duration) {
	searchDurationSeconds.Observe(duration.Seconds())
}

// ObserveSignedURLCache records one cache lookup outcome.
func ObserveSignedURLCache(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	signedURLCacheTotal.WithLabelValues(outcome).Inc()
}

// ObserveSubscriberDrop counts one update dropped on a full subscriber.
func ObserveSubscriberDrop() {
	subscriberDropsTotal.Inc()
}

// IncActiveWorkers increments the active validation workers gauge.
func IncActiveWorkers() {
	activeValidationWorkers.Inc()
}

// DecActiveWorkers decrements the active validation workers gauge.
func DecActiveWorkers() {
	activeValidationWorkers.Dec()
}
