// Package telemetry exposes Prometheus collectors for the extractor
// service.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	extractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_articles_total",
			Help: "Total number of articles processed, labeled by route and final status.",
		},
		[]string{"route", "status"},
	)

	browserSecondsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "extractor_browser_seconds_total",
			Help: "Total measured headless browser seconds consumed.",
		},
	)

	governorDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_governor_denials_total",
			Help: "Total governor acquire denials, labeled by reason.",
		},
		[]string{"reason"},
	)

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
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveExtraction increments the article outcome counter.
func ObserveExtraction(route, status string) {
	extractionsTotal.WithLabelValues(route, status).Inc()
}

// ObserveBrowserSeconds adds measured renderer usage.
func ObserveBrowserSeconds(seconds int) {
	if seconds > 0 {
		browserSecondsTotal.Add(float64(seconds))
	}
}

// ObserveGovernorDenial increments the denial counter for a reason.
func ObserveGovernorDenial(reason string) {
	governorDenialsTotal.WithLabelValues(reason).Inc()
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
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
