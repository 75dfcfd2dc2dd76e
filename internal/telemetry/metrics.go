// Package telemetry exposes Prometheus metrics for the audience
// engine.
package telemetry

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	httpDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// EstimatesTotal counts reach estimates served, labeled by outcome.
	EstimatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audience_estimates_total",
		Help: "Total audience reach estimates",
	}, []string{"outcome"})

	// ResolutionsTotal counts segment resolutions, labeled by outcome.
	ResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audience_resolutions_total",
		Help: "Total segment resolutions",
	}, []string{"outcome"})

	// AggregationsTotal counts campaign audience aggregations.
	AggregationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audience_aggregations_total",
		Help: "Total campaign audience aggregations",
	}, []string{"outcome"})

	// SkippedConditions counts conditions dropped during compilation.
	SkippedConditions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audience_skipped_conditions_total",
		Help: "Conditions dropped during predicate compilation",
	})
)

// Init registers all collectors. Call once at startup.
func Init() {
	prometheus.MustRegister(httpReqs, httpDur, EstimatesTotal, ResolutionsTotal, AggregationsTotal, SkippedConditions)
}

// Middleware records per-route request counts and latencies.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		httpReqs.WithLabelValues(route, r.Method, http.StatusText(ww.status)).Inc()
		httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
