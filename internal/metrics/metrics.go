package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EmailsTotal counts provider submissions by final outcome.
	EmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "community_emails_total",
			Help: "Email submissions to the delivery provider by outcome",
		},
		[]string{"provider", "status"}, // status: sent, failed
	)

	// EmailRetriesTotal counts retried provider submissions.
	EmailRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "community_email_retries_total",
			Help: "Retried email submissions",
		},
		[]string{"provider"},
	)

	// DispatchesTotal counts bulk dispatch invocations by outcome.
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "community_dispatches_total",
			Help: "Bulk dispatch invocations",
		},
		[]string{"outcome"}, // completed, no_recipients, provider_unavailable, error
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "community_dispatch_duration_seconds",
			Help:    "Wall time of a bulk dispatch from resolution to aggregation",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "community_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "community_rate_limited_total",
			Help: "Requests rejected by the public endpoint rate limiter",
		},
		[]string{"route"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request duration labelled by the chi route pattern, so
// path parameters do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
