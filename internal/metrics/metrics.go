package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compliance_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	analyticsFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_analytics_fallbacks_total",
			Help: "Analytics responses served from demo or placeholder data",
		},
		[]string{"view", "reason"},
	)

	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compliance_store_operations_total",
			Help: "Record store operations by backend and outcome",
		},
		[]string{"backend", "op", "result"},
	)
)

// ObserveHTTP records one completed request
func ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveFallback records an analytics view that did not use live data
func ObserveFallback(view, reason string) {
	analyticsFallbacksTotal.WithLabelValues(view, reason).Inc()
}

// ObserveStoreOp records a store call; result is derived from err
func ObserveStoreOp(backend, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeOperationsTotal.WithLabelValues(backend, op, result).Inc()
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
