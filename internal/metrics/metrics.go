// Package metrics provides Prometheus instrumentation for the trading engine.
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
	// OrdersPlaced counts orders accepted into pending state, by side.
	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperdex_orders_placed_total",
		Help: "Total orders placed",
	}, []string{"side"})

	// OrdersFilled counts successful fills, by side.
	OrdersFilled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperdex_orders_filled_total",
		Help: "Total orders filled",
	}, []string{"side"})

	// OrdersRejected counts orders transitioned to rejected.
	OrdersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paperdex_orders_rejected_total",
		Help: "Total orders rejected",
	})

	// InsufficientBalance counts placements and fills refused for lack of funds.
	InsufficientBalance = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paperdex_insufficient_balance_total",
		Help: "Operations refused due to insufficient balance",
	})

	// InvariantViolations counts internal ledger consistency failures.
	// Any non-zero value here is a bug.
	InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paperdex_invariant_violations_total",
		Help: "Ledger invariant violations detected",
	})

	// FillLatency tracks fill transaction duration, by side.
	FillLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paperdex_fill_latency_seconds",
		Help:    "Fill execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paperdex_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paperdex_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paperdex_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; route cardinality is small.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
