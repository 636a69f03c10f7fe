// Package metrics provides Prometheus instrumentation for the market
// simulator.
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
	// TradesTotal counts total trades executed, partitioned by mechanism.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridmesh_trades_total",
		Help: "Total number of trades executed",
	}, []string{"mechanism"})

	// ClearedVolume tracks cumulative cleared energy in kWh per mechanism.
	ClearedVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridmesh_cleared_kwh_total",
		Help: "Cumulative cleared energy in kWh",
	}, []string{"mechanism"})

	// IntervalDuration tracks wall-clock time spent clearing one interval.
	IntervalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridmesh_interval_clear_seconds",
		Help:    "Interval clearing duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"mechanism"})

	// ActiveRuns tracks the number of simulation runs in progress.
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridmesh_active_runs",
		Help: "Number of simulation runs currently executing",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridmesh_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridmesh_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridmesh_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// IntentRejections counts agent intents rejected during clearing.
	IntentRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridmesh_intent_rejections_total",
		Help: "Agent intents rejected during clearing",
	}, []string{"reason"})

	// NoTradeIntervals counts intervals where no feasible trade existed.
	NoTradeIntervals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridmesh_no_trade_intervals_total",
		Help: "Intervals with zero planner-attainable surplus",
	})

	// NormalizedWelfare records per-interval realized surplus as a fraction
	// of the planner bound.
	NormalizedWelfare = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gridmesh_normalized_welfare",
		Help:    "Realized surplus over planner bound per interval",
		Buckets: []float64{0.0, 0.1, 0.25, 0.5, 0.75, 0.9, 1.0},
	}, []string{"mechanism"})
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

		// Use the route pattern for path label to avoid high cardinality.
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
