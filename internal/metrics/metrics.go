// Package metrics provides Prometheus instrumentation for the marketplace
// engine.
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
	// TradesTotal counts completed marketplace operations, partitioned by
	// operation and asset kind.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_trades_total",
		Help: "Total number of completed marketplace operations",
	}, []string{"op", "kind"})

	// TradeVolume accumulates units traded per operation kind.
	TradeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_trade_volume_total",
		Help: "Cumulative traded quantity in units",
	}, []string{"op", "kind"})

	// ProtocolFees accumulates protocol fees in base units.
	ProtocolFees = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_protocol_fees_total",
		Help: "Cumulative protocol fees collected in base units",
	})

	// ActiveListings tracks the number of live listings.
	ActiveListings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_active_listings",
		Help: "Number of currently live listings",
	})

	// AssetsInCustody tracks escrowed asset records by kind.
	AssetsInCustody = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "marketplace_assets_in_custody",
		Help: "Number of asset records held in escrow",
	}, []string{"kind"})

	// PausedState is 1 while the marketplace is paused, else 0.
	PausedState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_paused",
		Help: "Whether mutating trade operations are currently rejected",
	})

	// RejectedOperations counts operations rejected by precondition checks.
	RejectedOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_rejected_operations_total",
		Help: "Operations rejected by validation",
	}, []string{"op"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketplace_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketplace_http_request_duration_seconds",
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
