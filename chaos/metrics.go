package chaos

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors shared by every chaos
// harness mounted on a server, labeled per harness and route so
// ChaosLLM and ChaosWeb traffic is distinguishable on one /metrics
// endpoint.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
}

// NewMetrics registers a fresh Metrics set against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chaosserver_http_requests_total",
				Help: "Total requests handled by a chaos harness.",
			},
			[]string{"harness", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chaosserver_http_request_duration_seconds",
				Help:    "Request duration in seconds for a chaos harness.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"harness", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chaosserver_http_requests_in_flight",
				Help: "Requests currently being processed across all chaos harnesses.",
			},
		),
	}
	registerer.MustRegister(m.RequestsTotal, m.RequestDuration, m.RequestsInFlight)
	return m
}

// MetricsMiddleware records per-request counters and latency under
// the given harness label.
func MetricsMiddleware(harness string, m *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}
			status := strconv.Itoa(wrapped.statusCode)
			m.RequestsTotal.WithLabelValues(harness, r.Method, path, status).Inc()
			m.RequestDuration.WithLabelValues(harness, r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}
