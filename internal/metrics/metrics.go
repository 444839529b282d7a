// Package metrics provides the Prometheus collectors for the workbench server
// and the HTTP middleware that feeds the request-level ones.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ActionBuckets spans quick file writes to slow cold compiles, 5ms to 2m.
var ActionBuckets = []float64{0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workbench_http_requests_total",
			Help: "HTTP requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workbench_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: ActionBuckets,
		},
		[]string{"method"},
	)

	// ActionsTotal counts executed actions by outcome kind.
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workbench_actions_total",
			Help: "Executed actions",
		},
		[]string{"action", "outcome"},
	)

	// ActionDuration records how long each action took in seconds.
	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workbench_action_duration_seconds",
			Help:    "Action duration",
			Buckets: ActionBuckets,
		},
		[]string{"action"},
	)

	// ActionsInFlight tracks actions currently running.
	ActionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "workbench_actions_in_flight",
			Help: "Actions currently running",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ActionsTotal,
		ActionDuration,
		ActionsInFlight,
	)
}

// ObserveAction records one finished action.
func ObserveAction(action, outcome string, d time.Duration) {
	ActionsTotal.WithLabelValues(action, outcome).Inc()
	ActionDuration.WithLabelValues(action).Observe(d.Seconds())
}

// Middleware records request count and duration for every request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		// Status class label like "2xx", "4xx", "5xx".
		statusStr := strconv.Itoa(sw.status/100) + "xx"

		RequestsTotal.WithLabelValues(r.Method, statusStr).Inc()
		RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

// Flush delegates to the underlying writer; the MCP endpoint streams.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the original writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
