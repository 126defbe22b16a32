package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_enqueued_total",
			Help: "Total number of jobs enqueued by priority class",
		},
		[]string{"queue", "priority"},
	)
	JobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_jobs_active",
			Help: "Number of jobs currently being handled",
		},
		[]string{"queue"},
	)
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_completed_total",
			Help: "Total number of jobs completed",
		},
		[]string{"queue"},
	)
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_failed_total",
			Help: "Total number of jobs terminally failed",
		},
		[]string{"queue"},
	)
	JobsRetriedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_retried_total",
			Help: "Total number of job retries scheduled with backoff",
		},
		[]string{"queue"},
	)
	JobsStalledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_stalled_total",
			Help: "Total number of jobs reclaimed after a stall timeout",
		},
		[]string{"queue"},
	)
	JobHandleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_job_handle_duration_seconds",
			Help:    "Job handler duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"queue"},
	)

	StockReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_reservations_total",
			Help: "Stock reservation attempts by outcome",
		},
		[]string{"outcome"},
	)
	OrdersTerminalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_terminal_total",
			Help: "Orders that reached a terminal status",
		},
		[]string{"status"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(JobsEnqueuedTotal)
	prometheus.MustRegister(JobsActive)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(JobsRetriedTotal)
	prometheus.MustRegister(JobsStalledTotal)
	prometheus.MustRegister(JobHandleDuration)
	prometheus.MustRegister(StockReservationsTotal)
	prometheus.MustRegister(OrdersTerminalTotal)
}

// EnqueueJob records a job enqueue for the given queue and priority class.
func EnqueueJob(queue string, priority int) {
	JobsEnqueuedTotal.WithLabelValues(queue, strconv.Itoa(priority)).Inc()
}

// ReservationOutcome records one stock reservation attempt outcome
// (ok, insufficient, not_found, version_conflict).
func ReservationOutcome(outcome string) {
	StockReservationsTotal.WithLabelValues(outcome).Inc()
}

// OrderTerminal records an order reaching CONFIRMED or FAILED.
func OrderTerminal(status string) {
	OrdersTerminalTotal.WithLabelValues(status).Inc()
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}
