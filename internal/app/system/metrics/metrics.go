// Package metrics holds the service's Prometheus collectors. They register
// on the default registry and are exposed by GET /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow decisions by request kind and outcome
	// (approved, rejected, out_of_stock, conflict, forbidden, error).
	RequestDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handspm_request_decisions_total",
			Help: "Processed request decisions by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// Voucher approval attempts that lost the race for a pool entry.
	VoucherRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "handspm_voucher_retries_total",
			Help: "Voucher approvals retried after losing a pool entry",
		},
	)

	RequestsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handspm_requests_submitted_total",
			Help: "Submitted requests by kind",
		},
		[]string{"kind"},
	)

	// Notification writes by status: delivered, duplicate, failed, retried.
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handspm_notifications_total",
			Help: "Notification writes by status",
		},
		[]string{"status"},
	)

	NotificationRetryQueue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "handspm_notification_retry_queue",
			Help: "Notifications waiting to be retried",
		},
	)

	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "handspm_live_sessions",
			Help: "Open live synchronization sessions",
		},
	)

	WatchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "handspm_watch_errors_total",
			Help: "Backend subscription failures",
		},
	)

	SnapshotApply = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "handspm_snapshot_apply_seconds",
			Help:    "Time to apply one change batch to a live snapshot",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)

	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handspm_emails_total",
			Help: "Transactional emails by status: sent, failed, dropped",
		},
		[]string{"status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "handspm_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveSnapshotApply records how long one batch took to apply.
func ObserveSnapshotApply(d time.Duration) {
	SnapshotApply.Observe(d.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses (the live SSE endpoint) working through
// the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request durations labelled by route pattern, as
// reported by routeOf (chi's RoutePattern in production).
func Middleware(routeOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			route := routeOf(r)
			if route == "" {
				route = "unmatched"
			}
			HTTPRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).
				Observe(time.Since(start).Seconds())
		})
	}
}
