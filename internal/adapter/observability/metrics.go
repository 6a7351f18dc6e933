// Package observability provides logging, metrics, and tracing.
//
// It integrates with OpenTelemetry for system monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// PrintJobsEnqueuedTotal counts print jobs enqueued by job type.
	PrintJobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "print_jobs_enqueued_total",
			Help: "Total number of print jobs enqueued",
		},
		[]string{"job_type"},
	)
	// PrintJobsProcessing is a gauge of print jobs currently in flight by type.
	PrintJobsProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "print_jobs_processing",
			Help: "Number of print jobs currently processing",
		},
		[]string{"job_type"},
	)
	// PrintJobsCompletedTotal counts print jobs completed by type.
	PrintJobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "print_jobs_completed_total",
			Help: "Total number of print jobs completed",
		},
		[]string{"job_type"},
	)
	// PrintJobsFailedTotal counts print jobs failed by type.
	PrintJobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "print_jobs_failed_total",
			Help: "Total number of print jobs failed",
		},
		[]string{"job_type"},
	)

	// OfflineQueueDepth is a gauge of queued-but-unprinted items.
	OfflineQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "offline_queue_depth",
			Help: "Number of items currently sitting in the offline queue",
		},
		[]string{"priority"},
	)
	// OfflineQueueOldestAgeSeconds is a gauge of the oldest queued item's age.
	OfflineQueueOldestAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "offline_queue_oldest_age_seconds",
			Help: "Age in seconds of the oldest item in the offline queue",
		},
	)

	// ConnectivityStatus tracks the connectivity state of a monitored component.
	// 0=online, 1=degraded, 2=offline.
	ConnectivityStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "connectivity_status",
			Help: "Connectivity status by component (0=online, 1=degraded, 2=offline)",
		},
		[]string{"component"},
	)

	// CircuitBreakerStatus tracks circuit breaker state.
	// 0=closed, 1=open, 2=half-open.
	CircuitBreakerStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_status",
			Help: "Circuit breaker status by dependency (0=closed, 1=open, 2=half-open)",
		},
		[]string{"breaker"},
	)

	// RetryAttemptsTotal counts retry attempts by failure type and outcome.
	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total retry attempts by failure type and outcome",
		},
		[]string{"failure_type", "outcome"},
	)
	// DeadLettersTotal counts tasks moved to the dead letter queue.
	DeadLettersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dead_letters_total",
			Help: "Total tasks moved to the dead letter queue by failure type",
		},
		[]string{"failure_type"},
	)

	// RecoverySessionsTotal counts recovery sessions by outcome.
	RecoverySessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_sessions_total",
			Help: "Total recovery sessions by recovery type and outcome",
		},
		[]string{"recovery_type", "outcome"},
	)

	// HealthResourceValue is a gauge of the last sampled value per resource.
	HealthResourceValue = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "health_resource_value",
			Help: "Last sampled value (0-100) for a monitored resource",
		},
		[]string{"resource"},
	)

	// NotificationsSentTotal counts notifications sent by type and outcome.
	NotificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total notifications sent by type and outcome",
		},
		[]string{"notification_type", "outcome"},
	)
	// NotificationsThrottledTotal counts notifications suppressed by throttle policy.
	NotificationsThrottledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_throttled_total",
			Help: "Total notifications suppressed by throttle policy, by type",
		},
		[]string{"notification_type"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(PrintJobsEnqueuedTotal)
	prometheus.MustRegister(PrintJobsProcessing)
	prometheus.MustRegister(PrintJobsCompletedTotal)
	prometheus.MustRegister(PrintJobsFailedTotal)
	prometheus.MustRegister(OfflineQueueDepth)
	prometheus.MustRegister(OfflineQueueOldestAgeSeconds)
	prometheus.MustRegister(ConnectivityStatus)
	prometheus.MustRegister(CircuitBreakerStatus)
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DeadLettersTotal)
	prometheus.MustRegister(RecoverySessionsTotal)
	prometheus.MustRegister(HealthResourceValue)
	prometheus.MustRegister(NotificationsSentTotal)
	prometheus.MustRegister(NotificationsThrottledTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// EnqueuePrintJob increments the enqueued print jobs counter for the given type.
func EnqueuePrintJob(jobType string) {
	PrintJobsEnqueuedTotal.WithLabelValues(jobType).Inc()
}

// StartProcessingPrintJob increments the processing gauge for the given type.
func StartProcessingPrintJob(jobType string) {
	PrintJobsProcessing.WithLabelValues(jobType).Inc()
}

// CompletePrintJob marks a job complete: decrements processing, increments completed.
func CompletePrintJob(jobType string) {
	PrintJobsProcessing.WithLabelValues(jobType).Dec()
	PrintJobsCompletedTotal.WithLabelValues(jobType).Inc()
}

// FailPrintJob marks a job failed: decrements processing, increments failed.
func FailPrintJob(jobType string) {
	PrintJobsProcessing.WithLabelValues(jobType).Dec()
	PrintJobsFailedTotal.WithLabelValues(jobType).Inc()
}

// RecordCircuitBreakerStatus records circuit breaker state.
func RecordCircuitBreakerStatus(breakerName string, status int) {
	CircuitBreakerStatus.WithLabelValues(breakerName).Set(float64(status))
}

// RecordConnectivityStatus records connectivity state for a component.
func RecordConnectivityStatus(component string, status int) {
	ConnectivityStatus.WithLabelValues(component).Set(float64(status))
}

// RecordRetryAttempt records a retry attempt outcome.
func RecordRetryAttempt(failureType, outcome string) {
	RetryAttemptsTotal.WithLabelValues(failureType, outcome).Inc()
}

// RecordDeadLetter records a task moved to the dead letter queue.
func RecordDeadLetter(failureType string) {
	DeadLettersTotal.WithLabelValues(failureType).Inc()
}

// RecordRecoverySession records a completed recovery session.
func RecordRecoverySession(recoveryType, outcome string) {
	RecoverySessionsTotal.WithLabelValues(recoveryType, outcome).Inc()
}

// RecordHealthResourceValue records the last sampled value for a resource.
func RecordHealthResourceValue(resource string, value float64) {
	HealthResourceValue.WithLabelValues(resource).Set(value)
}

// RecordNotificationSent records a notification send outcome.
func RecordNotificationSent(notificationType, outcome string) {
	NotificationsSentTotal.WithLabelValues(notificationType, outcome).Inc()
}

// RecordNotificationThrottled records a notification suppressed by throttle policy.
func RecordNotificationThrottled(notificationType string) {
	NotificationsThrottledTotal.WithLabelValues(notificationType).Inc()
}
