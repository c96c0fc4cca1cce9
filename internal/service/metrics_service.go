package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/course-portal-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface, the provisioning services and the hosting gateway.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	provisioning    *prometheus.CounterVec
	batchSubjects   *prometheus.CounterVec
	hostingCalls    *prometheus.CounterVec
	hostingDuration *prometheus.HistogramVec
	aggregateStatus *prometheus.GaugeVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	provisioning := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provisioning_operations_total",
		Help: "Single-subject provisioning calls by outcome",
	}, []string{"operation", "outcome"})

	batchSubjects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_subjects_total",
		Help: "Per-subject outcomes of bulk assignment operations",
	}, []string{"operation", "outcome"})

	hostingCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hosting_calls_total",
		Help: "Repository hosting API calls by outcome",
	}, []string{"call", "outcome"})

	hostingDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hosting_call_duration_seconds",
		Help:    "Latency of repository hosting API calls, retries included",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"call"})

	aggregateStatus := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "assignment_aggregate_status",
		Help: "Cached aggregate lifecycle status per assignment (1=INACTIVE .. 4=CLOSED)",
	}, []string{"deliverable"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, provisioning, batchSubjects, hostingCalls, hostingDuration, aggregateStatus, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		provisioning:    provisioning,
		batchSubjects:   batchSubjects,
		hostingCalls:    hostingCalls,
		hostingDuration: hostingDuration,
		aggregateStatus: aggregateStatus,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordProvisioning counts a single-subject provisioning outcome.
func (m *MetricsService) RecordProvisioning(operation, outcome string) {
	if m == nil {
		return
	}
	m.provisioning.WithLabelValues(operation, outcome).Inc()
}

// RecordBatchSubject counts one subject's outcome inside a bulk operation.
func (m *MetricsService) RecordBatchSubject(operation, outcome string) {
	if m == nil {
		return
	}
	m.batchSubjects.WithLabelValues(operation, outcome).Inc()
}

// SetAssignmentStatus publishes the cached aggregate of an assignment.
func (m *MetricsService) SetAssignmentStatus(deliverableID string, status models.AssignmentStatus) {
	if m == nil {
		return
	}
	m.aggregateStatus.WithLabelValues(deliverableID).Set(float64(status))
}

// ObserveHostingCall records a hosting API call.
func (m *MetricsService) ObserveHostingCall(call, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.hostingCalls.WithLabelValues(call, outcome).Inc()
	m.hostingDuration.WithLabelValues(call).Observe(elapsed.Seconds())
}
