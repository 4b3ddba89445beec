// Package metrics provides Prometheus metrics for the studypulse monitor service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Build outcomes used as the "outcome" label of analytics builds.
const (
	OutcomeOK         = "ok"
	OutcomeBadRequest = "bad_request"
	OutcomeNotFound   = "not_found"
	OutcomeFailed     = "failed"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Analytics - the read path behind the dashboard
	analyticsBuilds       *prometheus.CounterVec
	analyticsBuildLatency prometheus.Histogram
	lastBuildRoster       prometheus.Gauge
	lastBuildRatings      prometheus.Gauge
	lastBuildCompletions  prometheus.Gauge

	// Ingestion - rating submissions
	ratingsIngested   prometheus.Counter
	ratingsDuplicate  prometheus.Counter
	ratingsRejected   *prometheus.CounterVec
	completionsMarked prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueueTotal  prometheus.Counter
	queueDequeueTotal  prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Store
	studyCount   prometheus.Gauge
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByType      *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "studypulse",
		subsystem:        "monitor",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.analyticsBuilds = m.counterVec("analytics_builds_total",
		"Total number of study analytics builds by outcome", "outcome")
	m.analyticsBuildLatency = m.histogram("analytics_build_latency_milliseconds",
		"Time spent assembling a study analytics payload in milliseconds")
	m.lastBuildRoster = m.gauge("analytics_last_roster_size",
		"Roster size of the most recent analytics build")
	m.lastBuildRatings = m.gauge("analytics_last_rating_events",
		"In-window rating events counted by the most recent analytics build")
	m.lastBuildCompletions = m.gauge("analytics_last_completions",
		"In-window completions counted by the most recent analytics build")

	m.ratingsIngested = m.counter("ratings_ingested_total",
		"Total number of rating submissions applied to the store")
	m.ratingsDuplicate = m.counter("ratings_duplicate_total",
		"Total number of rating submissions dropped as duplicates")
	m.ratingsRejected = m.counterVec("ratings_rejected_total",
		"Total number of rating submissions rejected by reason", "reason")
	m.completionsMarked = m.counter("completions_marked_total",
		"Total number of participant completions recorded")

	m.queueSize = m.gauge("queue_size", "Current size of the submission queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum submission queue capacity")
	m.queueEnqueueTotal = m.counter("queue_enqueue_total", "Total number of submissions enqueued")
	m.queueDequeueTotal = m.counter("queue_dequeue_total", "Total number of submissions dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of rejected enqueues")

	m.workerCount = m.gauge("worker_count", "Current number of ingestion workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time to apply one submission to the store in milliseconds")
	m.workerErrors = m.counter("worker_errors_total", "Total number of submissions a worker failed to apply")

	m.studyCount = m.gauge("studies_total", "Number of studies held by the store")
	m.storeLatency = m.histogramVec("store_operation_latency_milliseconds",
		"Store operation latency in milliseconds", "backend", "operation")
	m.storeErrors = m.counterVec("store_errors_total",
		"Total number of failed store operations", "backend", "operation")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")
	m.errorsByType = m.counterVec("errors_by_type_total",
		"Total number of errors by type", "error_type", "severity")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Total number of errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// Analytics.

// RecordAnalyticsBuild counts one analytics build with its outcome.
func RecordAnalyticsBuild(outcome string) {
	globalManager.analyticsBuilds.WithLabelValues(outcome).Inc()
}

// RecordAnalyticsBuildLatency records build latency in milliseconds.
func RecordAnalyticsBuildLatency(latencyMs float64) {
	globalManager.analyticsBuildLatency.Observe(latencyMs)
}

// UpdateLastBuild records the sizes seen by the latest successful build.
func UpdateLastBuild(roster, ratings, completions int) {
	globalManager.lastBuildRoster.Set(float64(roster))
	globalManager.lastBuildRatings.Set(float64(ratings))
	globalManager.lastBuildCompletions.Set(float64(completions))
}

// Ingestion.

// RecordRatingIngested increments the applied ratings counter.
func RecordRatingIngested() {
	globalManager.ratingsIngested.Inc()
}

// RecordRatingDuplicate increments the duplicate ratings counter.
func RecordRatingDuplicate() {
	globalManager.ratingsDuplicate.Inc()
}

// RecordRatingRejected increments the rejected ratings counter for reason.
func RecordRatingRejected(reason string) {
	globalManager.ratingsRejected.WithLabelValues(reason).Inc()
}

// RecordCompletionMarked increments the completions counter.
func RecordCompletionMarked() {
	globalManager.completionsMarked.Inc()
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueTotal.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueTotal.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Workers.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Store.

// UpdateStudyCount sets the number of studies in the store.
func UpdateStudyCount(count int) {
	globalManager.studyCount.Set(float64(count))
}

// RecordStoreLatency records the latency of one store operation.
func RecordStoreLatency(backend, operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(backend, operation).Observe(latencyMs)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(backend, operation string) {
	globalManager.storeErrors.WithLabelValues(backend, operation).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
