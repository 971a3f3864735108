// Package metrics provides Prometheus metrics for the platecount service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// jobBuckets covers jobs from a fraction of a second up to roughly two hours,
// in milliseconds.
var jobBuckets = prometheus.ExponentialBuckets(50, 2, 18) //nolint:gochecknoglobals // bucket layout

// Manager manages all Prometheus metrics for the platecount service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Jobs
	jobsSubmitted *prometheus.CounterVec
	jobsFinished  *prometheus.CounterVec
	jobsDuplicate prometheus.Counter
	jobsActive    prometheus.Gauge
	jobDuration   *prometheus.HistogramVec

	// Tracking
	observations       prometheus.Counter
	unreadable         prometheus.Counter
	vehiclesCreated    prometheus.Counter
	vehicleMerges      prometheus.Counter
	framesProcessed    *prometheus.CounterVec
	detectionLatency   prometheus.Histogram
	logRowsWritten     prometheus.Counter
	storeOpLatency     *prometheus.HistogramVec
	dedupeEntries      prometheus.Gauge
	uploadBytes        prometheus.Counter
	outputFilesWritten *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter
	workerPanics            prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
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
		namespace:        "platecount",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	b := m.histogramBuckets

	m.jobsSubmitted = m.counterVec("jobs_submitted_total", "Jobs accepted for processing by source kind", "kind")
	m.jobsFinished = m.counterVec("jobs_finished_total", "Jobs that reached a terminal state by status", "status")
	m.jobsDuplicate = m.counter("jobs_duplicate_total", "Uploads rejected as duplicates of an existing job")
	m.jobsActive = m.gauge("jobs_active", "Jobs currently processing")
	m.jobDuration = m.histogramVec("job_duration_milliseconds", "End-to-end job processing time in milliseconds", jobBuckets, "status")

	m.observations = m.counter("plate_observations_total", "Plate readings fed into trackers")
	m.unreadable = m.counter("plate_unreadable_total", "Plate readings that were unreadable")
	m.vehiclesCreated = m.counter("vehicles_created_total", "Unique vehicle records created")
	m.vehicleMerges = m.counter("vehicle_merges_total", "Readings merged into an existing vehicle")
	m.framesProcessed = m.counterVec("frames_processed_total", "Frames processed by scene condition", "condition")
	m.detectionLatency = m.histogram("detection_latency_milliseconds", "Per-frame detection and OCR latency in milliseconds", b)
	m.logRowsWritten = m.counter("log_rows_written_total", "Rows appended to the vehicle log")
	m.storeOpLatency = m.histogramVec("store_operation_latency_milliseconds", "Job store operation latency in milliseconds", b, "backend", "operation")
	m.dedupeEntries = m.gauge("dedupe_entries", "Upload digests currently remembered")
	m.uploadBytes = m.counter("upload_bytes_total", "Bytes received through uploads")
	m.outputFilesWritten = m.counterVec("output_files_written_total", "Annotated outputs written by kind", "kind")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", b, "endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Current number of queued jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum number of queued jobs")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size divided by capacity")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Enqueue attempts that were rejected")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Enqueue latency in milliseconds", b)

	m.workerCount = m.gauge("worker_count", "Configured number of workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently running a job")
	m.workerIdleCount = m.gauge("worker_idle_count", "Workers waiting for a job")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time a worker spent on one job in milliseconds", jobBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Jobs a worker finished with an error")
	m.workerPanics = m.counter("worker_panics_total", "Jobs that panicked inside a worker")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint, method and type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds", b)
}

// Job metrics.

// RecordJobSubmitted counts an accepted job.
func RecordJobSubmitted(kind string) {
	globalManager.jobsSubmitted.WithLabelValues(kind).Inc()
	globalManager.jobsActive.Inc()
}

// RecordJobFinished counts a job reaching a terminal state.
func RecordJobFinished(status string, durationMs float64) {
	globalManager.jobsFinished.WithLabelValues(status).Inc()
	globalManager.jobDuration.WithLabelValues(status).Observe(durationMs)
	globalManager.jobsActive.Dec()
}

// RecordJobDuplicate counts an upload that matched an earlier one.
func RecordJobDuplicate() {
	globalManager.jobsDuplicate.Inc()
}

// RecordUploadBytes adds to the received upload volume.
func RecordUploadBytes(n int64) {
	globalManager.uploadBytes.Add(float64(n))
}

// UpdateDedupeEntries sets the number of remembered upload digests.
func UpdateDedupeEntries(n int64) {
	globalManager.dedupeEntries.Set(float64(n))
}

// Tracking metrics.

// RecordObservation counts one reading fed to a tracker.
func RecordObservation(created, unreadable bool) {
	globalManager.observations.Inc()
	if unreadable {
		globalManager.unreadable.Inc()
	}
	if created {
		globalManager.vehiclesCreated.Inc()
	} else {
		globalManager.vehicleMerges.Inc()
	}
}

// RecordFrame counts a processed frame.
func RecordFrame(condition string) {
	globalManager.framesProcessed.WithLabelValues(condition).Inc()
}

// RecordDetectionLatency records per-frame detection latency.
func RecordDetectionLatency(latencyMs float64) {
	globalManager.detectionLatency.Observe(latencyMs)
}

// RecordLogRows counts rows appended to the vehicle log.
func RecordLogRows(n int) {
	globalManager.logRowsWritten.Add(float64(n))
}

// RecordOutputFile counts an annotated artifact.
func RecordOutputFile(kind string) {
	globalManager.outputFilesWritten.WithLabelValues(kind).Inc()
}

// RecordStoreLatency records a job store operation.
func RecordStoreLatency(backend, operation string, latencyMs float64) {
	globalManager.storeOpLatency.WithLabelValues(backend, operation).Observe(latencyMs)
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue metrics.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker metrics.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordWorkerPanic increments the worker panic counter.
func RecordWorkerPanic() {
	globalManager.workerPanics.Inc()
}

// Error metrics.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
