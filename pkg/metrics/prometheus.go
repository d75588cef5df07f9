// Package metrics provides Prometheus metrics for the gridreplay service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Reconstruction
	leaderboardQueries     *prometheus.CounterVec
	leaderboardInferences  prometheus.Counter
	leaderboardEntries     prometheus.Histogram
	malformedPositions     prometheus.Counter
	stateQueries           *prometheus.CounterVec
	reconstructionDuration *prometheus.HistogramVec

	// Event store
	storeQueryLatency *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec
	eventsAppended    prometheus.Counter
	eventsDuplicate   prometheus.Counter

	// Ingestion
	ingestEvents   *prometheus.CounterVec
	ingestFailures prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // avoids default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "gridreplay",
		subsystem:        "replay",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.leaderboardQueries = auto.NewCounterVec(
		m.counterOpts("leaderboard_queries_total", "Leaderboard reconstructions by outcome"),
		[]string{"outcome"},
	)
	m.leaderboardInferences = auto.NewCounter(
		m.counterOpts("leaderboard_inferences_total", "Leaderboards where the single missing leader was inferred as P1"),
	)
	m.leaderboardEntries = auto.NewHistogram(
		m.histogramOpts("leaderboard_entries", "Number of participants per reconstructed leaderboard",
			[]float64{1, 2, 5, 10, 20, 30, 50}),
	)
	m.malformedPositions = auto.NewCounter(
		m.counterOpts("malformed_position_payloads_total", "POSITION events skipped because the payload had no usable position"),
	)
	m.stateQueries = auto.NewCounterVec(
		m.counterOpts("state_queries_total", "State replays by outcome"),
		[]string{"outcome"},
	)
	m.reconstructionDuration = auto.NewHistogramVec(
		m.histogramOpts("reconstruction_duration_milliseconds", "Time spent reconstructing state at a cutoff", nil),
		[]string{"kind"},
	)

	m.storeQueryLatency = auto.NewHistogramVec(
		m.histogramOpts("store_query_latency_milliseconds", "Event store query latency", nil),
		[]string{"op"},
	)
	m.storeErrors = auto.NewCounterVec(
		m.counterOpts("store_errors_total", "Event store failures by operation"),
		[]string{"op"},
	)
	m.eventsAppended = auto.NewCounter(
		m.counterOpts("events_appended_total", "Events committed to the event store"),
	)
	m.eventsDuplicate = auto.NewCounter(
		m.counterOpts("events_duplicate_total", "Submitted events dropped as duplicates"),
	)

	m.ingestEvents = auto.NewCounterVec(
		m.counterOpts("ingest_events_total", "Events ingested from the upstream provider by kind"),
		[]string{"kind"},
	)
	m.ingestFailures = auto.NewCounter(
		m.counterOpts("ingest_failures_total", "Failed upstream ingestion runs"),
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the submission queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Capacity of the submission queue"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Events accepted by the submission queue"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeued_total", "Events handed to workers"))
	m.queueEnqueueErrors = auto.NewCounterVec(
		m.counterOpts("queue_enqueue_errors_total", "Rejected enqueue attempts by reason"),
		[]string{"reason"},
	)

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Number of append workers"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Time for a worker to persist one event", nil),
	)
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Worker failures while persisting events"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", nil),
		[]string{"endpoint", "method", "status_code"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "HTTP errors by endpoint, method and error type"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100}),
	)
}

// Reconstruction.

// RecordLeaderboardQuery counts a leaderboard reconstruction by outcome
// (ok, empty, invalid, error).
func RecordLeaderboardQuery(outcome string) {
	globalManager.leaderboardQueries.WithLabelValues(outcome).Inc()
}

// RecordLeaderboardInference counts a fired single-leader inference.
func RecordLeaderboardInference() {
	globalManager.leaderboardInferences.Inc()
}

// ObserveLeaderboardEntries records the size of a produced leaderboard.
func ObserveLeaderboardEntries(n int) {
	globalManager.leaderboardEntries.Observe(float64(n))
}

// RecordMalformedPosition counts a POSITION event skipped by the view.
func RecordMalformedPosition() {
	globalManager.malformedPositions.Inc()
}

// RecordStateQuery counts a state replay by outcome.
func RecordStateQuery(outcome string) {
	globalManager.stateQueries.WithLabelValues(outcome).Inc()
}

// RecordReconstructionDuration records how long a reconstruction of kind took.
func RecordReconstructionDuration(kind string, ms float64) {
	globalManager.reconstructionDuration.WithLabelValues(kind).Observe(ms)
}

// Event store.

// RecordStoreQueryLatency records the latency of a store operation.
func RecordStoreQueryLatency(op string, ms float64) {
	globalManager.storeQueryLatency.WithLabelValues(op).Observe(ms)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(op string) {
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// RecordEventsAppended adds n committed events.
func RecordEventsAppended(n int) {
	globalManager.eventsAppended.Add(float64(n))
}

// RecordEventDuplicate counts a duplicate submission.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// Ingestion.

// RecordIngestEvents adds n events of kind fetched from the provider.
func RecordIngestEvents(kind string, n int) {
	globalManager.ingestEvents.WithLabelValues(kind).Add(float64(n))
}

// RecordIngestFailure counts a failed ingestion run.
func RecordIngestFailure() {
	globalManager.ingestFailures.Inc()
}

// Queue.

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted enqueue.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a dequeue.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// Workers.

// UpdateWorkerCount sets the number of workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records per-event worker latency.
func RecordWorkerProcessingLatency(ms float64) {
	globalManager.workerProcessingLatency.Observe(ms)
}

// RecordWorkerError counts a worker failure.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// RecordErrorByEndpoint records an HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records an average GC pause in milliseconds.
func RecordSystemGCPauseTime(ms float64) {
	globalManager.systemGCPauseTime.Observe(ms)
}

// GetRegistry returns the custom registry every metric is registered on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
