// Package metrics provides Prometheus metrics for the posecap capture service.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Latency buckets in milliseconds. Ticks must stay well under 100ms.
var defaultLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500}

// Manager manages all Prometheus metrics for the capture service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	refreshInterval  atomic.Int64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Validation loop
	ticks             prometheus.Counter
	tickLatency       prometheus.Histogram
	validationStatus  *prometheus.GaugeVec
	stabilityDuration prometheus.Gauge
	activeAngle       prometheus.Gauge

	// Countdown and capture
	countdownsStarted *prometheus.CounterVec
	countdownAborts   *prometheus.CounterVec
	captures          *prometheus.CounterVec
	captureLatency    prometheus.Histogram
	manualRefusals    prometheus.Counter

	// Session lifecycle
	sessionsStarted   prometheus.Counter
	sessionsCompleted prometheus.Counter
	sessionAttempts   prometheus.Histogram

	// Command queue
	queueSize      prometheus.Gauge
	queueCapacity  prometheus.Gauge
	queueRejected  *prometheus.CounterVec
	queueEnqueued  prometheus.Counter
	queueProcessed prometheus.Counter

	// Sensors and feedback
	sensorSamples    *prometheus.CounterVec
	sensorErrors     *prometheus.CounterVec
	feedbackEvents   *prometheus.CounterVec
	websocketClients prometheus.Gauge
	storeOperations  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "posecap",
		subsystem:        "capture",
		histogramBuckets: defaultLatencyBuckets,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}
	m.enabled.Store(true)
	m.refreshInterval.Store(int64(defaultRefreshInterval))

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// Enabled reports whether the manager records anything.
func (m *Manager) Enabled() bool { return m.enabled.Load() }

// RefreshInterval is how often polled gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration {
	return time.Duration(m.refreshInterval.Load())
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.ticks = m.counter("validation_ticks_total", "Total number of validation ticks evaluated")
	m.tickLatency = m.histogram("validation_tick_latency_milliseconds", "Time spent evaluating one validation tick")
	m.validationStatus = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("validation_status"),
		Help:        "Latest validation status rank per angle (0 invalid, 1 adjusting, 2 valid, 3 locked)",
		ConstLabels: m.customLabels,
	}, []string{"angle"})
	m.stabilityDuration = m.gauge("stability_duration_seconds", "Current continuous-valid duration")
	m.activeAngle = m.gauge("active_angle", "Index of the active angle, 5 when the session is complete")

	m.countdownsStarted = m.counterVec("countdowns_started_total", "Countdowns started per angle", "angle")
	m.countdownAborts = m.counterVec("countdown_aborts_total", "Countdown aborts by angle and reason", "angle", "reason")
	m.captures = m.counterVec("captures_total", "Capture attempts by angle, mode and outcome", "angle", "mode", "outcome")
	m.captureLatency = m.histogram("capture_latency_milliseconds", "Camera collaborator latency")
	m.manualRefusals = m.counter("manual_capture_refusals_total", "Manual captures refused because no face was detected")

	m.sessionsStarted = m.counter("sessions_started_total", "Capture sessions started")
	m.sessionsCompleted = m.counter("sessions_completed_total", "Capture sessions completed with all angles captured")
	m.sessionAttempts = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("session_attempts"),
		Help:        "Total capture attempts per completed session",
		Buckets:     []float64{5, 6, 7, 8, 10, 15, 20, 30},
		ConstLabels: m.customLabels,
	})

	m.queueSize = m.gauge("command_queue_size", "Commands waiting for the validation loop")
	m.queueCapacity = m.gauge("command_queue_capacity", "Command queue capacity")
	m.queueRejected = m.counterVec("command_queue_rejected_total", "Commands rejected by reason", "reason")
	m.queueEnqueued = m.counter("command_queue_enqueued_total", "Commands enqueued")
	m.queueProcessed = m.counter("command_queue_processed_total", "Commands processed by the loop")

	m.sensorSamples = m.counterVec("sensor_samples_total", "Sensor samples published by source", "sensor")
	m.sensorErrors = m.counterVec("sensor_errors_total", "Sensor decode or transport errors", "sensor")
	m.feedbackEvents = m.counterVec("feedback_events_total", "Feedback events emitted by kind", "kind")
	m.websocketClients = m.gauge("feedback_websocket_clients", "Connected feedback websocket clients")
	m.storeOperations = m.counterVec("store_operations_total", "Session store operations by op and outcome", "op", "outcome")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("http_request_duration_milliseconds"),
		Help: "HTTP request duration in milliseconds", Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds")
}

// SetEnabled turns recording on or off for the package-level recorders.
func SetEnabled(on bool) {
	globalManager.enabled.Store(on)
}

// Enabled reports whether the package-level recorders record anything.
func Enabled() bool { return globalManager.Enabled() }

// SetRefreshInterval sets how often polled gauges are refreshed. Non-positive
// values are ignored.
func SetRefreshInterval(d time.Duration) {
	if d > 0 {
		globalManager.refreshInterval.Store(int64(d))
	}
}

// RefreshInterval returns the refresh interval for polled gauges.
func RefreshInterval() time.Duration { return globalManager.RefreshInterval() }

// Validation loop metrics.

// RecordTick counts one validation tick and its evaluation latency.
func RecordTick(latencyMs float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.ticks.Inc()
	globalManager.tickLatency.Observe(latencyMs)
}

// UpdateValidationStatus records the status rank for an angle.
func UpdateValidationStatus(angle string, rank int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.validationStatus.WithLabelValues(angle).Set(float64(rank))
}

// UpdateStabilityDuration records the current continuous-valid duration.
func UpdateStabilityDuration(d time.Duration) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.stabilityDuration.Set(d.Seconds())
}

// UpdateActiveAngle records the active angle index.
func UpdateActiveAngle(index int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.activeAngle.Set(float64(index))
}

// Countdown and capture metrics.

// RecordCountdownStarted counts a countdown start.
func RecordCountdownStarted(angle string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.countdownsStarted.WithLabelValues(angle).Inc()
}

// RecordCountdownAborted counts a countdown abort.
func RecordCountdownAborted(angle, reason string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.countdownAborts.WithLabelValues(angle, reason).Inc()
}

// RecordCapture counts a capture outcome ("success", "failure", "discarded").
func RecordCapture(angle, mode, outcome string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.captures.WithLabelValues(angle, mode, outcome).Inc()
}

// RecordCaptureLatency records how long the camera collaborator took.
func RecordCaptureLatency(latencyMs float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.captureLatency.Observe(latencyMs)
}

// RecordManualRefusal counts a refused manual capture.
func RecordManualRefusal() {
	if !globalManager.Enabled() {
		return
	}
	globalManager.manualRefusals.Inc()
}

// Session metrics.

// RecordSessionStarted counts a new session.
func RecordSessionStarted() {
	if !globalManager.Enabled() {
		return
	}
	globalManager.sessionsStarted.Inc()
}

// RecordSessionCompleted counts a completed session and its attempts.
func RecordSessionCompleted(totalAttempts int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.sessionsCompleted.Inc()
	globalManager.sessionAttempts.Observe(float64(totalAttempts))
}

// Command queue metrics.

// UpdateQueueSize sets the current command queue depth.
func UpdateQueueSize(size int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the command queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted command.
func RecordQueueEnqueue() {
	if !globalManager.Enabled() {
		return
	}
	globalManager.queueEnqueued.Inc()
}

// RecordQueueProcessed counts a command handled by the loop.
func RecordQueueProcessed() {
	if !globalManager.Enabled() {
		return
	}
	globalManager.queueProcessed.Inc()
}

// RecordQueueRejected counts a rejected command.
func RecordQueueRejected(reason string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// Sensors, feedback and storage.

// RecordSensorSample counts a published sensor sample.
func RecordSensorSample(sensor string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.sensorSamples.WithLabelValues(sensor).Inc()
}

// RecordSensorError counts a sensor decode or transport error.
func RecordSensorError(sensor string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.sensorErrors.WithLabelValues(sensor).Inc()
}

// RecordFeedbackEvent counts an emitted feedback event.
func RecordFeedbackEvent(kind string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.feedbackEvents.WithLabelValues(kind).Inc()
}

// UpdateWebsocketClients sets the connected feedback client count.
func UpdateWebsocketClients(count int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.websocketClients.Set(float64(count))
}

// RecordStoreOperation counts a session store call.
func RecordStoreOperation(op, outcome string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.storeOperations.WithLabelValues(op, outcome).Inc()
}

// HTTP metrics.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
