// Package metrics provides Prometheus metrics for the petroenergy model service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the model service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Model lifecycle
	loadAttempts     *prometheus.CounterVec
	trainRuns        *prometheus.CounterVec
	trainDuration    *prometheus.HistogramVec
	artifactsDeleted prometheus.Counter
	modelState       *prometheus.GaugeVec

	// Model outputs
	predictions      *prometheus.CounterVec
	anomaliesFlagged prometheus.Gauge
	datasetRows      *prometheus.GaugeVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

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
		namespace:        "petro",
		subsystem:        "models",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.loadAttempts = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "load_attempts_total",
			Help:        "Artifact load attempts by model and outcome",
			ConstLabels: m.customLabels,
		},
		[]string{"model", "outcome"},
	)

	m.trainRuns = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "train_runs_total",
			Help:        "Training runs by model and outcome",
			ConstLabels: m.customLabels,
		},
		[]string{"model", "outcome"},
	)

	m.trainDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "train_duration_seconds",
			Help:        "Time spent training and persisting a model",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.customLabels,
		},
		[]string{"model"},
	)

	m.artifactsDeleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "artifacts_deleted_total",
		Help:        "Artifacts removed by explicit cleanup",
		ConstLabels: m.customLabels,
	})

	m.modelState = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "state",
			Help:        "Lifecycle state per model (0 uninitialized, 1 loaded, 2 trained, 3 failed)",
			ConstLabels: m.customLabels,
		},
		[]string{"model"},
	)

	m.predictions = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "predictions_total",
			Help:        "Predictions served by model",
			ConstLabels: m.customLabels,
		},
		[]string{"model"},
	)

	m.anomaliesFlagged = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "anomalies_flagged",
		Help:        "Readings labelled anomalous by the latest classification",
		ConstLabels: m.customLabels,
	})

	m.datasetRows = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "dataset_rows",
			Help:        "Rows loaded per dataset after cleaning",
			ConstLabels: m.customLabels,
		},
		[]string{"dataset"},
	)

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_component_total",
			Help:        "Total number of errors by component",
			ConstLabels: m.customLabels,
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_endpoint_total",
			Help:        "Total number of errors by endpoint",
			ConstLabels: m.customLabels,
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_memory_usage_bytes",
		Help:        "System memory usage in bytes",
		ConstLabels: m.customLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_goroutine_count",
		Help:        "Number of goroutines",
		ConstLabels: m.customLabels,
	})
}

// RecordLoadAttempt counts an artifact load with its outcome
// (loaded, corrupt, incompatible, invalid).
func RecordLoadAttempt(model, outcome string) {
	globalManager.loadAttempts.WithLabelValues(model, outcome).Inc()
}

// RecordTrainRun counts a training run and observes its duration in seconds.
func RecordTrainRun(model, outcome string, seconds float64) {
	globalManager.trainRuns.WithLabelValues(model, outcome).Inc()
	globalManager.trainDuration.WithLabelValues(model).Observe(seconds)
}

// RecordArtifactDeleted increments the cleanup counter.
func RecordArtifactDeleted() {
	globalManager.artifactsDeleted.Inc()
}

// UpdateModelState sets the lifecycle state gauge of a model.
func UpdateModelState(model string, state int) {
	globalManager.modelState.WithLabelValues(model).Set(float64(state))
}

// RecordPredictions adds n served predictions for a model.
func RecordPredictions(model string, n int) {
	globalManager.predictions.WithLabelValues(model).Add(float64(n))
}

// UpdateAnomaliesFlagged sets the number of anomalous readings.
func UpdateAnomaliesFlagged(count int) {
	globalManager.anomaliesFlagged.Set(float64(count))
}

// UpdateDatasetRows sets the row count of a loaded dataset.
func UpdateDatasetRows(dataset string, rows int) {
	globalManager.datasetRows.WithLabelValues(dataset).Set(float64(rows))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

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
