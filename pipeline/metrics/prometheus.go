// Package metrics provides Prometheus metrics export for the matching pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports pipeline metrics in Prometheus format.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Job lifecycle metrics
	jobsSubmitted *prometheus.CounterVec
	jobsRejected  *prometheus.CounterVec
	jobsFinished  *prometheus.CounterVec
	jobLatency    *prometheus.HistogramVec

	// Stage metrics
	stageLatency *prometheus.HistogramVec
	stageRetries *prometheus.CounterVec
	stageErrors  *prometheus.CounterVec

	// Saturation metrics
	queueDepth prometheus.Gauge
	activeJobs prometheus.Gauge

	// Matching metrics
	vectorQueryLatency prometheus.Histogram
	matchCandidates    prometheus.Histogram
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{
		registry: registry,
	}

	e.jobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ghurfati",
			Subsystem: "pipeline",
			Name:      "jobs_submitted_total",
			Help:      "Total number of jobs accepted for processing",
		},
		[]string{"style"},
	)

	e.jobsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ghurfati",
			Subsystem: "pipeline",
			Name:      "jobs_rejected_total",
			Help:      "Total number of submissions rejected before a job was created",
		},
		[]string{"reason"},
	)

	e.jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ghurfati",
			Subsystem: "pipeline",
			Name:      "jobs_finished_total",
			Help:      "Total number of jobs that reached a terminal status",
		},
		[]string{"status"},
	)

	e.jobLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ghurfati",
			Subsystem: "pipeline",
			Name:      "job_latency_seconds",
			Help:      "End-to-end job latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"status"},
	)

	e.stageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ghurfati",
			Subsystem: "pipeline",
			Name:      "stage_latency_seconds",
			Help:      "Stage latency in seconds, including retries",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"stage"},
	)

	e.stageRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ghurfati",
			Subsystem: "pipeline",
			Name:      "stage_retries_total",
			Help:      "Total number of stage attempt retries",
		},
		[]string{"stage"},
	)

	e.stageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ghurfati",
			Subsystem: "pipeline",
			Name:      "stage_errors_total",
			Help:      "Total number of stage failures by error class",
		},
		[]string{"stage", "class"},
	)

	e.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ghurfati",
			Subsystem: "pipeline",
			Name:      "queue_depth",
			Help:      "Number of jobs waiting for a worker",
		},
	)

	e.activeJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ghurfati",
			Subsystem: "pipeline",
			Name:      "active_jobs",
			Help:      "Number of jobs currently being processed",
		},
	)

	e.vectorQueryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ghurfati",
			Subsystem: "pipeline",
			Name:      "vector_query_latency_seconds",
			Help:      "Vector index query latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.matchCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ghurfati",
			Subsystem: "pipeline",
			Name:      "match_candidates",
			Help:      "Number of candidates returned per region query",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	registry.MustRegister(
		e.jobsSubmitted,
		e.jobsRejected,
		e.jobsFinished,
		e.jobLatency,
		e.stageLatency,
		e.stageRetries,
		e.stageErrors,
		e.queueDepth,
		e.activeJobs,
		e.vectorQueryLatency,
		e.matchCandidates,
	)

	return e
}

// RecordJobSubmitted records an accepted submission.
func (e *PrometheusExporter) RecordJobSubmitted(style string) {
	e.jobsSubmitted.WithLabelValues(style).Inc()
}

// RecordJobRejected records a submission rejected before a job row existed.
func (e *PrometheusExporter) RecordJobRejected(reason string) {
	e.jobsRejected.WithLabelValues(reason).Inc()
}

// RecordJobFinished records a job reaching a terminal status.
func (e *PrometheusExporter) RecordJobFinished(status string, latency time.Duration) {
	e.jobsFinished.WithLabelValues(status).Inc()
	e.jobLatency.WithLabelValues(status).Observe(latency.Seconds())
}

// RecordStage records one completed stage run.
func (e *PrometheusExporter) RecordStage(stage string, latency time.Duration) {
	e.stageLatency.WithLabelValues(stage).Observe(latency.Seconds())
}

// RecordStageRetry records a retried stage attempt.
func (e *PrometheusExporter) RecordStageRetry(stage string) {
	e.stageRetries.WithLabelValues(stage).Inc()
}

// RecordStageError records a stage failure by error class.
func (e *PrometheusExporter) RecordStageError(stage, class string) {
	e.stageErrors.WithLabelValues(stage, class).Inc()
}

// SetQueueDepth sets the number of queued jobs.
func (e *PrometheusExporter) SetQueueDepth(count int) {
	e.queueDepth.Set(float64(count))
}

// SetActiveJobs sets the number of in-flight jobs.
func (e *PrometheusExporter) SetActiveJobs(count int) {
	e.activeJobs.Set(float64(count))
}

// RecordVectorQuery records a vector index query.
func (e *PrometheusExporter) RecordVectorQuery(latency time.Duration, candidates int) {
	e.vectorQueryLatency.Observe(latency.Seconds())
	e.matchCandidates.Observe(float64(candidates))
}

// GetHandler returns the HTTP handler for Prometheus metrics.
func (e *PrometheusExporter) GetHandler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ServeHTTP implements http.Handler for the metrics endpoint.
func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.GetHandler().ServeHTTP(w, r)
}

// GetRegistry returns the Prometheus registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}
