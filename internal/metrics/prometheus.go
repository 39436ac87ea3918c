// Package metrics defines the Prometheus metrics for the dictation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the note pipeline
type Metrics struct {
	// Pipeline metrics
	PipelineRequests   prometheus.Counter
	PipelineSuccesses  prometheus.Counter
	PipelineFailures   *prometheus.CounterVec
	PipelineDuration   prometheus.Histogram
	ActiveRequests     prometheus.Gauge
	ValidationFailures prometheus.Counter

	// Stage metrics
	TranscodeDuration     prometheus.Histogram
	TranscriptionDuration prometheus.Histogram
	GenerationDuration    prometheus.Histogram

	// Generation quality metrics
	MalformedNotes prometheus.Counter

	// Session store metrics
	SessionsSaved   prometheus.Counter
	SessionsDeleted prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		PipelineRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_pipeline_requests_total",
			Help: "Total number of note pipeline requests",
		}),
		PipelineSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_pipeline_successes_total",
			Help: "Total number of successful note pipeline requests",
		}),
		PipelineFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_pipeline_failures_total",
			Help: "Total number of failed note pipeline requests",
		}, []string{"stage"}),
		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_pipeline_duration_seconds",
			Help:    "End-to-end duration of note pipeline requests",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		ActiveRequests: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_pipeline_active_requests",
			Help: "Current number of in-flight pipeline requests",
		}),
		ValidationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_validation_failures_total",
			Help: "Total number of requests rejected as invalid caller input",
		}),

		TranscodeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_transcode_duration_seconds",
			Help:    "Duration of audio transcode and normalization",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_transcription_duration_seconds",
			Help:    "Duration of speech-to-text inference",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~8 minutes
		}),
		GenerationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_generation_duration_seconds",
			Help:    "Duration of structured note generation",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),

		MalformedNotes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_malformed_notes_total",
			Help: "Total number of generation replies that degraded to raw text",
		}),

		SessionsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_saved_total",
			Help: "Total number of session documents written",
		}),
		SessionsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_deleted_total",
			Help: "Total number of session documents deleted",
		}),

		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scribe_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordPipelineStart marks a pipeline request as in flight
func (m *Metrics) RecordPipelineStart() {
	m.PipelineRequests.Inc()
	m.ActiveRequests.Inc()
}

// RecordPipelineSuccess records a completed pipeline request
func (m *Metrics) RecordPipelineSuccess(durationSeconds float64) {
	m.PipelineSuccesses.Inc()
	m.PipelineDuration.Observe(durationSeconds)
	m.ActiveRequests.Dec()
}

// RecordPipelineFailure records a failed pipeline request by stage
func (m *Metrics) RecordPipelineFailure(stage string, durationSeconds float64) {
	m.PipelineFailures.WithLabelValues(stage).Inc()
	m.PipelineDuration.Observe(durationSeconds)
	m.ActiveRequests.Dec()
}

// RecordValidationFailure increments the rejected-input counter
func (m *Metrics) RecordValidationFailure() {
	m.ValidationFailures.Inc()
}

// RecordTranscode records the duration of transcode plus normalization
func (m *Metrics) RecordTranscode(durationSeconds float64) {
	m.TranscodeDuration.Observe(durationSeconds)
}

// RecordTranscription records the duration of speech-to-text inference
func (m *Metrics) RecordTranscription(durationSeconds float64) {
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordGeneration records the duration of note generation
func (m *Metrics) RecordGeneration(durationSeconds float64) {
	m.GenerationDuration.Observe(durationSeconds)
}

// RecordMalformedNote increments the degraded-output counter
func (m *Metrics) RecordMalformedNote() {
	m.MalformedNotes.Inc()
}

// RecordSessionSaved increments the session writes counter
func (m *Metrics) RecordSessionSaved() {
	m.SessionsSaved.Inc()
}

// RecordSessionDeleted increments the session deletions counter
func (m *Metrics) RecordSessionDeleted() {
	m.SessionsDeleted.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
