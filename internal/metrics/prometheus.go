package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription server
type Metrics struct {
	// Chunk ingestion metrics
	ChunksReceived  prometheus.Counter
	ChunkBytes      prometheus.Counter
	ChunkSize       prometheus.Histogram
	RejectedChunks  prometheus.Counter

	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsFinalized prometheus.Counter
	SessionsExpired   prometheus.Counter
	SessionAudioSecs  prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// Text processing metrics
	ProcessRequests *prometheus.CounterVec
	ProcessFailures *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Chunk ingestion metrics
		ChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_chunks_received_total",
			Help: "Total number of audio chunks received",
		}),
		ChunkBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_chunk_bytes_total",
			Help: "Total compressed audio bytes received",
		}),
		ChunkSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_chunk_size_bytes",
			Help:    "Size of received audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 10), // 1KB to ~1MB
		}),
		RejectedChunks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_chunks_rejected_total",
			Help: "Total number of chunks rejected for malformed headers",
		}),

		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_active_sessions",
			Help: "Current number of session buffers awaiting finalize",
		}),
		SessionsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_finalized_total",
			Help: "Total number of sessions finalized",
		}),
		SessionsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_expired_total",
			Help: "Total number of abandoned sessions expired by cleanup",
		}),
		SessionAudioSecs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_session_audio_duration_seconds",
			Help:    "Reassembled audio duration per finalized session",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// Text processing metrics
		ProcessRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_process_requests_total",
			Help: "Total number of transcript processing requests",
		}, []string{"action"}),
		ProcessFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_process_failures_total",
			Help: "Total number of failed transcript processing requests",
		}, []string{"action"}),

		// HTTP API metrics
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

// RecordChunkReceived records one accepted chunk upload
func (m *Metrics) RecordChunkReceived(sizeBytes int) {
	m.ChunksReceived.Inc()
	m.ChunkBytes.Add(float64(sizeBytes))
	m.ChunkSize.Observe(float64(sizeBytes))
}

// RecordChunkRejected increments the rejected chunks counter
func (m *Metrics) RecordChunkRejected() {
	m.RejectedChunks.Inc()
}

// SetActiveSessions sets the current number of session buffers
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionFinalized records a finalized session and its audio duration
func (m *Metrics) RecordSessionFinalized(audioSeconds float64) {
	m.SessionsFinalized.Inc()
	m.SessionAudioSecs.Observe(audioSeconds)
}

// RecordSessionExpired increments the expired sessions counter
func (m *Metrics) RecordSessionExpired() {
	m.SessionsExpired.Inc()
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordProcessRequest records a transcript processing request
func (m *Metrics) RecordProcessRequest(action string) {
	m.ProcessRequests.WithLabelValues(action).Inc()
}

// RecordProcessFailure records a failed transcript processing request
func (m *Metrics) RecordProcessFailure(action string) {
	m.ProcessFailures.WithLabelValues(action).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
