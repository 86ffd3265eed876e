// Package metrics exposes Prometheus instrumentation for the capture and
// processing pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for gostt-live. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Capture
	ChunksFinalized prometheus.Counter
	ChunkSamples    prometheus.Histogram

	// Discovery
	ChunksDiscovered prometheus.Counter

	// Transcription
	TranscriptionRequests *prometheus.CounterVec // result: ok, empty, error
	TranscriptionDuration prometheus.Histogram
	TranscriptionRetries  prometheus.Counter

	// Analysis
	AnalysisRequests *prometheus.CounterVec // result: ok, error, panic
	AnalysisDuration prometheus.Histogram
	AnalysisInFlight prometheus.Gauge
	AnalysisDropped  prometheus.Counter

	// Events
	EventsEmitted *prometheus.CounterVec // kind
	Subscribers   prometheus.Gauge

	SessionsStarted prometheus.Counter
}

// New creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ChunksFinalized: f.NewCounter(prometheus.CounterOpts{
			Name: "gostt_live_chunks_finalized_total",
			Help: "Total number of audio chunks finalized by capture",
		}),
		ChunkSamples: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gostt_live_chunk_samples",
			Help:    "Number of interleaved samples per finalized chunk",
			Buckets: prometheus.ExponentialBuckets(16000, 2, 8), // 1s mono 16k to ~2 minutes
		}),
		ChunksDiscovered: f.NewCounter(prometheus.CounterOpts{
			Name: "gostt_live_chunks_discovered_total",
			Help: "Total number of chunks picked up by discovery",
		}),
		TranscriptionRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gostt_live_transcription_requests_total",
			Help: "Total number of transcription calls by result",
		}, []string{"result"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gostt_live_transcription_duration_seconds",
			Help:    "Duration of transcription calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),
		TranscriptionRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "gostt_live_transcription_retries_total",
			Help: "Total number of transcription retries",
		}),
		AnalysisRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gostt_live_analysis_requests_total",
			Help: "Total number of analysis calls by result",
		}, []string{"result"}),
		AnalysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gostt_live_analysis_duration_seconds",
			Help:    "Duration of analysis calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		AnalysisInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "gostt_live_analysis_in_flight",
			Help: "Current number of running analysis calls",
		}),
		AnalysisDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "gostt_live_analysis_dropped_total",
			Help: "Transcripts dropped from a full analysis queue",
		}),
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gostt_live_events_emitted_total",
			Help: "Total number of published events by kind",
		}, []string{"kind"}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "gostt_live_websocket_clients",
			Help: "Current number of connected WebSocket clients",
		}),
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "gostt_live_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
	}
}

// RecordChunkFinalized counts a finalized chunk and its size.
func (m *Metrics) RecordChunkFinalized(samples int) {
	if m == nil {
		return
	}
	m.ChunksFinalized.Inc()
	m.ChunkSamples.Observe(float64(samples))
}

// RecordChunkDiscovered counts a chunk handed to the dispatcher.
func (m *Metrics) RecordChunkDiscovered() {
	if m == nil {
		return
	}
	m.ChunksDiscovered.Inc()
}

// RecordTranscription records the result and latency of one transcription.
func (m *Metrics) RecordTranscription(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.TranscriptionRequests.WithLabelValues(result).Inc()
	m.TranscriptionDuration.Observe(d.Seconds())
}

// RecordTranscriptionRetry counts one retried transcription attempt.
func (m *Metrics) RecordTranscriptionRetry() {
	if m == nil {
		return
	}
	m.TranscriptionRetries.Inc()
}

// RecordAnalysis records the result and latency of one analysis.
func (m *Metrics) RecordAnalysis(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.AnalysisRequests.WithLabelValues(result).Inc()
	m.AnalysisDuration.Observe(d.Seconds())
}

// AnalysisStarted increments the in-flight gauge.
func (m *Metrics) AnalysisStarted() {
	if m == nil {
		return
	}
	m.AnalysisInFlight.Inc()
}

// AnalysisFinished decrements the in-flight gauge.
func (m *Metrics) AnalysisFinished() {
	if m == nil {
		return
	}
	m.AnalysisInFlight.Dec()
}

// RecordAnalysisDropped counts a transcript dropped without analysis.
func (m *Metrics) RecordAnalysisDropped() {
	if m == nil {
		return
	}
	m.AnalysisDropped.Inc()
}

// RecordEvent counts a published event.
func (m *Metrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(kind).Inc()
}

// SetSubscribers sets the number of connected WebSocket clients.
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}

// RecordSessionStarted counts a started recording session.
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}
