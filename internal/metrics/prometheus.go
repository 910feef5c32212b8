// Package metrics exposes Prometheus collectors for the relay. A nil
// *Metrics is a valid no-op receiver so components can run without a
// registry in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the relay service.
type Metrics struct {
	// Connection metrics
	ActiveConnections prometheus.Gauge
	ConnectionsOpened prometheus.Counter
	ConnectionsClosed prometheus.Counter
	HeartbeatTimeouts prometheus.Counter

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsEnded   *prometheus.CounterVec

	// Delivery metrics
	TranslationsDelivered prometheus.Counter
	TranscriptsEmitted    prometheus.Counter

	// Audio pipeline metrics
	AudioChunksReceived  prometheus.Counter
	AudioBytesBuffered   prometheus.Gauge
	AudioBufferTruncated prometheus.Counter
	StreamingStates      prometheus.Gauge

	// Provider metrics
	TranscriptionFailures prometheus.Counter
	TranscriptionDuration prometheus.Histogram
	TranslationDuration   prometheus.Histogram

	// Cleanup metrics
	CleanupPasses   prometheus.Counter
	SessionsCleaned *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on the default registry.
// Call once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lingocast_active_connections",
			Help: "Current number of open WebSocket connections",
		}),
		ConnectionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lingocast_connections_opened_total",
			Help: "Total number of WebSocket connections opened",
		}),
		ConnectionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lingocast_connections_closed_total",
			Help: "Total number of WebSocket connections closed",
		}),
		HeartbeatTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lingocast_heartbeat_timeouts_total",
			Help: "Total number of connections terminated for missed heartbeats",
		}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lingocast_active_sessions",
			Help: "Current number of active classroom sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lingocast_sessions_created_total",
			Help: "Total number of classroom sessions created",
		}),
		SessionsEnded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lingocast_sessions_ended_total",
			Help: "Total number of classroom sessions ended",
		}, []string{"quality"}),
		TranslationsDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lingocast_translations_delivered_total",
			Help: "Total number of translation messages delivered to students",
		}),
		TranscriptsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lingocast_transcripts_emitted_total",
			Help: "Total number of transcript events emitted",
		}),
		AudioChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lingocast_audio_chunks_received_total",
			Help: "Total number of audio chunks ingested",
		}),
		AudioBytesBuffered: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lingocast_audio_bytes_buffered",
			Help: "Current bytes of audio buffered across streaming states",
		}),
		AudioBufferTruncated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lingocast_audio_buffer_truncations_total",
			Help: "Total number of retained-context truncations",
		}),
		StreamingStates: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lingocast_streaming_states",
			Help: "Current number of per-session streaming audio states",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lingocast_transcription_failures_total",
			Help: "Total number of terminal transcription chain failures",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lingocast_transcription_duration_seconds",
			Help:    "Duration of transcription chain calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		TranslationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lingocast_translation_duration_seconds",
			Help:    "Duration of translation chain calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		CleanupPasses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lingocast_cleanup_passes_total",
			Help: "Total number of cleanup scheduler ticks",
		}),
		SessionsCleaned: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lingocast_sessions_cleaned_total",
			Help: "Total number of sessions deactivated by cleanup strategies",
		}, []string{"strategy"}),
	}
}

// Nil-safe recording helpers. Components hold a possibly-nil *Metrics.

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsOpened.Inc()
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsClosed.Inc()
	m.ActiveConnections.Dec()
}

func (m *Metrics) HeartbeatTimeout() {
	if m == nil {
		return
	}
	m.HeartbeatTimeouts.Inc()
}

func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionEnded(quality string) {
	if m == nil {
		return
	}
	m.SessionsEnded.WithLabelValues(quality).Inc()
	m.ActiveSessions.Dec()
}

func (m *Metrics) TranslationDelivered() {
	if m == nil {
		return
	}
	m.TranslationsDelivered.Inc()
}

func (m *Metrics) TranscriptEmitted() {
	if m == nil {
		return
	}
	m.TranscriptsEmitted.Inc()
}

func (m *Metrics) AudioChunkReceived(bufferedBytes int) {
	if m == nil {
		return
	}
	m.AudioChunksReceived.Inc()
	m.AudioBytesBuffered.Set(float64(bufferedBytes))
}

func (m *Metrics) AudioTruncated() {
	if m == nil {
		return
	}
	m.AudioBufferTruncated.Inc()
}

func (m *Metrics) SetStreamingStates(n int) {
	if m == nil {
		return
	}
	m.StreamingStates.Set(float64(n))
}

func (m *Metrics) TranscriptionFailed() {
	if m == nil {
		return
	}
	m.TranscriptionFailures.Inc()
}

func (m *Metrics) ObserveTranscription(seconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionDuration.Observe(seconds)
}

func (m *Metrics) ObserveTranslation(seconds float64) {
	if m == nil {
		return
	}
	m.TranslationDuration.Observe(seconds)
}

func (m *Metrics) CleanupPass() {
	if m == nil {
		return
	}
	m.CleanupPasses.Inc()
}

func (m *Metrics) SessionCleaned(strategy string) {
	if m == nil {
		return
	}
	m.SessionsCleaned.WithLabelValues(strategy).Inc()
}
