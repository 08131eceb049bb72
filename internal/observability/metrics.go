package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	connectAttempts  *prometheus.CounterVec
	connectRejected  *prometheus.CounterVec
	connectionState  *prometheus.GaugeVec
	retriesScheduled prometheus.Counter
	retryDelay       prometheus.Histogram
	framesReceived   *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec

	uploadsTotal   *prometheus.CounterVec
	uploadDuration prometheus.Histogram
	uploadBytes    prometheus.Histogram

	transcriptWrites *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

var connectionStates = []string{"idle", "connecting", "open", "closed", "failed"}

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			connectAttempts: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "doctalk_connect_attempts_total",
					Help: "Channel connect attempts by trigger (manual, retry).",
				},
				[]string{"trigger"},
			),
			connectRejected: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "doctalk_connect_rejected_total",
					Help: "Connect requests rejected before dialing, by reason.",
				},
				[]string{"reason"},
			),
			connectionState: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "doctalk_connection_state",
					Help: "Current connection state (1 for the active state, 0 otherwise).",
				},
				[]string{"state"},
			),
			retriesScheduled: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "doctalk_retries_scheduled_total",
					Help: "Reconnect attempts scheduled by the backoff policy.",
				},
			),
			retryDelay: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "doctalk_retry_delay_seconds",
					Help:    "Backoff delays scheduled before reconnecting.",
					Buckets: prometheus.ExponentialBuckets(1, 2, 8),
				},
			),
			framesReceived: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "doctalk_frames_received_total",
					Help: "Inbound frames by classified kind.",
				},
				[]string{"kind"},
			),
			messagesSent: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "doctalk_messages_sent_total",
					Help: "User messages by send result.",
				},
				[]string{"status"},
			),
			uploadsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "doctalk_uploads_total",
					Help: "Document uploads by result.",
				},
				[]string{"status"},
			),
			uploadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "doctalk_upload_duration_seconds",
					Help:    "Document upload duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			uploadBytes: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "doctalk_upload_bytes",
					Help:    "Uploaded document sizes in bytes.",
					Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
				},
			),
			transcriptWrites: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "doctalk_transcript_writes_total",
					Help: "Transcript store writes by result.",
				},
				[]string{"status"},
			),
		}

		prometheus.MustRegister(
			m.connectAttempts,
			m.connectRejected,
			m.connectionState,
			m.retriesScheduled,
			m.retryDelay,
			m.framesReceived,
			m.messagesSent,
			m.uploadsTotal,
			m.uploadDuration,
			m.uploadBytes,
			m.transcriptWrites,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordConnectAttempt(retry bool) {
	m := getMetrics()
	trigger := "manual"
	if retry {
		trigger = "retry"
	}
	m.connectAttempts.WithLabelValues(trigger).Inc()
}

func RecordConnectRejected(reason string) {
	m := getMetrics()
	m.connectRejected.WithLabelValues(reason).Inc()
}

func SetConnectionState(state string) {
	m := getMetrics()
	for _, s := range connectionStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		m.connectionState.WithLabelValues(s).Set(value)
	}
}

func RecordRetryScheduled(delay time.Duration) {
	m := getMetrics()
	m.retriesScheduled.Inc()
	m.retryDelay.Observe(delay.Seconds())
}

func RecordFrame(kind string) {
	m := getMetrics()
	m.framesReceived.WithLabelValues(kind).Inc()
}

func RecordSend(success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.messagesSent.WithLabelValues(status).Inc()
}

func RecordUpload(duration time.Duration, size int64, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.uploadsTotal.WithLabelValues(status).Inc()
	m.uploadDuration.Observe(duration.Seconds())
	if size > 0 {
		m.uploadBytes.Observe(float64(size))
	}
}

func RecordTranscriptWrite(success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.transcriptWrites.WithLabelValues(status).Inc()
}
