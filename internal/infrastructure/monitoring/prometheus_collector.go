package monitoring

import (
	"time"

	"ringlink/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	callsStartedTotal  *prometheus.CounterVec
	callsFinishedTotal *prometheus.CounterVec
	ringDuration       prometheus.Histogram
	callDuration       prometheus.Histogram

	recordingsStartedTotal prometheus.Counter
	recordingsStoppedTotal prometheus.Counter
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		callsStartedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ringlink_calls_started_total",
			Help: "Total number of outgoing calls started",
		}, []string{"call_type"}),

		callsFinishedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ringlink_calls_finished_total",
			Help: "Call legs finished, by terminal status",
		}, []string{"status"}),

		ringDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ringlink_call_ring_duration_seconds",
			Help:    "Time from call start to answer",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		}),

		callDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ringlink_call_duration_seconds",
			Help:    "Talk time of finished calls",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),

		recordingsStartedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ringlink_recordings_started_total",
			Help: "Total number of recordings started",
		}),

		recordingsStoppedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ringlink_recordings_stopped_total",
			Help: "Total number of recordings flushed",
		}),
	}
}

func (p *PrometheusCollector) RecordCallStarted(callType domain.CallType) {
	p.callsStartedTotal.WithLabelValues(string(callType)).Inc()
}

func (p *PrometheusCollector) RecordCallAnswered(ringDuration time.Duration) {
	p.ringDuration.Observe(ringDuration.Seconds())
}

func (p *PrometheusCollector) RecordCallFinished(status domain.CallStatus, talkDuration time.Duration) {
	p.callsFinishedTotal.WithLabelValues(string(status)).Inc()
	if talkDuration > 0 {
		p.callDuration.Observe(talkDuration.Seconds())
	}
}

func (p *PrometheusCollector) RecordRecordingStarted() {
	p.recordingsStartedTotal.Inc()
}

func (p *PrometheusCollector) RecordRecordingStopped() {
	p.recordingsStoppedTotal.Inc()
}
