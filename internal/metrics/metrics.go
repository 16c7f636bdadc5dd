// Package metrics provides Prometheus metrics for the matching and alerting pipeline.
// All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for frames and dispatches.
const (
	OutcomeMatch       = "match"
	OutcomeNoMatch     = "no_match"
	OutcomeDecodeError = "decode_error"
	OutcomeModelDown   = "model_unavailable"
	OutcomeError       = "error"

	DispatchSent    = "sent"
	DispatchSkipped = "skipped"
	DispatchFailed  = "failed"
	DispatchDropped = "dropped"
)

// Metrics contains Prometheus metrics for the pipeline
type Metrics struct {
	registry *prometheus.Registry

	framesTotal       *prometheus.CounterVec
	frameDuration     prometheus.Histogram
	detectionsTotal   prometheus.Counter
	similarity        prometheus.Histogram
	evidenceTotal     prometheus.Counter
	alertsAdmitted    prometheus.Counter
	alertsSuppressed  prometheus.Counter
	dispatchTotal     *prometheus.CounterVec
	dispatchQueue     prometheus.Gauge
	channelFailures   *prometheus.CounterVec
	enrollmentsTotal  *prometheus.CounterVec
	ingestRateLimited prometheus.Counter

	collectors []prometheus.Collector
}

// New creates metrics and registers them with registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reunite_frames_total",
			Help: "Total number of ingested frames by outcome",
		},
		[]string{"outcome"},
	)
	m.frameDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reunite_frame_duration_seconds",
		Help:    "Time taken to match and log one frame",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	})
	m.detectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reunite_detections_total",
		Help: "Total number of faces matched above threshold",
	})
	m.similarity = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reunite_match_similarity",
		Help:    "Cosine similarity of accepted detections",
		Buckets: prometheus.LinearBuckets(0.6, 0.05, 9),
	})
	m.evidenceTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reunite_evidence_records_total",
		Help: "Total number of evidence records written",
	})
	m.alertsAdmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reunite_alerts_admitted_total",
		Help: "Total number of alerts admitted by the cooldown gate",
	})
	m.alertsSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reunite_alerts_suppressed_total",
		Help: "Total number of alerts suppressed during cooldown",
	})
	m.dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reunite_dispatch_total",
			Help: "Total number of alert dispatch attempts by result",
		},
		[]string{"result"},
	)
	m.dispatchQueue = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reunite_dispatch_queue_length",
		Help: "Number of alerts waiting for dispatch",
	})
	m.channelFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reunite_notification_failures_total",
			Help: "Total number of notification transport failures by channel",
		},
		[]string{"channel"},
	)
	m.enrollmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reunite_enrollments_total",
			Help: "Total number of enrollment calls by result",
		},
		[]string{"result"},
	)
	m.ingestRateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reunite_ingest_rate_limited_total",
		Help: "Total number of frames rejected by the per-camera rate limit",
	})

	m.collectors = []prometheus.Collector{
		m.framesTotal, m.frameDuration, m.detectionsTotal, m.similarity,
		m.evidenceTotal, m.alertsAdmitted, m.alertsSuppressed, m.dispatchTotal,
		m.dispatchQueue, m.channelFailures, m.enrollmentsTotal, m.ingestRateLimited,
	}
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordFrame records one processed frame
func (m *Metrics) RecordFrame(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(outcome).Inc()
	m.frameDuration.Observe(d.Seconds())
}

// RecordDetection records an accepted face match
func (m *Metrics) RecordDetection(similarity float64) {
	if m == nil {
		return
	}
	m.detectionsTotal.Inc()
	m.similarity.Observe(similarity)
}

// RecordEvidence records a written evidence record
func (m *Metrics) RecordEvidence() {
	if m == nil {
		return
	}
	m.evidenceTotal.Inc()
}

// RecordThrottle records a cooldown decision
func (m *Metrics) RecordThrottle(admitted bool) {
	if m == nil {
		return
	}
	if admitted {
		m.alertsAdmitted.Inc()
	} else {
		m.alertsSuppressed.Inc()
	}
}

// RecordDispatch records the result of one dispatch attempt
func (m *Metrics) RecordDispatch(result string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(result).Inc()
}

// SetQueueLength updates the dispatch backlog gauge
func (m *Metrics) SetQueueLength(n int) {
	if m == nil {
		return
	}
	m.dispatchQueue.Set(float64(n))
}

// RecordChannelFailure records a failed notification channel
func (m *Metrics) RecordChannelFailure(channel string) {
	if m == nil {
		return
	}
	m.channelFailures.WithLabelValues(channel).Inc()
}

// RecordEnrollment records an enrollment call
func (m *Metrics) RecordEnrollment(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.enrollmentsTotal.WithLabelValues(result).Inc()
}

// RecordRateLimited records a frame rejected by the ingest limiter
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.ingestRateLimited.Inc()
}
