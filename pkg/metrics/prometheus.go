package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	requestsTotal     *prometheus.CounterVec
	cacheTotal        *prometheus.CounterVec
	throttlesTotal    prometheus.Counter
	refillRate        prometheus.Gauge
	scanDuration      *prometheus.HistogramVec
	alertsTotal       *prometheus.CounterVec
	streamEventsTotal *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowscan_provider_requests_total",
				Help: "Total provider REST requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		cacheTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowscan_provider_cache_total",
				Help: "Provider cache lookups by endpoint and result",
			},
			[]string{"endpoint", "result"},
		),
		throttlesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "flowscan_provider_throttles_total",
				Help: "Total 429 responses seen from the provider",
			},
		),
		refillRate: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowscan_quota_refill_per_sec",
				Help: "Current adaptive token refill rate",
			},
		),
		scanDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowscan_scan_duration_seconds",
				Help:    "Duration of one scan cycle per mode",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"mode"},
		),
		alertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowscan_alerts_total",
				Help: "Alerts by mode and whether they were emitted or suppressed",
			},
			[]string{"mode", "result"},
		),
		streamEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowscan_stream_events_total",
				Help: "Websocket events accepted per channel",
			},
			[]string{"channel"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowscan_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordRequest records one provider request outcome.
func (r *Recorder) RecordRequest(endpoint, outcome string) {
	r.requestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// RecordCache records a cache lookup result for an endpoint.
func (r *Recorder) RecordCache(endpoint string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheTotal.WithLabelValues(endpoint, result).Inc()
}

// RecordThrottle records a provider 429.
func (r *Recorder) RecordThrottle() {
	r.throttlesTotal.Inc()
}

// RecordRefillRate records the governor's current refill rate.
func (r *Recorder) RecordRefillRate(tokensPerSec float64) {
	r.refillRate.Set(tokensPerSec)
}

// RecordScanDuration records one scan cycle's wall time.
func (r *Recorder) RecordScanDuration(mode string, seconds float64) {
	r.scanDuration.WithLabelValues(mode).Observe(seconds)
}

// RecordAlert records an alert decision for a mode.
func (r *Recorder) RecordAlert(mode string, emitted bool) {
	result := "suppressed"
	if emitted {
		result = "emitted"
	}
	r.alertsTotal.WithLabelValues(mode, result).Inc()
}

// RecordStreamEvent records one accepted websocket event.
func (r *Recorder) RecordStreamEvent(channel string) {
	r.streamEventsTotal.WithLabelValues(channel).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
