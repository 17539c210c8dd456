package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gate.
type Metrics struct {
	EvaluationTotal      *prometheus.CounterVec
	EvaluationDurationMs *prometheus.HistogramVec
	DetectorOutcomeTotal *prometheus.CounterVec
	DetectorDurationMs   *prometheus.HistogramVec
	ClassifierStageTotal *prometheus.CounterVec
	ProviderRequestTotal *prometheus.CounterVec
	StoreErrorTotal      *prometheus.CounterVec
	RateLimitHitTotal    prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metrics with reg. Tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EvaluationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_evaluations_total",
			Help: "Total number of messages evaluated by the gate.",
		}, []string{"route", "block_reason"}),

		EvaluationDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gate_evaluation_duration_ms",
			Help:    "End-to-end gate evaluation time in milliseconds.",
			Buckets: []float64{5, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"route"}),

		DetectorOutcomeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_detector_outcome_total",
			Help: "Detector runs by outcome (pass, flag, block, error, timeout).",
		}, []string{"detector", "outcome"}),

		DetectorDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gate_detector_duration_ms",
			Help:    "Detector latency in milliseconds.",
			Buckets: []float64{1, 5, 25, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"detector"}),

		ClassifierStageTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_classifier_stage_total",
			Help: "Complexity cascade stage answers (yes, no, error).",
		}, []string{"stage", "answer"}),

		ProviderRequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_provider_request_total",
			Help: "Classifier calls to model providers by status.",
		}, []string{"provider", "status"}),

		StoreErrorTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_store_error_total",
			Help: "Block-list store failures (the gate fails open on these).",
		}, []string{"store"}),

		RateLimitHitTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gate_rate_limit_hits_total",
			Help: "Evaluations rejected by the per-caller rate limit.",
		}),
	}
}

// RecordEvaluation records a completed gate evaluation.
func (m *Metrics) RecordEvaluation(route, blockReason string, durationMs float64) {
	if blockReason == "" {
		blockReason = "none"
	}
	m.EvaluationTotal.WithLabelValues(route, blockReason).Inc()
	m.EvaluationDurationMs.WithLabelValues(route).Observe(durationMs)
}

// RecordDetector records one detector run.
func (m *Metrics) RecordDetector(detector, outcome string, durationMs float64) {
	m.DetectorOutcomeTotal.WithLabelValues(detector, outcome).Inc()
	m.DetectorDurationMs.WithLabelValues(detector).Observe(durationMs)
}

// RecordDetectorFlag records a non-blocking flag raised alongside a detector run.
func (m *Metrics) RecordDetectorFlag(detector string) {
	m.DetectorOutcomeTotal.WithLabelValues(detector, "flag").Inc()
}

// RecordStage records a complexity cascade answer.
func (m *Metrics) RecordStage(stage, answer string) {
	m.ClassifierStageTotal.WithLabelValues(stage, answer).Inc()
}

// RecordProviderRequest records a classifier call to a provider.
func (m *Metrics) RecordProviderRequest(provider, status string) {
	m.ProviderRequestTotal.WithLabelValues(provider, status).Inc()
}

// RecordStoreError records a block-list store failure.
func (m *Metrics) RecordStoreError(store string) {
	m.StoreErrorTotal.WithLabelValues(store).Inc()
}

// RecordRateLimitHit records an evaluation rejected by the rate limit.
func (m *Metrics) RecordRateLimitHit() {
	m.RateLimitHitTotal.Inc()
}
