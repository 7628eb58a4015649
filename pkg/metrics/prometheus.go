package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records consultation metrics with Prometheus.
// A nil *Recorder is valid and records nothing.
// ⭐ SSOT: 메트릭 정의는 여기서만
type Recorder struct {
	evaluations *prometheus.CounterVec
	inFlight    prometheus.Gauge
	latency     *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	failure     prometheus.Gauge
	signals     prometheus.Counter
	errorsTotal *prometheus.CounterVec
}

// New creates a recorder registered on reg.
// Pass prometheus.DefaultRegisterer to expose it on /metrics.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consult_evaluations_total",
				Help: "Evaluation outcomes by status",
			},
			[]string{"status"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "consult_evaluations_in_flight",
				Help: "Evaluator calls currently running",
			},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "consult_evaluation_duration_seconds",
				Help:    "Duration of evaluator calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"status"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consult_runs_total",
				Help: "Consultation runs by result",
			},
			[]string{"result"}, // ok, degraded, aborted
		),
		failure: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "consult_last_failure_ratio",
				Help: "Failure ratio of the last completed run",
			},
		),
		signals: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "consult_signals_returned_total",
				Help: "Signals returned after deduplication",
			},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consult_errors_total",
				Help: "Run-level errors by kind",
			},
			[]string{"kind"},
		),
	}
}

// EvaluationStarted marks an evaluator call as running
func (r *Recorder) EvaluationStarted() {
	if r == nil {
		return
	}
	r.inFlight.Inc()
}

// EvaluationFinished marks an evaluator call as returned
func (r *Recorder) EvaluationFinished() {
	if r == nil {
		return
	}
	r.inFlight.Dec()
}

// RecordOutcome records the final status of one instance
func (r *Recorder) RecordOutcome(status string, seconds float64) {
	if r == nil {
		return
	}
	r.evaluations.WithLabelValues(status).Inc()
	r.latency.WithLabelValues(status).Observe(seconds)
}

// RecordRun records a completed run
func (r *Recorder) RecordRun(result string, failureRatio float64, signals int) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(result).Inc()
	r.failure.Set(failureRatio)
	r.signals.Add(float64(signals))
}

// RecordError records a run-level error occurrence
func (r *Recorder) RecordError(kind string) {
	if r == nil {
		return
	}
	r.errorsTotal.WithLabelValues(kind).Inc()
}
