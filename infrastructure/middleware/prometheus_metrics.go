// Package middleware provides the observability adapters for the arena:
// a Prometheus metrics collector and an OpenTelemetry battle observer.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-arena/infrastructure/llm"
	"github.com/ahrav/go-arena/internal/application"
	"github.com/ahrav/go-arena/internal/ports"
)

// Metric names recorded by OTelBattleObserver.
const (
	MetricPhaseLatency  = "arena_phase"
	MetricTies          = "arena_ties_total"
	MetricParseModes    = "arena_parse_modes_total"
	MetricFailedAnswers = "arena_failed_responses_total"
	MetricAverageScore  = "arena_last_average_score"
)

const (
	unknownLabelValue   = "unknown"
	circuitEventTrip    = "rejected"
	circuitEventSuccess = "success"
	circuitEventFailure = "failure"
)

var (
	_ ports.MetricsCollector    = (*PrometheusMetrics)(nil)
	_ llm.CircuitBreakerMetrics = (*PrometheusMetrics)(nil)
)

// PrometheusMetrics implements ports.MetricsCollector and
// llm.CircuitBreakerMetrics on Prometheus. Known metric names map to
// dedicated vectors; anything else lands in the generic operation vectors.
type PrometheusMetrics struct {
	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	invocations       *prometheus.CounterVec
	invocationLatency *prometheus.HistogramVec
	battles           *prometheus.CounterVec
	battleLatency     *prometheus.HistogramVec
	phaseLatency      *prometheus.HistogramVec
	ties              *prometheus.CounterVec
	parseModes        *prometheus.CounterVec
	failedResponses   *prometheus.CounterVec
	averageScores     *prometheus.GaugeVec

	circuitState  *prometheus.GaugeVec
	circuitEvents *prometheus.CounterVec

	operationLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates the arena metrics and registers them with reg.
// A nil reg selects prometheus.DefaultRegisterer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	llmLabels := []string{"provider", "model", "status"}
	callLabels := []string{"candidate", "phase", "status"}

	return &PrometheusMetrics{
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_llm_requests_total",
			Help: "Provider requests by outcome.",
		}, llmLabels),
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arena_llm_request_duration_seconds",
			Help:    "Latency of single provider requests.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, llmLabels),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_llm_tokens_total",
			Help: "Tokens consumed by provider requests.",
		}, []string{"provider", "model", "token_type"}),

		invocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_invocations_total",
			Help: "Candidate calls after retries, by phase and outcome.",
		}, callLabels),
		invocationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arena_invocation_duration_seconds",
			Help:    "Wall-clock time of candidate calls including retries.",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, callLabels),
		battles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_battles_total",
			Help: "Battle runs by outcome.",
		}, []string{"status"}),
		battleLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arena_battle_duration_seconds",
			Help:    "End-to-end battle duration.",
			Buckets: []float64{1, 5, 10, 20, 40, 80, 160},
		}, []string{"status"}),
		phaseLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arena_phase_duration_seconds",
			Help:    "Duration of each battle phase.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase", "status"}),
		ties: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_ties_total",
			Help: "Battles whose winner needed a tiebreak, by deciding method.",
		}, []string{"method"}),
		parseModes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_parse_modes_total",
			Help: "How judge outputs were interpreted.",
		}, []string{"judge", "mode"}),
		failedResponses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_failed_responses_total",
			Help: "Answers replaced by an error marker.",
		}, []string{"candidate"}),
		averageScores: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arena_last_average_score",
			Help: "Average score each candidate received in the latest battle.",
		}, []string{"candidate"}),

		circuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arena_circuit_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 open, 2 half-open).",
		}, []string{"provider"}),
		circuitEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_circuit_breaker_events_total",
			Help: "Circuit breaker outcomes per provider.",
		}, []string{"provider", "event"}),

		operationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arena_operation_duration_seconds",
			Help:    "Duration of operations without a dedicated metric.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		operationCounter: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_operations_total",
			Help: "Counters without a dedicated metric.",
		}, []string{"operation", "status"}),
		systemGauges: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arena_system_state",
			Help: "Gauges without a dedicated metric.",
		}, []string{"metric"}),
	}
}

// label returns labels[key], or "unknown" when it is missing or empty.
func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return unknownLabelValue
}

// RecordLatency observes duration in seconds.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	seconds := duration.Seconds()
	switch operation {
	case application.MetricInvocationLatency:
		pm.invocationLatency.WithLabelValues(
			label(labels, "candidate"), label(labels, "phase"), label(labels, "status"),
		).Observe(seconds)
	case application.MetricBattleLatency:
		pm.battleLatency.WithLabelValues(label(labels, "status")).Observe(seconds)
	case MetricPhaseLatency:
		pm.phaseLatency.WithLabelValues(label(labels, "phase"), label(labels, "status")).Observe(seconds)
	default:
		pm.operationLatency.WithLabelValues(operation).Observe(seconds)
	}
}

// RecordCounter adds value to the counter named metric.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case llm.MetricLLMRequests:
		pm.llmRequests.WithLabelValues(
			label(labels, "provider"), label(labels, "model"), label(labels, "status"),
		).Add(value)
	case llm.MetricLLMTokens:
		pm.llmTokens.WithLabelValues(
			label(labels, "provider"), label(labels, "model"), label(labels, "token_type"),
		).Add(value)
	case application.MetricInvocations:
		pm.invocations.WithLabelValues(
			label(labels, "candidate"), label(labels, "phase"), label(labels, "status"),
		).Add(value)
	case application.MetricBattles:
		pm.battles.WithLabelValues(label(labels, "status")).Add(value)
	case MetricTies:
		pm.ties.WithLabelValues(label(labels, "method")).Add(value)
	case MetricParseModes:
		pm.parseModes.WithLabelValues(label(labels, "judge"), label(labels, "mode")).Add(value)
	case MetricFailedAnswers:
		pm.failedResponses.WithLabelValues(label(labels, "candidate")).Add(value)
	default:
		status := labels["status"]
		if status == "" {
			status = "success"
		}
		pm.operationCounter.WithLabelValues(metric, status).Add(value)
	}
}

// RecordGauge sets the gauge named metric.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	switch metric {
	case MetricAverageScore:
		pm.averageScores.WithLabelValues(label(labels, "candidate")).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric).Set(value)
	}
}

// RecordHistogram observes value in the histogram named metric. Values for
// llm.MetricLLMLatency are seconds.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case llm.MetricLLMLatency:
		pm.llmLatency.WithLabelValues(
			label(labels, "provider"), label(labels, "model"), label(labels, "status"),
		).Observe(value)
	default:
		pm.operationLatency.WithLabelValues(metric).Observe(value)
	}
}

// RecordState publishes the breaker state for provider.
func (pm *PrometheusMetrics) RecordState(provider string, state llm.CircuitBreakerState) {
	pm.circuitState.WithLabelValues(provider).Set(float64(state))
}

// RecordTrip counts a request rejected by an open breaker.
func (pm *PrometheusMetrics) RecordTrip(provider string) {
	pm.circuitEvents.WithLabelValues(provider, circuitEventTrip).Inc()
}

// RecordSuccess counts a request the breaker let through that succeeded.
func (pm *PrometheusMetrics) RecordSuccess(provider string) {
	pm.circuitEvents.WithLabelValues(provider, circuitEventSuccess).Inc()
}

// RecordFailure counts a request the breaker let through that failed.
func (pm *PrometheusMetrics) RecordFailure(provider string) {
	pm.circuitEvents.WithLabelValues(provider, circuitEventFailure).Inc()
}

