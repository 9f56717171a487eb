package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-arena/internal/domain"
	"github.com/ahrav/go-arena/internal/ports"
)

var _ ports.BattleObserver = (*OTelBattleObserver)(nil)

// OTelBattleObserver annotates the active span with battle lifecycle events
// and forwards phase timings and outcomes to a metrics collector. It keeps no
// per-run state, so one instance serves concurrent battles.
type OTelBattleObserver struct {
	metrics ports.MetricsCollector
}

// NewOTelBattleObserver creates an observer. metrics may be nil.
func NewOTelBattleObserver(metrics ports.MetricsCollector) *OTelBattleObserver {
	return &OTelBattleObserver{metrics: metrics}
}

// PhaseStarted records a phase.started event on the span carried by ctx.
func (o *OTelBattleObserver) PhaseStarted(ctx context.Context, phase string) context.Context {
	trace.SpanFromContext(ctx).AddEvent("phase.started", trace.WithAttributes(
		attribute.String("arena.phase", phase),
	))
	return ctx
}

// PhaseFinished records a phase.finished event and the phase latency.
func (o *OTelBattleObserver) PhaseFinished(ctx context.Context, phase string, elapsed time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	status := "success"
	if err != nil {
		status = "error"
		span.AddEvent("phase.failed", trace.WithAttributes(
			attribute.String("arena.phase", phase),
			attribute.String("error", err.Error()),
		))
	} else {
		span.AddEvent("phase.finished", trace.WithAttributes(
			attribute.String("arena.phase", phase),
			attribute.Float64("elapsed_seconds", elapsed.Seconds()),
		))
	}

	if o.metrics != nil {
		o.metrics.RecordLatency(MetricPhaseLatency, elapsed, map[string]string{
			"phase":  phase,
			"status": status,
		})
	}
}

// BattleFinished records the outcome on the span and publishes per-battle
// metrics: tie methods, judge parse modes, failed answers and averages.
func (o *OTelBattleObserver) BattleFinished(ctx context.Context, result *domain.BattleResult) {
	span := trace.SpanFromContext(ctx)
	o.addResultAttributes(span, result)

	if result.Tiebreak.TieOccurred {
		span.AddEvent("battle.tie", trace.WithAttributes(
			attribute.StringSlice("tied_models", result.Tiebreak.TiedModels),
			attribute.String("method", string(result.Tiebreak.Method)),
			attribute.Int("levels_used", len(result.Tiebreak.LevelsUsed)),
		))
	}

	failed := 0
	for _, resp := range result.Responses {
		if resp.Failed {
			failed++
		}
	}
	if failed == len(result.Responses) && failed > 0 {
		span.SetStatus(codes.Error, "every candidate failed to answer")
	}

	o.updateMetrics(result)
}

func (o *OTelBattleObserver) addResultAttributes(span trace.Span, result *domain.BattleResult) {
	span.SetAttributes(
		attribute.String("arena.winner", result.Winner),
		attribute.Bool("arena.tie_occurred", result.Tiebreak.TieOccurred),
		attribute.Int("arena.responses", len(result.Responses)),
		attribute.Int("arena.judges", len(result.Ratings)),
	)
	for key, mode := range result.ParseModes {
		if mode != domain.ParseModeJSON {
			span.AddEvent("judge.degraded", trace.WithAttributes(
				attribute.String("judge", key),
				attribute.String("mode", string(mode)),
			))
		}
	}
}

func (o *OTelBattleObserver) updateMetrics(result *domain.BattleResult) {
	if o.metrics == nil {
		return
	}

	if result.Tiebreak.TieOccurred {
		o.metrics.RecordCounter(MetricTies, 1, map[string]string{"method": string(result.Tiebreak.Method)})
	}
	for judge, mode := range result.ParseModes {
		o.metrics.RecordCounter(MetricParseModes, 1, map[string]string{"judge": judge, "mode": string(mode)})
	}
	for _, resp := range result.Responses {
		if resp.Failed {
			o.metrics.RecordCounter(MetricFailedAnswers, 1, map[string]string{"candidate": resp.Candidate})
		}
	}
	for candidate, avg := range result.AverageScores {
		o.metrics.RecordGauge(MetricAverageScore, avg, map[string]string{"candidate": candidate})
	}
}
