// Package application runs battles: it fans prompts out to every candidate,
// has every candidate judge the anonymised-by-number answers, and resolves a
// single winner. It also loads configuration and recomputes stored winners.
package application

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-arena/internal/domain"
	"github.com/ahrav/go-arena/internal/ports"
)

// tracerName identifies spans created by this package.
const tracerName = "github.com/ahrav/go-arena/internal/application"

// Metric names recorded through ports.MetricsCollector.
const (
	MetricInvocations       = "arena_invocations_total"
	MetricInvocationLatency = "arena_invocation"
	MetricBattles           = "arena_battles_total"
	MetricBattleLatency     = "arena_battle"
)

// Option configures an Invoker, Arena or Rejudger.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	metrics  ports.MetricsCollector
	observer ports.BattleObserver
	tracer   trace.Tracer
}

// WithLogger sets the structured logger. A nil logger selects slog.Default.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithMetrics sets the collector for invocation and battle metrics.
func WithMetrics(m ports.MetricsCollector) Option { return func(o *options) { o.metrics = m } }

// WithObserver sets the observer notified of phase boundaries.
func WithObserver(obs ports.BattleObserver) Option { return func(o *options) { o.observer = obs } }

// WithTracer overrides the tracer used for phase spans.
func WithTracer(t trace.Tracer) Option { return func(o *options) { o.tracer = t } }

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = nopMetrics{}
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}

type nopMetrics struct{}

func (nopMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (nopMetrics) RecordCounter(string, float64, map[string]string)       {}
func (nopMetrics) RecordGauge(string, float64, map[string]string)         {}
func (nopMetrics) RecordHistogram(string, float64, map[string]string)     {}

type nopObserver struct{}

func (nopObserver) PhaseStarted(ctx context.Context, _ string) context.Context { return ctx }
func (nopObserver) PhaseFinished(context.Context, string, time.Duration, error) {}
func (nopObserver) BattleFinished(context.Context, *domain.BattleResult)        {}
