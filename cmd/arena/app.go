package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ahrav/go-arena/infrastructure/llm"
	"github.com/ahrav/go-arena/infrastructure/middleware"
	"github.com/ahrav/go-arena/infrastructure/store"
	"github.com/ahrav/go-arena/internal/application"
	"github.com/ahrav/go-arena/internal/ports"
)

const instrumentationName = "github.com/ahrav/go-arena"

// app holds the wired components shared by the subcommands.
type app struct {
	cfg      *application.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *middleware.PrometheusMetrics
	tracer   *sdktrace.TracerProvider
	store    ports.BattleStore
	roster   *llm.Roster
	arena    *application.Arena

	closers []func() error
}

// newApp loads the configuration and opens the battle store. The roster and
// arena are built only when withArena is set, so read-only commands work
// without provider credentials.
func newApp(ctx context.Context, flags *globalFlags, withArena bool) (*app, error) {
	cfg, err := application.LoadConfig(flags.configPath)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   slog.Default(),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = middleware.NewPrometheusMetrics(a.registry)

	a.tracer = sdktrace.NewTracerProvider()
	otel.SetTracerProvider(a.tracer)
	a.closers = append(a.closers, func() error { return a.tracer.Shutdown(context.Background()) })

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if withArena {
		if err := a.buildArena(); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case "mysql":
		st, err := store.OpenMySQL(ctx, store.MySQLConfig{
			DSN:             a.cfg.Store.DSN,
			MaxOpenConns:    a.cfg.Store.MaxOpenConns,
			MaxIdleConns:    a.cfg.Store.MaxIdleConns,
			ConnMaxLifetime: a.cfg.Store.ConnMaxLifetime,
		}, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, st.Close)
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		a.store = st
	default:
		a.logger.Warn("using in-memory battle store; battles are lost on exit")
		a.store = store.NewMemoryStore()
	}
	return nil
}

func (a *app) buildArena() error {
	battle := a.cfg.Battle
	roster, err := llm.NewRoster(a.cfg.CandidateConfigs(),
		llm.TracingMiddleware(instrumentationName),
		llm.MetricsMiddleware(a.metrics),
		llm.CircuitBreakerMiddlewareWithMetrics(battle.CircuitMaxFailures, battle.CircuitCooldown, a.metrics),
	)
	if err != nil {
		return fmt.Errorf("build roster: %w", err)
	}
	a.roster = roster

	opts := []application.Option{
		application.WithLogger(a.logger),
		application.WithMetrics(a.metrics),
		application.WithObserver(middleware.NewOTelBattleObserver(a.metrics)),
		application.WithTracer(a.tracer.Tracer(instrumentationName)),
	}
	invoker := application.NewInvoker(roster, a.cfg.InvokerConfig(), opts...)
	a.arena = application.NewArena(roster, invoker, opts...)

	a.logger.Info("arena ready", "candidates", roster.Len(),
		"max_attempts", battle.MaxAttempts, "call_timeout", battle.CallTimeout)
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("cleanup failed", "error", err)
		}
	}
	a.closers = nil
}
