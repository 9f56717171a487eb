package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ahrav/go-arena/internal/ports"
)

// Retry policy defaults.
const (
	DefaultMaxAttempts = 2
	DefaultBackoff     = time.Second
)

// Call is a single prompt addressed to one candidate.
type Call struct {
	Candidate string
	// Phase is the battle phase issuing the call, used for logs and metrics.
	Phase   string
	Prompt  string
	Options map[string]any
}

// Outcome is the result of invoking a candidate. Exactly one of Text and
// Err is meaningful; Elapsed spans every attempt including backoff.
type Outcome struct {
	Text     string
	Err      error
	Elapsed  time.Duration
	Attempts int
}

// InvokerConfig is the retry policy.
type InvokerConfig struct {
	// MaxAttempts bounds the number of attempts per call. Values below 1
	// select DefaultMaxAttempts.
	MaxAttempts int
	// Backoff is the pause between attempts. Zero selects DefaultBackoff;
	// a negative value disables the pause.
	Backoff time.Duration
}

// Invoker calls roster candidates with a fixed retry policy. It never
// fails a battle: errors are returned inside the Outcome for the caller to
// degrade. It is safe for concurrent use.
type Invoker struct {
	roster      ports.CandidateRoster
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
	metrics     ports.MetricsCollector
}

// NewInvoker creates an invoker over roster.
func NewInvoker(roster ports.CandidateRoster, cfg InvokerConfig, opts ...Option) *Invoker {
	o := buildOptions(opts)
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	switch {
	case cfg.Backoff == 0:
		cfg.Backoff = DefaultBackoff
	case cfg.Backoff < 0:
		cfg.Backoff = 0
	}
	return &Invoker{
		roster:      roster,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		logger:      o.logger,
		metrics:     o.metrics,
	}
}

// Invoke sends call.Prompt to the candidate, retrying failed attempts after
// the backoff. Cancellation of ctx ends the call at once with ctx's error,
// including during the backoff wait.
func (inv *Invoker) Invoke(ctx context.Context, call Call) Outcome {
	start := time.Now()
	out := inv.invoke(ctx, call)
	out.Elapsed = time.Since(start)
	inv.record(call, out)
	return out
}

func (inv *Invoker) invoke(ctx context.Context, call Call) Outcome {
	client, err := inv.roster.Client(call.Candidate)
	if err != nil {
		return Outcome{Err: err}
	}

	var lastErr error
	for attempt := 1; attempt <= inv.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return Outcome{Err: ctx.Err(), Attempts: attempt - 1}
		}

		text, err := client.Complete(ctx, call.Prompt, call.Options)
		if err == nil {
			return Outcome{Text: text, Attempts: attempt}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{Err: ctxErr, Attempts: attempt}
		}
		if errors.Is(err, context.Canceled) {
			return Outcome{Err: context.Canceled, Attempts: attempt}
		}

		lastErr = err
		inv.logger.WarnContext(ctx, "candidate call failed",
			"candidate", call.Candidate,
			"phase", call.Phase,
			"attempt", attempt,
			"error", err,
		)

		if attempt == inv.maxAttempts {
			break
		}
		if err := sleep(ctx, inv.backoff); err != nil {
			return Outcome{Err: err, Attempts: attempt}
		}
	}
	return Outcome{Err: lastErr, Attempts: inv.maxAttempts}
}

func (inv *Invoker) record(call Call, out Outcome) {
	status := "success"
	switch {
	case out.Err == nil:
	case errors.Is(out.Err, context.Canceled):
		status = "canceled"
	case errors.Is(out.Err, context.DeadlineExceeded):
		status = "timeout"
	default:
		status = "error"
	}

	labels := map[string]string{
		"candidate": call.Candidate,
		"phase":     call.Phase,
		"status":    status,
	}
	inv.metrics.RecordCounter(MetricInvocations, 1, labels)
	inv.metrics.RecordLatency(MetricInvocationLatency, out.Elapsed, labels)

	inv.logger.Debug("candidate call finished",
		"candidate", call.Candidate,
		"phase", call.Phase,
		"attempt", out.Attempts,
		"elapsed", out.Elapsed,
		"status", status,
	)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
