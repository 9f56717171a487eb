package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-arena/infrastructure/judging"
	"github.com/ahrav/go-arena/infrastructure/llm"
	"github.com/ahrav/go-arena/internal/domain"
	"github.com/ahrav/go-arena/internal/ports"
)

// Battle phases in execution order.
const (
	PhaseCollectResponses  = "collect_responses"
	PhaseBuildRatingPrompt = "build_rating_prompt"
	PhaseCollectRatings    = "collect_ratings"
	PhaseParseRatings      = "parse_ratings"
	PhaseAggregate         = "aggregate"
	PhaseResolveWinner     = "resolve_winner"
)

// BattleRequest is the input to a single run.
type BattleRequest struct {
	Prompt  string
	History []domain.Message
	Image   *domain.Image
}

// Arena orchestrates battles over a fixed roster. It holds no per-run state
// and is safe for concurrent use.
type Arena struct {
	roster   ports.CandidateRoster
	invoker  *Invoker
	logger   *slog.Logger
	metrics  ports.MetricsCollector
	observer ports.BattleObserver
	tracer   trace.Tracer
}

// NewArena creates an arena. The invoker must draw its clients from the same
// roster.
func NewArena(roster ports.CandidateRoster, invoker *Invoker, opts ...Option) *Arena {
	o := buildOptions(opts)
	return &Arena{
		roster:   roster,
		invoker:  invoker,
		logger:   o.logger,
		metrics:  o.metrics,
		observer: o.observer,
		tracer:   o.tracer,
	}
}

// run carries the state of one battle between phases.
type run struct {
	req        BattleRequest
	candidates []domain.Candidate
	keys       []string
	result     *domain.BattleResult
	ballot     judging.Ballot
}

// Run executes one battle. Every candidate answers the prompt, every
// candidate rates all answers, and the winner is resolved from the mean
// scores. Provider failures degrade the affected slots; only validation
// errors and cancellation of ctx fail the run.
func (a *Arena) Run(ctx context.Context, req BattleRequest) (*domain.BattleResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, domain.ErrEmptyPrompt
	}
	candidates := a.roster.Candidates()
	if len(candidates) == 0 {
		return nil, domain.ErrEmptyRoster
	}

	ctx, span := a.tracer.Start(ctx, "arena.battle", trace.WithAttributes(
		attribute.Int("arena.candidates", len(candidates)),
		attribute.Int("arena.prompt.length", len(req.Prompt)),
		attribute.Bool("arena.image", req.Image != nil),
	))
	defer span.End()

	start := time.Now()
	r := &run{
		req:        req,
		candidates: candidates,
		keys:       make([]string, len(candidates)),
		result: &domain.BattleResult{
			Prompt:     req.Prompt,
			History:    req.History,
			Image:      req.Image,
			Candidates: candidates,
			RawRatings: make(map[string]string, len(candidates)),
			Ratings:    make(domain.RatingMatrix, len(candidates)),
			ParseModes: make(map[string]domain.ParseMode, len(candidates)),
			Timing: domain.Timing{
				ResponseCalls: make(map[string]time.Duration, len(candidates)),
				RatingCalls:   make(map[string]time.Duration, len(candidates)),
			},
		},
	}
	for i, c := range candidates {
		r.keys[i] = c.Key
	}

	timing := &r.result.Timing
	phases := []struct {
		name    string
		elapsed *time.Duration
		fn      func(context.Context, *run) error
	}{
		{PhaseCollectResponses, &timing.CollectResponses, a.collectResponses},
		{PhaseBuildRatingPrompt, &timing.BuildPrompt, a.buildRatingPrompt},
		{PhaseCollectRatings, &timing.CollectRatings, a.collectRatings},
		{PhaseParseRatings, &timing.ParseRatings, a.parseRatings},
		{PhaseAggregate, &timing.Aggregate, a.aggregate},
		{PhaseResolveWinner, &timing.ResolveWinner, a.resolveWinner},
	}

	for _, p := range phases {
		elapsed, err := a.phase(ctx, p.name, func(ctx context.Context) error { return p.fn(ctx, r) })
		*p.elapsed = elapsed
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.metrics.RecordCounter(MetricBattles, 1, map[string]string{"status": "error"})
			return nil, err
		}
	}

	timing.Total = time.Since(start)
	span.SetAttributes(
		attribute.String("arena.winner", r.result.Winner),
		attribute.String("arena.tiebreak.method", string(r.result.Tiebreak.Method)),
	)
	span.SetStatus(codes.Ok, "")

	a.metrics.RecordCounter(MetricBattles, 1, map[string]string{"status": "success"})
	a.metrics.RecordLatency(MetricBattleLatency, timing.Total, map[string]string{"status": "success"})
	a.observer.BattleFinished(ctx, r.result)
	a.logger.InfoContext(ctx, "battle finished",
		"winner", r.result.Winner,
		"tiebreak", r.result.Tiebreak.Method,
		"elapsed", timing.Total,
	)
	return r.result, nil
}

// phase runs fn inside a span and reports its boundaries to the observer.
func (a *Arena) phase(ctx context.Context, name string, fn func(context.Context) error) (time.Duration, error) {
	ctx, span := a.tracer.Start(ctx, "arena."+name)
	defer span.End()
	ctx = a.observer.PhaseStarted(ctx, name)

	start := time.Now()
	err := fn(ctx)
	if err == nil {
		err = ctx.Err()
	}
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	a.observer.PhaseFinished(ctx, name, elapsed, err)
	a.logger.DebugContext(ctx, "phase finished", "phase", name, "elapsed", elapsed, "error", err)
	return elapsed, err
}

// fanOut invokes every candidate concurrently. Each task writes only its own
// slot; the returned error is non-nil only when ctx was cancelled.
func (a *Arena) fanOut(ctx context.Context, keys []string, call func(key string) Call) ([]Outcome, error) {
	outcomes := make([]Outcome, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		g.Go(func() error {
			out := a.invoker.Invoke(gctx, call(key))
			outcomes[i] = out
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (a *Arena) collectResponses(ctx context.Context, r *run) error {
	options := map[string]any{}
	if len(r.req.History) > 0 {
		options[llm.OptionHistory] = r.req.History
	}
	if r.req.Image != nil {
		options[llm.OptionImage] = r.req.Image
	}

	outcomes, err := a.fanOut(ctx, r.keys, func(key string) Call {
		return Call{Candidate: key, Phase: PhaseCollectResponses, Prompt: r.req.Prompt, Options: options}
	})
	if err != nil {
		return err
	}

	responses := make(domain.ResponseSet, len(r.keys))
	for i, out := range outcomes {
		key := r.keys[i]
		resp := domain.Response{Candidate: key, Text: out.Text}
		if out.Err != nil {
			resp.Text = domain.ErrorMarker(out.Err)
			resp.Failed = true
		}
		responses[i] = resp
		r.result.Timing.ResponseCalls[key] = out.Elapsed
	}
	r.result.Responses = responses
	return nil
}

func (a *Arena) buildRatingPrompt(_ context.Context, r *run) error {
	ballot, err := judging.NewBallot(r.req.Prompt, r.result.Responses, r.result.DisplayName)
	if err != nil {
		return fmt.Errorf("build rating prompt: %w", err)
	}
	r.ballot = ballot
	return nil
}

func (a *Arena) collectRatings(ctx context.Context, r *run) error {
	options := map[string]any{llm.OptionJSONMode: true}
	outcomes, err := a.fanOut(ctx, r.keys, func(key string) Call {
		return Call{Candidate: key, Phase: PhaseCollectRatings, Prompt: r.ballot.Prompt, Options: options}
	})
	if err != nil {
		return err
	}

	for i, out := range outcomes {
		key := r.keys[i]
		r.result.RawRatings[key] = out.Text
		r.result.Timing.RatingCalls[key] = out.Elapsed
	}
	return nil
}

func (a *Arena) parseRatings(ctx context.Context, r *run) error {
	for _, judge := range r.keys {
		j := r.ballot.Parse(r.result.RawRatings[judge])
		for subject, rating := range j.Ratings {
			r.result.Ratings.Set(judge, subject, rating)
		}
		r.result.ParseModes[judge] = j.Mode
		if j.Mode != domain.ParseModeJSON {
			a.logger.WarnContext(ctx, "judge output used fallback parsing",
				"candidate", judge, "mode", j.Mode, "error", j.Cause)
		}
	}
	return nil
}

func (a *Arena) aggregate(_ context.Context, r *run) error {
	r.result.AverageScores = domain.AverageScores(r.result.Ratings, r.keys)
	return nil
}

func (a *Arena) resolveWinner(_ context.Context, r *run) error {
	winner, record, err := domain.ResolveWinner(r.result.AverageScores, r.result.Ratings, r.keys)
	if err != nil {
		return err
	}
	r.result.Winner = winner
	r.result.Tiebreak = record
	return nil
}
