package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ahrav/go-arena/internal/domain"
	"github.com/ahrav/go-arena/internal/ports"
)

// RejudgeSummary reports what a rejudge pass did.
type RejudgeSummary struct {
	Processed int `json:"processed" yaml:"processed"`
	// Updated counts battles whose stored winner changed.
	Updated int `json:"updated" yaml:"updated"`
	Ties    int `json:"ties" yaml:"ties"`
	// Skipped counts battles with no responses or no ratings.
	Skipped int `json:"skipped" yaml:"skipped"`
}

// RejudgeOutcome is the result of rejudging a single battle.
type RejudgeOutcome struct {
	BattleID  int64                 `json:"battle_id" yaml:"battle_id"`
	OldWinner string                `json:"old_winner" yaml:"old_winner"`
	NewWinner string                `json:"new_winner" yaml:"new_winner"`
	Tiebreak  domain.TiebreakRecord `json:"tiebreaker_info" yaml:"tiebreaker_info"`
	Skipped   bool                  `json:"skipped" yaml:"skipped"`
}

// Changed reports whether the stored winner was replaced.
func (o RejudgeOutcome) Changed() bool { return !o.Skipped && o.OldWinner != o.NewWinner }

// Rejudger recomputes stored winners with the current tiebreak rules. It
// never calls a provider: stored averages and ratings are the only input.
type Rejudger struct {
	store  ports.BattleStore
	logger *slog.Logger
}

// NewRejudger creates a Rejudger over store.
func NewRejudger(store ports.BattleStore, opts ...Option) *Rejudger {
	o := buildOptions(opts)
	return &Rejudger{store: store, logger: o.logger}
}

// Run rejudges every stored battle in id order. It stops at the first store
// error or when ctx is cancelled; the summary covers the battles handled so far.
func (r *Rejudger) Run(ctx context.Context) (RejudgeSummary, error) {
	var summary RejudgeSummary

	ids, err := r.store.ListBattleIDs(ctx)
	if err != nil {
		return summary, fmt.Errorf("list battles: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		outcome, err := r.RejudgeBattle(ctx, id)
		if err != nil {
			return summary, err
		}

		summary.Processed++
		switch {
		case outcome.Skipped:
			summary.Skipped++
			continue
		case outcome.Changed():
			summary.Updated++
		}
		if outcome.Tiebreak.TieOccurred {
			summary.Ties++
		}
	}

	r.logger.Info("rejudge complete",
		"processed", summary.Processed,
		"updated", summary.Updated,
		"ties", summary.Ties,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

// RejudgeBattle recomputes the winner of one battle and stores it when it
// differs from the recorded one. Missing judge entries count as a score of 0.
func (r *Rejudger) RejudgeBattle(ctx context.Context, id int64) (RejudgeOutcome, error) {
	rec, err := r.store.GetBattle(ctx, id)
	if err != nil {
		return RejudgeOutcome{}, fmt.Errorf("load battle %d: %w", id, err)
	}

	outcome := RejudgeOutcome{BattleID: id, OldWinner: rec.Winner()}

	matrix := rec.Matrix()
	if len(rec.Responses) == 0 || len(matrix) == 0 {
		r.logger.Warn("battle has nothing to rejudge", "battle_id", id,
			"responses", len(rec.Responses), "judges", len(matrix))
		outcome.Skipped = true
		return outcome, nil
	}

	winner, tiebreak, err := domain.ResolveWinner(rec.AverageScores(), matrix, rec.Models())
	if err != nil {
		return outcome, fmt.Errorf("resolve winner for battle %d: %w", id, err)
	}
	outcome.NewWinner = winner
	outcome.Tiebreak = tiebreak

	if tiebreak.TieOccurred {
		r.logger.Debug("tie resolved", "battle_id", id, "method", tiebreak.Method,
			"tied_models", tiebreak.TiedModels)
	}

	if !outcome.Changed() {
		return outcome, nil
	}
	if err := r.store.SetWinner(ctx, id, winner); err != nil {
		return outcome, fmt.Errorf("update winner for battle %d: %w", id, err)
	}
	r.logger.Info("winner changed", "battle_id", id, "old", outcome.OldWinner, "new", winner)
	return outcome, nil
}
