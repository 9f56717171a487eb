package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-arena/internal/domain"
)

// LLMClient defines the interface for interacting with Large Language
// Model providers.
// Implementations handle provider-specific details like authentication,
// request formatting, and response parsing.
type LLMClient interface {
	// Complete sends a completion request to the LLM provider.
	// It returns the generated text and any error encountered.
	//
	// The options map allows flexibility for different providers without
	// changing the interface. Options understood by every provider:
	//   - "json_mode": bool, ask the provider for a JSON-only reply
	//   - "history": []domain.Message, prior conversation turns
	//   - "image": *domain.Image, attached to the final user turn
	//   - "temperature": float64
	//   - "max_tokens": int
	//   - "system": string
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// GetModel returns the model identifier being used by this client.
	GetModel() string
}

// CandidateRoster is the fixed set of providers taking part in battles.
// Iteration order is the roster's declared order.
type CandidateRoster interface {
	// Candidates returns every candidate in roster order.
	Candidates() []domain.Candidate

	// Client returns the client serving key, or an error wrapping
	// domain.ErrUnknownCandidate.
	Client(key string) (LLMClient, error)
}

// BattleStore persists finished battles and answers leaderboard queries.
type BattleStore interface {
	// SaveBattle stores a finished run and returns its assigned id.
	SaveBattle(ctx context.Context, record domain.BattleRecord) (int64, error)

	// GetBattle loads one battle with its responses and ratings.
	// Missing battles yield domain.ErrBattleNotFound.
	GetBattle(ctx context.Context, id int64) (domain.BattleRecord, error)

	// ListBattles returns up to limit battles, newest first.
	ListBattles(ctx context.Context, limit int) ([]domain.BattleSummary, error)

	// ListBattleIDs returns every stored battle id in ascending order.
	ListBattleIDs(ctx context.Context) ([]int64, error)

	// DeleteBattle removes a battle with its responses and ratings.
	DeleteBattle(ctx context.Context, id int64) error

	// SetWinner flags model as the only winner of battle id.
	SetWinner(ctx context.Context, id int64, model string) error

	// Leaderboard aggregates wins and scores across all stored battles.
	Leaderboard(ctx context.Context) (domain.Leaderboard, error)

	// ClearAll removes every stored battle.
	ClearAll(ctx context.Context) error
}

// BattleObserver receives lifecycle notifications from a battle run.
// Implementations must be safe for concurrent use across runs.
type BattleObserver interface {
	// PhaseStarted is called when a run enters a phase and may return a
	// derived context for the phase.
	PhaseStarted(ctx context.Context, phase string) context.Context

	// PhaseFinished is called when the phase started with ctx completes.
	PhaseFinished(ctx context.Context, phase string, elapsed time.Duration, err error)

	// BattleFinished is called once with the assembled result.
	BattleFinished(ctx context.Context, result *domain.BattleResult)
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations integrate with observability platforms like Prometheus.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
