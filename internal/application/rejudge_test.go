package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-arena/infrastructure/store"
	"github.com/ahrav/go-arena/internal/domain"
)

// response builds a stored response; ratings alternate judge key and score.
func response(model string, avg float64, winner bool, ratings ...any) domain.ResponseRecord {
	r := domain.ResponseRecord{Model: model, AverageScore: avg, IsWinner: winner, Ratings: map[string]domain.Rating{}}
	for i := 0; i+1 < len(ratings); i += 2 {
		r.Ratings[ratings[i].(string)] = domain.Rating{Score: ratings[i+1].(float64)}
	}
	return r
}

func seedStore(t *testing.T, records ...domain.BattleRecord) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	for _, rec := range records {
		rec.CreatedAt = time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)
		_, err := s.SaveBattle(context.Background(), rec)
		require.NoError(t, err)
	}
	return s
}

// TestRejudger_Run tests a pass over battles that are wrong, tied, empty and
// unrated.
func TestRejudger_Run(t *testing.T) {
	// Given a stale winner, a tie already resolved correctly and two
	// battles with nothing to judge
	s := seedStore(t,
		domain.BattleRecord{Prompt: "stale", Responses: []domain.ResponseRecord{
			response("openai", 8, false, "openai", 8.0, "grok", 8.0),
			response("grok", 6, true, "openai", 6.0, "grok", 6.0),
		}},
		domain.BattleRecord{Prompt: "tied", Responses: []domain.ResponseRecord{
			response("openai", 7, true, "openai", 9.0, "grok", 5.0),
			response("grok", 7, false, "openai", 7.0, "grok", 7.0),
		}},
		domain.BattleRecord{Prompt: "empty"},
		domain.BattleRecord{Prompt: "unrated", Responses: []domain.ResponseRecord{
			response("openai", 0, false),
		}},
	)
	r := NewRejudger(s)

	// When every battle is rejudged
	summary, err := r.Run(context.Background())

	// Then only the stale winner is rewritten
	require.NoError(t, err)
	assert.Equal(t, RejudgeSummary{Processed: 4, Updated: 1, Ties: 1, Skipped: 2}, summary)

	rec, err := s.GetBattle(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "openai", rec.Winner())

	rec, err = s.GetBattle(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "openai", rec.Winner())
}

func TestRejudger_RejudgeBattle(t *testing.T) {
	s := seedStore(t, domain.BattleRecord{Prompt: "p", Responses: []domain.ResponseRecord{
		response("zeta", 7, false, "zeta", 7.0, "alpha", 7.0),
		response("alpha", 7, false, "zeta", 7.0, "alpha", 7.0),
	}})
	r := NewRejudger(s)

	outcome, err := r.RejudgeBattle(context.Background(), 1)

	require.NoError(t, err)
	assert.True(t, outcome.Changed())
	assert.Equal(t, "", outcome.OldWinner)
	assert.Equal(t, "alpha", outcome.NewWinner)
	assert.Equal(t, domain.MethodAlphabetical, outcome.Tiebreak.Method)
	assert.Equal(t, []string{"zeta", "alpha"}, outcome.Tiebreak.TiedModels)

	// A second pass finds nothing to change.
	outcome, err = r.RejudgeBattle(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, outcome.Changed())
}

// TestRejudger_MissingJudgeCountsAsZero tests that a judge absent for one
// subject weighs against it in the max-score level.
func TestRejudger_MissingJudgeCountsAsZero(t *testing.T) {
	s := seedStore(t, domain.BattleRecord{Prompt: "p", Responses: []domain.ResponseRecord{
		response("openai", 5, false, "openai", 10.0),
		response("grok", 5, false, "openai", 6.0, "grok", 4.0),
	}})

	outcome, err := NewRejudger(s).RejudgeBattle(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "openai", outcome.NewWinner)
	assert.Equal(t, domain.MethodMaxScore, outcome.Tiebreak.Method)
}

func TestRejudger_NotFound(t *testing.T) {
	_, err := NewRejudger(store.NewMemoryStore()).RejudgeBattle(context.Background(), 3)
	assert.ErrorIs(t, err, domain.ErrBattleNotFound)
}

func TestRejudger_Cancelled(t *testing.T) {
	s := seedStore(t, domain.BattleRecord{Prompt: "p"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRejudger(s).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
