package domain

import (
	"cmp"
	"math"
	"slices"
	"time"
	"unicode/utf8"
)

// SummaryPromptLength is the number of characters of a prompt kept in listings.
const SummaryPromptLength = 100

// BattleRecord is the persisted form of a battle.
type BattleRecord struct {
	ID        int64            `json:"id" yaml:"id"`
	Prompt    string           `json:"prompt" yaml:"prompt"`
	Image     *Image           `json:"-" yaml:"-"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
	Responses []ResponseRecord `json:"responses" yaml:"responses"`
}

// ResponseRecord is one candidate's stored answer with the ratings it received.
type ResponseRecord struct {
	Model        string  `json:"model" yaml:"model"`
	Text         string  `json:"text" yaml:"text"`
	AverageScore float64 `json:"average_score" yaml:"average_score"`
	IsWinner     bool    `json:"is_winner" yaml:"is_winner"`
	// Ratings maps judge key to the rating this response received.
	Ratings map[string]Rating `json:"ratings" yaml:"ratings"`
}

// BattleSummary is a listing entry.
type BattleSummary struct {
	ID        int64     `json:"id" yaml:"id"`
	Prompt    string    `json:"prompt" yaml:"prompt"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// LeaderboardEntry aggregates one model's record across stored battles.
type LeaderboardEntry struct {
	Model        string  `json:"model" yaml:"model"`
	Wins         int     `json:"wins" yaml:"wins"`
	AverageScore float64 `json:"average_score" yaml:"average_score"`
	WinRate      float64 `json:"win_rate" yaml:"win_rate"`
}

// Leaderboard is the ranked list of models.
type Leaderboard struct {
	Entries      []LeaderboardEntry `json:"leaderboard" yaml:"leaderboard"`
	TotalBattles int                `json:"total_battles" yaml:"total_battles"`
}

// NewBattleRecord converts a finished run into its persisted shape. Responses
// keep run order.
func NewBattleRecord(result *BattleResult, createdAt time.Time) BattleRecord {
	record := BattleRecord{
		Prompt:    result.Prompt,
		Image:     result.Image,
		CreatedAt: createdAt,
		Responses: make([]ResponseRecord, 0, len(result.Responses)),
	}
	for _, resp := range result.Responses {
		ratings := make(map[string]Rating, len(result.Ratings))
		for judge, row := range result.Ratings {
			if r, ok := row[resp.Candidate]; ok {
				ratings[judge] = r
			}
		}
		record.Responses = append(record.Responses, ResponseRecord{
			Model:        resp.Candidate,
			Text:         resp.Text,
			AverageScore: result.AverageScores[resp.Candidate],
			IsWinner:     resp.Candidate == result.Winner,
			Ratings:      ratings,
		})
	}
	return record
}

// Winner returns the model flagged as winner, or "" if none is.
func (b BattleRecord) Winner() string {
	for _, r := range b.Responses {
		if r.IsWinner {
			return r.Model
		}
	}
	return ""
}

// Models returns the response models in stored order.
func (b BattleRecord) Models() []string {
	models := make([]string, len(b.Responses))
	for i, r := range b.Responses {
		models[i] = r.Model
	}
	return models
}

// AverageScores returns the stored per-model averages.
func (b BattleRecord) AverageScores() map[string]float64 {
	averages := make(map[string]float64, len(b.Responses))
	for _, r := range b.Responses {
		averages[r.Model] = r.AverageScore
	}
	return averages
}

// Matrix rebuilds the judge by subject rating matrix from stored ratings.
func (b BattleRecord) Matrix() RatingMatrix {
	matrix := make(RatingMatrix)
	for _, r := range b.Responses {
		for judge, rating := range r.Ratings {
			matrix.Set(judge, r.Model, rating)
		}
	}
	return matrix
}

// SortedByScore returns the responses ordered by average score, highest first.
func (b BattleRecord) SortedByScore() []ResponseRecord {
	sorted := slices.Clone(b.Responses)
	slices.SortStableFunc(sorted, func(x, y ResponseRecord) int {
		return cmp.Compare(y.AverageScore, x.AverageScore)
	})
	return sorted
}

// Summary returns the listing form of the record.
func (b BattleRecord) Summary() BattleSummary {
	return BattleSummary{ID: b.ID, Prompt: TruncatePrompt(b.Prompt), CreatedAt: b.CreatedAt}
}

// TruncatePrompt shortens p to SummaryPromptLength characters plus "...".
func TruncatePrompt(p string) string {
	if utf8.RuneCountInString(p) <= SummaryPromptLength {
		return p
	}
	return string([]rune(p)[:SummaryPromptLength]) + "..."
}

// RankLeaderboard builds a leaderboard from win counts and mean average
// scores. Models appearing in either map are included. Averages and win rates
// are rounded to two decimals; entries are ordered by wins, then average
// score, then model key.
func RankLeaderboard(wins map[string]int, averages map[string]float64, totalBattles int) Leaderboard {
	models := make(map[string]struct{}, len(averages))
	for m := range wins {
		models[m] = struct{}{}
	}
	for m := range averages {
		models[m] = struct{}{}
	}

	entries := make([]LeaderboardEntry, 0, len(models))
	for m := range models {
		var rate float64
		if totalBattles > 0 {
			rate = float64(wins[m]) / float64(totalBattles) * 100
		}
		entries = append(entries, LeaderboardEntry{
			Model:        m,
			Wins:         wins[m],
			AverageScore: round2(averages[m]),
			WinRate:      round2(rate),
		})
	}

	slices.SortFunc(entries, func(a, b LeaderboardEntry) int {
		return cmp.Or(
			cmp.Compare(b.Wins, a.Wins),
			cmp.Compare(b.AverageScore, a.AverageScore),
			cmp.Compare(a.Model, b.Model),
		)
	})
	return Leaderboard{Entries: entries, TotalBattles: totalBattles}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
