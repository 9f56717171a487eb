// Package domain holds the value types of a battle run and the pure
// algorithms that operate on them: score aggregation, the tiebreak cascade
// and leaderboard ranking. Nothing in this package performs I/O.
package domain

import (
	"slices"
	"time"
)

// Score bounds shared by every rating in the system.
const (
	MinScore     = 0.0
	MaxScore     = 10.0
	DefaultScore = 5.0
)

// Conversation roles accepted in a battle history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior conversation turn forwarded to every provider.
type Message struct {
	Role    string `json:"role" yaml:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" yaml:"content" validate:"required"`
}

// Candidate identifies one provider taking part in a battle.
type Candidate struct {
	// Key is the stable roster key, e.g. "openai".
	Key string `json:"key" yaml:"key"`
	// DisplayName is the human readable model name shown to judges and users.
	DisplayName string `json:"display_name" yaml:"display_name"`
}

// Rating is a single judge's verdict on a single response.
type Rating struct {
	Score     float64 `json:"score" yaml:"score"`
	Reasoning string  `json:"reasoning" yaml:"reasoning"`
}

// DefaultRating is substituted for any rating that is missing or invalid.
func DefaultRating() Rating { return Rating{Score: DefaultScore} }

// ValidScore reports whether s lies within [MinScore, MaxScore]. NaN is rejected.
func ValidScore(s float64) bool { return s >= MinScore && s <= MaxScore }

// Response is one candidate's answer. Failed responses carry an error marker
// as their text so the battle can still proceed.
type Response struct {
	Candidate string `json:"candidate" yaml:"candidate"`
	Text      string `json:"text" yaml:"text"`
	Failed    bool   `json:"failed" yaml:"failed"`
}

// ResponseSet is the ordered collection of answers for one run. Its order is
// the numbering used in the rating prompt.
type ResponseSet []Response

// Keys returns the candidate keys in response order.
func (rs ResponseSet) Keys() []string {
	keys := make([]string, len(rs))
	for i, r := range rs {
		keys[i] = r.Candidate
	}
	return keys
}

// Text returns the answer text for key and whether the key is present.
func (rs ResponseSet) Text(key string) (string, bool) {
	for _, r := range rs {
		if r.Candidate == key {
			return r.Text, true
		}
	}
	return "", false
}

// ErrorMarker is the text substituted for a candidate whose answer could not
// be generated.
func ErrorMarker(err error) string { return "Error: " + err.Error() }

// RatingMatrix maps judge key to subject key to rating.
type RatingMatrix map[string]map[string]Rating

// Set stores a rating, creating the judge row on demand.
func (m RatingMatrix) Set(judge, subject string, r Rating) {
	row, ok := m[judge]
	if !ok {
		row = make(map[string]Rating)
		m[judge] = row
	}
	row[subject] = r
}

// Judges returns the judge keys in lexical order.
func (m RatingMatrix) Judges() []string {
	judges := make([]string, 0, len(m))
	for j := range m {
		judges = append(judges, j)
	}
	slices.Sort(judges)
	return judges
}

// Score returns the judge's score for subject, or 0.0 when the judge did not
// rate it.
func (m RatingMatrix) Score(judge, subject string) float64 {
	if r, ok := m[judge][subject]; ok {
		return r.Score
	}
	return 0.0
}

// ParseMode records how a judge's output was interpreted.
type ParseMode string

const (
	// ParseModeJSON means the judge returned a usable JSON object.
	ParseModeJSON ParseMode = "json"
	// ParseModeFallback means scores were recovered from free text.
	ParseModeFallback ParseMode = "fallback"
	// ParseModeEmpty means the judge produced no output and every slot was defaulted.
	ParseModeEmpty ParseMode = "empty"
)

// Timing captures wall-clock telemetry for one run.
type Timing struct {
	CollectResponses time.Duration
	BuildPrompt      time.Duration
	CollectRatings   time.Duration
	ParseRatings     time.Duration
	Aggregate        time.Duration
	ResolveWinner    time.Duration
	Total            time.Duration

	// ResponseCalls and RatingCalls hold per-candidate call durations.
	ResponseCalls map[string]time.Duration
	RatingCalls   map[string]time.Duration
}

// Report renders the timing in seconds using the public telemetry keys.
func (t Timing) Report() map[string]any {
	seconds := func(calls map[string]time.Duration) map[string]float64 {
		out := make(map[string]float64, len(calls))
		for k, d := range calls {
			out[k] = d.Seconds()
		}
		return out
	}
	return map[string]any{
		"step1_get_responses":    t.CollectResponses.Seconds(),
		"step2_create_prompt":    t.BuildPrompt.Seconds(),
		"step3_get_ratings":      t.CollectRatings.Seconds(),
		"step4_parse_ratings":    t.ParseRatings.Seconds(),
		"step5_calculate_scores": t.Aggregate.Seconds(),
		"step6_resolve_winner":   t.ResolveWinner.Seconds(),
		"total":                  t.Total.Seconds(),
		"response_timings":       seconds(t.ResponseCalls),
		"rating_timings":         seconds(t.RatingCalls),
	}
}

// BattleResult is everything produced by one orchestration run. The engine
// keeps no reference to it after returning.
type BattleResult struct {
	Prompt     string
	History    []Message
	Image      *Image
	Candidates []Candidate

	Responses ResponseSet
	// RawRatings holds each judge's unparsed output ("" when the call failed).
	RawRatings map[string]string
	Ratings    RatingMatrix
	ParseModes map[string]ParseMode

	AverageScores map[string]float64
	Winner        string
	Tiebreak      TiebreakRecord
	Timing        Timing
}

// DisplayName returns the display name for key, falling back to the key.
func (r *BattleResult) DisplayName(key string) string {
	for _, c := range r.Candidates {
		if c.Key == key && c.DisplayName != "" {
			return c.DisplayName
		}
	}
	return key
}
