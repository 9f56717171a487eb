package judging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ahrav/go-arena/internal/domain"
)

var (
	errNoJSONObject  = errors.New("no JSON object found")
	errMalformedSlot = errors.New("malformed rating entry")
)

// Judgment is one judge's parsed verdict over every candidate.
type Judgment struct {
	// Ratings is keyed by candidate key and always holds every candidate.
	Ratings map[string]domain.Rating
	Mode    domain.ParseMode
	// Cause explains why the fallback path was taken; nil otherwise.
	Cause error
}

// ratingEntry is the shape judges are asked to produce for each response.
type ratingEntry struct {
	Score     json.RawMessage `json:"score"`
	Reasoning *string         `json:"reasoning"`
}

// ParseJudgment reads a judge reply. order must be the candidate order used
// to number responses in the rating prompt: response_i maps to order[i-1].
// Parsing never fails; unusable slots fall back to domain.DefaultRating.
func ParseJudgment(raw string, order []string) Judgment {
	if strings.TrimSpace(raw) == "" {
		return Judgment{Ratings: defaults(order), Mode: domain.ParseModeEmpty}
	}

	ratings, err := parseJSONJudgment(raw, order)
	if err == nil {
		return Judgment{Ratings: ratings, Mode: domain.ParseModeJSON}
	}
	return Judgment{Ratings: parseTextJudgment(raw, order), Mode: domain.ParseModeFallback, Cause: err}
}

func defaults(order []string) map[string]domain.Rating {
	ratings := make(map[string]domain.Rating, len(order))
	for _, key := range order {
		ratings[key] = domain.DefaultRating()
	}
	return ratings
}

// parseJSONJudgment decodes the structured reply. Any structural problem
// aborts the whole judgment so the text fallback can take over; a missing
// slot or an out-of-range score only defaults that slot.
func parseJSONJudgment(raw string, order []string) (map[string]domain.Rating, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, errNoJSONObject
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("decode judgment: %w", err)
	}

	ratings := make(map[string]domain.Rating, len(order))
	for i, key := range order {
		slot := fmt.Sprintf("response_%d", i+1)
		rawEntry, ok := doc[slot]
		if !ok {
			ratings[key] = domain.DefaultRating()
			continue
		}

		var entry ratingEntry
		if err := json.Unmarshal(rawEntry, &entry); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errMalformedSlot, slot, err)
		}
		if len(entry.Score) == 0 || bytes.Equal(entry.Score, []byte("null")) {
			ratings[key] = domain.DefaultRating()
			continue
		}

		score, err := decodeScore(entry.Score)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", errMalformedSlot, slot, err)
		}
		if !domain.ValidScore(score) {
			ratings[key] = domain.DefaultRating()
			continue
		}

		r := domain.Rating{Score: score}
		if entry.Reasoning != nil {
			r.Reasoning = *entry.Reasoning
		}
		ratings[key] = r
	}
	return ratings, nil
}

// decodeScore accepts a JSON number or a string holding one.
func decodeScore(raw json.RawMessage) (float64, error) {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("score is neither number nor string: %s", raw)
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// parseTextJudgment recovers per-response scores from free text. Ratings
// recovered this way carry no reasoning.
func parseTextJudgment(raw string, order []string) map[string]domain.Rating {
	lower := strings.ToLower(raw)
	ratings := make(map[string]domain.Rating, len(order))
	for i, key := range order {
		score, ok := scoreForPosition(lower, i+1)
		if !ok {
			score, ok = ExtractScore(raw)
		}
		if !ok {
			score = domain.DefaultScore
		}
		ratings[key] = domain.Rating{Score: score}
	}
	return ratings
}

// positionPatterns caches the compiled per-position regexes. Ballots are
// small, so the cache stays bounded by the largest roster seen.
var positionPatterns sync.Map // int -> [2]*regexp.Regexp

// patternsFor returns the direct and the word-skipping pattern for
// "response <n>". The skip is lazy so the first number after the label
// wins, and \b keeps "response 10" from matching position 1.
func patternsFor(n int) [2]*regexp.Regexp {
	if v, ok := positionPatterns.Load(n); ok {
		return v.([2]*regexp.Regexp)
	}
	res := [2]*regexp.Regexp{
		regexp.MustCompile(fmt.Sprintf(`response\s+%d\b[:\-]?\s*(\d+\.?\d*)`, n)),
		regexp.MustCompile(fmt.Sprintf(`response\s+%d\b[:\-]?\s*(?:\w+\s+)*?(\d+\.?\d*)`, n)),
	}
	v, _ := positionPatterns.LoadOrStore(n, res)
	return v.([2]*regexp.Regexp)
}

// scoreForPosition looks for "response <n>" followed by a number, first
// directly and then after intervening words.
func scoreForPosition(lower string, n int) (float64, bool) {
	for _, re := range patternsFor(n) {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		if s, ok := parseScore(m[1]); ok {
			return s, true
		}
	}
	return 0, false
}

// extractJSON locates the JSON object in a judge reply. A fenced code block
// is preferred; otherwise the first balanced {...} span is returned.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if fenced, ok := fencedBlock(response); ok {
		if obj := balancedObject(fenced); obj != "" {
			return obj
		}
	}
	return balancedObject(response)
}

// fencedBlock returns the body of the first ``` or ```json fence.
func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start == -1 {
		return "", false
	}
	body := s[start+3:]
	body = strings.TrimPrefix(body, "json")
	end := strings.Index(body, "```")
	if end == -1 {
		return "", false
	}
	body = strings.TrimSpace(body[:end])
	if !strings.HasPrefix(body, "{") {
		return "", false
	}
	return body, true
}

// balancedObject scans from the first '{' to its matching '}', ignoring
// braces inside JSON strings.
func balancedObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
