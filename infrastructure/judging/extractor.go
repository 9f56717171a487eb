// Package judging turns judge model output into ratings. It owns the rating
// prompt sent to judges and the parsers that read their replies back, so the
// numbering used to build a prompt and to parse it always agree.
package judging

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/ahrav/go-arena/internal/domain"
)

// scorePatterns are tried in order against lower-cased text, most specific first.
var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+\.?\d*)\s*/\s*10`),
	regexp.MustCompile(`score[:\s]+(\d+\.?\d*)`),
	regexp.MustCompile(`rating[:\s]+(\d+\.?\d*)`),
	regexp.MustCompile(`\b(\d+\.?\d*)\s*(?:out of|/)?\s*10`),
	regexp.MustCompile(`\b(10|[0-9](?:\.[0-9]+)?)\b`),
}

var bareNumber = regexp.MustCompile(`\b\d+\.?\d*\b`)

// ExtractScore pulls a 0-10 score out of free-form judge text. The first
// pattern with any match is used, and only its first match is considered; an
// out-of-range value moves on to the next pattern. When every pattern fails
// the first in-range bare number wins. ok is false when no score was found.
func ExtractScore(text string) (score float64, ok bool) {
	text = norm.NFKC.String(text)
	lower := strings.ToLower(text)

	for _, p := range scorePatterns {
		m := p.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		if s, valid := parseScore(m[1]); valid {
			return s, true
		}
	}

	for _, tok := range bareNumber.FindAllString(text, -1) {
		if s, valid := parseScore(tok); valid {
			return s, true
		}
	}
	return 0, false
}

// parseScore parses s and reports whether it is a usable score.
func parseScore(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !domain.ValidScore(v) {
		return 0, false
	}
	return v, true
}
