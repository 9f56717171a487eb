package judging

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/ahrav/go-arena/internal/domain"
)

// ratingTemplate is the evaluation prompt sent to every judge. Judges must
// answer with the numbered JSON object it describes for ParseJudgment to read
// their reply.
const ratingTemplate = `You are an expert evaluator of LLM responses. I will give you an original prompt and {{.CountPhrase}} from different LLMs. Please evaluate each response and provide a score from 0-10 based on:
- Relevance to the prompt
- Accuracy and correctness
- Clarity and coherence
- Completeness
- Overall quality

Original Prompt:
{{.Prompt}}

Responses:
{{range .Entries}}{{if gt .Number 1}}
{{end}}Response {{.Number}} (from {{.DisplayName}}):
{{.Text}}{{end}}

Respond with a JSON object in this exact format:
{
{{range .Entries}}  "response_{{.Number}}": {"score": {{.ExampleScore}}, "reasoning": "Brief explanation"}{{.Separator}}
{{end}}}`

var ratingPrompt = template.Must(template.New("rating").Option("missingkey=error").Parse(ratingTemplate))

// exampleScores seed the sample JSON shown to judges, cycling for larger rosters.
var exampleScores = []string{"8.5", "7.0", "9.0", "6.5"}

var countWords = []string{
	"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine", "ten",
}

type ballotEntry struct {
	Number       int
	DisplayName  string
	Text         string
	ExampleScore string
	Separator    string
}

// Ballot is a rendered rating prompt together with the candidate order used
// to number it. Replies must be parsed with the same Ballot.
type Ballot struct {
	Prompt string
	order  []string
}

// NewBallot renders the rating prompt for responses in their current order.
// displayName maps a candidate key to the name shown to judges.
func NewBallot(prompt string, responses domain.ResponseSet, displayName func(string) string) (Ballot, error) {
	if len(responses) == 0 {
		return Ballot{}, domain.ErrEmptyRoster
	}

	entries := make([]ballotEntry, len(responses))
	for i, r := range responses {
		entries[i] = ballotEntry{
			Number:       i + 1,
			DisplayName:  displayName(r.Candidate),
			Text:         r.Text,
			ExampleScore: exampleScores[i%len(exampleScores)],
			Separator:    ",",
		}
	}
	entries[len(entries)-1].Separator = ""

	var b strings.Builder
	err := ratingPrompt.Execute(&b, struct {
		Prompt      string
		CountPhrase string
		Entries     []ballotEntry
	}{
		Prompt:      prompt,
		CountPhrase: countPhrase(len(entries)),
		Entries:     entries,
	})
	if err != nil {
		return Ballot{}, fmt.Errorf("render rating prompt: %w", err)
	}

	return Ballot{Prompt: b.String(), order: responses.Keys()}, nil
}

// Order returns the candidate keys in response_1..response_N order.
func (b Ballot) Order() []string { return slices.Clone(b.order) }

// Parse reads one judge's reply against this ballot's numbering.
func (b Ballot) Parse(raw string) Judgment { return ParseJudgment(raw, b.order) }

func countPhrase(n int) string {
	if n == 1 {
		return "one response"
	}
	word := strconv.Itoa(n)
	if n < len(countWords) {
		word = countWords[n]
	}
	return word + " different responses"
}
