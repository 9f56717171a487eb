// Package testutils provides scripted providers and rosters for tests that run
// whole battles without network access.
package testutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/ahrav/go-arena/infrastructure/llm"
	"github.com/ahrav/go-arena/internal/domain"
)

// Candidate describes one scripted roster member.
type Candidate struct {
	Key         string
	DisplayName string
	Model       string
	// Answer is returned for the battle prompt.
	Answer string
	// Judgment is returned for rating prompts, which request JSON mode.
	Judgment string
	// Mock, when set, replaces the scripted Answer and Judgment.
	Mock *llm.MockCoreLLM
}

// ScriptedMock answers the battle prompt with answer and every rating prompt
// with judgment.
func ScriptedMock(answer, judgment string) *llm.MockCoreLLM {
	m := llm.NewMockCoreLLM()
	m.Responder = func(_ string, opts map[string]any) (string, error) {
		if opts[llm.OptionJSONMode] == true {
			return judgment, nil
		}
		return answer, nil
	}
	return m
}

// Judgment renders a judge reply scoring response_1..response_n in order.
func Judgment(scores ...float64) string {
	var b strings.Builder
	b.WriteString("{")
	for i, v := range scores {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, `"response_%d": {"score": %g, "reasoning": "r%d"}`, i+1, v, i+1)
	}
	b.WriteString("}")
	return b.String()
}

// NewRoster builds a roster of scripted providers in the given order. The
// mocks are returned keyed by candidate so tests can inspect calls.
func NewRoster(tb testing.TB, candidates ...Candidate) (*llm.Roster, map[string]*llm.MockCoreLLM) {
	tb.Helper()
	mocks := make(map[string]*llm.MockCoreLLM, len(candidates))
	entries := make([]llm.RosterEntry, 0, len(candidates))
	for _, c := range candidates {
		mock := c.Mock
		if mock == nil {
			mock = ScriptedMock(c.Answer, c.Judgment)
		}
		mock.Model = c.Model
		if mock.Model == "" {
			mock.Model = c.Key + "-test"
		}
		mocks[c.Key] = mock
		entries = append(entries, llm.RosterEntry{
			Candidate: domain.Candidate{Key: c.Key, DisplayName: c.DisplayName},
			Client:    llm.NewClientFromCore(mock),
		})
	}
	roster, err := llm.NewRosterFromEntries(entries...)
	if err != nil {
		tb.Fatalf("build roster: %v", err)
	}
	return roster, mocks
}
