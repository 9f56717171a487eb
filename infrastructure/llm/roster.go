package llm

import (
	"fmt"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/ahrav/go-arena/internal/domain"
	"github.com/ahrav/go-arena/internal/ports"
)

// suggestionDistance is the largest edit distance for which Lookup offers
// a "did you mean" hint.
const suggestionDistance = 3

// CandidateConfig describes one roster entry.
type CandidateConfig struct {
	// Key is the stable roster key, e.g. "openai".
	Key string
	// Provider selects the registered provider factory.
	Provider string
	// Model is the provider model id.
	Model string
	// DisplayName is shown to judges and users. Defaults to Model.
	DisplayName string
	// APIKey authenticates requests to the provider.
	APIKey string
	// BaseURL overrides the provider endpoint.
	BaseURL string
	// Timeout bounds the underlying HTTP client.
	Timeout time.Duration
	// Middleware is applied inside the roster-wide middleware.
	Middleware []Middleware
}

// RosterEntry pairs a candidate with an already built client.
type RosterEntry struct {
	Candidate domain.Candidate
	Client    ports.LLMClient
}

// Roster is the ordered, fixed set of candidates taking part in battles.
// It is immutable after construction and safe for concurrent use.
type Roster struct {
	entries []RosterEntry
	index   map[string]int
}

var _ ports.CandidateRoster = (*Roster)(nil)

// NewRoster builds a client for every candidate, in order. Roster-wide
// middleware wraps each client outside its own middleware; stateful
// middleware such as rate limiting keeps separate state per client.
func NewRoster(candidates []CandidateConfig, middleware ...Middleware) (*Roster, error) {
	entries := make([]RosterEntry, 0, len(candidates))
	for _, c := range candidates {
		client, err := NewClient(c.Provider, ClientConfig{
			APIKey:     c.APIKey,
			Model:      c.Model,
			BaseURL:    c.BaseURL,
			Timeout:    c.Timeout,
			Middleware: append(append([]Middleware{}, middleware...), c.Middleware...),
		})
		if err != nil {
			return nil, fmt.Errorf("candidate %q: %w", c.Key, err)
		}

		name := c.DisplayName
		if name == "" {
			name = c.Model
		}
		entries = append(entries, RosterEntry{
			Candidate: domain.Candidate{Key: c.Key, DisplayName: name},
			Client:    client,
		})
	}
	return NewRosterFromEntries(entries...)
}

// NewRosterFromEntries builds a roster from prepared clients. Empty and
// duplicate keys are rejected.
func NewRosterFromEntries(entries ...RosterEntry) (*Roster, error) {
	r := &Roster{
		entries: make([]RosterEntry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		key := e.Candidate.Key
		if key == "" {
			return nil, fmt.Errorf("%w: candidate key is required", domain.ErrInvalidConfiguration)
		}
		if _, dup := r.index[key]; dup {
			return nil, fmt.Errorf("%w: %q", domain.ErrDuplicateCandidate, key)
		}
		if e.Client == nil {
			return nil, fmt.Errorf("%w: candidate %q has no client", domain.ErrInvalidConfiguration, key)
		}
		if e.Candidate.DisplayName == "" {
			e.Candidate.DisplayName = e.Client.GetModel()
		}
		r.index[key] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// Candidates returns every candidate in roster order.
func (r *Roster) Candidates() []domain.Candidate {
	out := make([]domain.Candidate, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Candidate
	}
	return out
}

// Client returns the client serving key.
func (r *Roster) Client(key string) (ports.LLMClient, error) {
	e, err := r.Lookup(key)
	if err != nil {
		return nil, err
	}
	return e.Client, nil
}

// Lookup returns the entry for key. Unknown keys yield an error wrapping
// domain.ErrUnknownCandidate, with the closest known key as a hint.
func (r *Roster) Lookup(key string) (RosterEntry, error) {
	if i, ok := r.index[key]; ok {
		return r.entries[i], nil
	}

	if best := r.closest(key); best != "" {
		return RosterEntry{}, fmt.Errorf("%w: %q (did you mean %q?)", domain.ErrUnknownCandidate, key, best)
	}
	return RosterEntry{}, fmt.Errorf("%w: %q", domain.ErrUnknownCandidate, key)
}

// Len returns the number of candidates.
func (r *Roster) Len() int { return len(r.entries) }

func (r *Roster) closest(key string) string {
	best, bestDist := "", suggestionDistance+1
	for _, e := range r.entries {
		if d := levenshtein.ComputeDistance(key, e.Candidate.Key); d < bestDist {
			best, bestDist = e.Candidate.Key, d
		}
	}
	return best
}
