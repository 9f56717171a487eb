package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ahrav/go-arena/infrastructure/llm"
	"github.com/ahrav/go-arena/internal/domain"
	"github.com/ahrav/go-arena/internal/testutils"
)

// testCandidate describes one mock roster member.
type testCandidate struct {
	key   string
	model string
	mock  *llm.MockCoreLLM
}

func newTestRoster(t *testing.T, candidates ...testCandidate) *llm.Roster {
	t.Helper()
	cs := make([]testutils.Candidate, len(candidates))
	for i, c := range candidates {
		cs[i] = testutils.Candidate{Key: c.key, Model: c.model, Mock: c.mock}
	}
	roster, _ := testutils.NewRoster(t, cs...)
	return roster
}

func scriptedMock(answer, judgment string) *llm.MockCoreLLM {
	return testutils.ScriptedMock(answer, judgment)
}

func scores(values ...float64) string { return testutils.Judgment(values...) }

// recordingMetrics captures counters and latencies by metric name.
type recordingMetrics struct {
	mu        sync.Mutex
	counters  map[string]float64
	latencies map[string]int
	labels    []map[string]string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counters: map[string]float64{}, latencies: map[string]int{}}
}

func (m *recordingMetrics) RecordLatency(op string, _ time.Duration, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies[op]++
	m.labels = append(m.labels, labels)
}

func (m *recordingMetrics) RecordCounter(metric string, v float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[metric+":"+labels["status"]] += v
}

func (m *recordingMetrics) RecordGauge(string, float64, map[string]string)     {}
func (m *recordingMetrics) RecordHistogram(string, float64, map[string]string) {}

// recordingObserver captures phase boundaries.
type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []string
	errs     map[string]error
	result   *domain.BattleResult
}

func (o *recordingObserver) PhaseStarted(ctx context.Context, phase string) context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, phase)
	return ctx
}

func (o *recordingObserver) PhaseFinished(_ context.Context, phase string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, phase)
	if o.errs == nil {
		o.errs = map[string]error{}
	}
	o.errs[phase] = err
}

func (o *recordingObserver) BattleFinished(_ context.Context, result *domain.BattleResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.result = result
}
