package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errMockFailure is returned by a MockCoreLLM told to fail without an Error.
var errMockFailure = errors.New("mock provider failure")

// MockCoreLLM is a scriptable CoreLLM for battle and middleware tests.
// Every field may be set before the first call; tracking fields are read
// through the accessor methods once calls are in flight.
type MockCoreLLM struct {
	mu sync.Mutex

	Response      string
	TokensIn      int
	TokensOut     int
	Error         error
	Model         string
	Provider      string
	ResponseDelay time.Duration

	// Responder computes the reply from the prompt and options. It takes
	// precedence over Response and Error.
	Responder func(prompt string, opts map[string]any) (string, error)

	// FailUntilAttempt makes the first N calls fail with Error, or with a
	// generic failure when Error is nil.
	FailUntilAttempt int

	CallCount   int
	LastPrompt  string
	LastOpts    map[string]any
	LastContext context.Context

	calls   []time.Time
	prompts []string
}

// NewMockCoreLLM returns a mock that answers "test response" with 10 input
// and 20 output tokens.
func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		Response:  "test response",
		TokensIn:  10,
		TokensOut: 20,
		Model:     "test-model",
		Provider:  "mock",
	}
}

// DoRequest records the call, waits ResponseDelay unless ctx ends first and
// then replies. The lock is not held during the delay.
func (m *MockCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	m.CallCount++
	attempt := m.CallCount
	m.LastPrompt = prompt
	m.LastOpts = opts
	m.LastContext = ctx
	m.prompts = append(m.prompts, prompt)
	m.calls = append(m.calls, time.Now())
	delay := m.ResponseDelay
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.Responder != nil:
		text, err := m.Responder(prompt, opts)
		if err != nil {
			return "", 0, 0, err
		}
		return text, m.TokensIn, m.TokensOut, nil
	case attempt <= m.FailUntilAttempt:
		if m.Error != nil {
			return "", 0, 0, m.Error
		}
		return "", 0, 0, errMockFailure
	case m.Error != nil:
		return "", 0, 0, m.Error
	}
	return m.Response, m.TokensIn, m.TokensOut, nil
}

// GetModel returns the configured model.
func (m *MockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

// SetModel replaces the configured model.
func (m *MockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Model = model
}

// ProviderName returns Provider, "mock" by default.
func (m *MockCoreLLM) ProviderName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Provider
}

// Prompts returns every prompt received, in call order.
func (m *MockCoreLLM) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// GetCallCount returns the number of DoRequest calls so far.
func (m *MockCoreLLM) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// GetTimeBetweenCalls returns the gap between two calls by index, or nil
// when either call has not happened.
func (m *MockCoreLLM) GetTimeBetweenCalls(first, second int) *time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if first < 0 || second < 0 || first >= len(m.calls) || second >= len(m.calls) {
		return nil
	}
	gap := m.calls[second].Sub(m.calls[first])
	return &gap
}
