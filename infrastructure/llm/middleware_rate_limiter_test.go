package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-arena/internal/domain"
)

// timedCall returns how long one DoRequest took.
func timedCall(t *testing.T, c CoreLLM, prompt string) time.Duration {
	t.Helper()
	start := time.Now()
	_, _, _, err := c.DoRequest(t.Context(), prompt, nil)
	require.NoError(t, err)
	return time.Since(start)
}

// TestRateLimitMiddleware_BurstThenWait tests that calls inside the burst go
// straight through and the next one waits for a refill.
func TestRateLimitMiddleware_BurstThenWait(t *testing.T) {
	tests := []struct {
		name    string
		limit   rate.Limit
		burst   int
		minWait time.Duration
		maxWait time.Duration
	}{
		{name: "single token at two per second", limit: 2, burst: 1, minWait: 400 * time.Millisecond, maxWait: 700 * time.Millisecond},
		{name: "three candidates share a burst of three", limit: 1, burst: 3, minWait: 800 * time.Millisecond, maxWait: 1300 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockCoreLLM()
			wrapped := RateLimitMiddleware(tt.limit, tt.burst)(mock)

			for i := range tt.burst {
				assert.Less(t, timedCall(t, wrapped, "Explain TCP"), 100*time.Millisecond, "burst call %d", i+1)
			}
			waited := timedCall(t, wrapped, "Explain TCP")

			assert.Greater(t, waited, tt.minWait)
			assert.Less(t, waited, tt.maxWait)
			assert.Equal(t, tt.burst+1, mock.GetCallCount())
		})
	}
}

func TestRateLimitMiddleware_ReturnsProviderResponse(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := RateLimitMiddleware(10, 1)(mock)

	text, in, out, err := wrapped.DoRequest(t.Context(), "Explain TCP", nil)

	require.NoError(t, err)
	assert.Equal(t, "test response", text)
	assert.Equal(t, 10, in)
	assert.Equal(t, 20, out)
}

// TestRateLimitMiddleware_WaitAborted tests that a battle deadline shorter
// than the refill time fails the call without reaching the provider.
func TestRateLimitMiddleware_WaitAborted(t *testing.T) {
	tests := []struct {
		name  string
		limit rate.Limit
		burst int
		drain int
	}{
		{name: "bucket drained", limit: 0.1, burst: 1, drain: 1},
		{name: "zero burst never admits", limit: 0, burst: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockCoreLLM()
			wrapped := RateLimitMiddleware(tt.limit, tt.burst)(mock)
			for range tt.drain {
				timedCall(t, wrapped, "answer")
			}

			ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
			defer cancel()
			_, _, _, err := wrapped.DoRequest(ctx, "rate these", nil)

			require.Error(t, err)
			assert.Contains(t, err.Error(), "mock rate limit wait")
			assert.Equal(t, tt.drain, mock.GetCallCount())
		})
	}
}

func TestRateLimitMiddleware_CancelledBattle(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := RateLimitMiddleware(0.1, 1)(mock)
	timedCall(t, wrapped, "answer")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, _, _, err := wrapped.DoRequest(ctx, "rate these", nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, mock.GetCallCount())
}

func TestRateLimitMiddleware_ForwardsBattleOptions(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := RateLimitMiddleware(10, 1)(mock)

	ctx := context.WithValue(t.Context(), testContextKey, "battle-3")
	opts := map[string]any{
		OptionHistory: []domain.Message{{Role: "assistant", Content: "earlier answer"}},
		OptionImage:   &domain.Image{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8}},
	}
	_, _, _, err := wrapped.DoRequest(ctx, "what is in this picture?", opts)

	require.NoError(t, err)
	assert.Equal(t, "what is in this picture?", mock.LastPrompt)
	assert.Equal(t, opts, mock.LastOpts)
	assert.Equal(t, "battle-3", mock.LastContext.Value(testContextKey))
}

func TestRateLimitMiddleware_PassesThroughProviderError(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = errors.New("invalid api key")
	wrapped := RateLimitMiddleware(10, 1)(mock)

	_, _, _, err := wrapped.DoRequest(t.Context(), "Explain TCP", nil)

	assert.Equal(t, mock.Error, err)
}

func TestRateLimitMiddleware_PassesThroughModelMethods(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := RateLimitMiddleware(10, 1)(mock)

	wrapped.SetModel("claude-sonnet-4-5")
	assert.Equal(t, "claude-sonnet-4-5", mock.GetModel())
	assert.Equal(t, "claude-sonnet-4-5", wrapped.GetModel())
	assert.Equal(t, "mock", wrapped.ProviderName())
}

// TestRateLimitMiddleware_ConcurrentFanOut tests that parallel rating calls
// all complete and are paced by the bucket.
func TestRateLimitMiddleware_ConcurrentFanOut(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := RateLimitMiddleware(20, 2)(mock)

	const calls = 6
	var wg sync.WaitGroup
	errs := make([]error, calls)
	start := time.Now()
	for i := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _, errs[i] = wrapped.DoRequest(t.Context(), "rate these", nil)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, calls, mock.GetCallCount())
	// Four calls beyond the burst at 20/s need at least ~200ms.
	assert.Greater(t, time.Since(start), 150*time.Millisecond)
}

func TestRateLimitMiddleware_SeparateBucketPerCandidate(t *testing.T) {
	middleware := RateLimitMiddleware(0.001, 1)
	openai := middleware(NewMockCoreLLM())
	grok := middleware(NewMockCoreLLM())

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, _, _, err := openai.DoRequest(ctx, "a", nil)
	require.NoError(t, err)
	_, _, _, err = grok.DoRequest(ctx, "b", nil)
	require.NoError(t, err, "grok has its own token")
	_, _, _, err = openai.DoRequest(ctx, "c", nil)
	assert.Error(t, err, "openai is out of tokens")
}
