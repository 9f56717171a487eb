package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-arena/internal/domain"
)

// TestTimeoutMiddleware_Bounds tests the per-call deadline against slow,
// fast and failing candidates.
func TestTimeoutMiddleware_Bounds(t *testing.T) {
	tests := []struct {
		name     string
		delay    time.Duration
		timeout  time.Duration
		mockErr  error
		wantErr  error
		maxTaken time.Duration
	}{
		{name: "answer within call timeout", delay: 10 * time.Millisecond, timeout: 200 * time.Millisecond, maxTaken: 150 * time.Millisecond},
		{name: "slow candidate hits call timeout", delay: 500 * time.Millisecond, timeout: 50 * time.Millisecond, wantErr: context.DeadlineExceeded, maxTaken: 250 * time.Millisecond},
		{name: "provider error returns at once", timeout: time.Second, mockErr: errors.New("quota exhausted"), maxTaken: 100 * time.Millisecond},
		{name: "long timeout adds no delay", delay: 10 * time.Millisecond, timeout: 30 * time.Second, maxTaken: 150 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockCoreLLM()
			mock.ResponseDelay = tt.delay
			mock.Error = tt.mockErr
			wrapped := TimeoutMiddleware(tt.timeout)(mock)

			start := time.Now()
			text, _, _, err := wrapped.DoRequest(t.Context(), "Explain TCP", nil)
			taken := time.Since(start)

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.mockErr != nil:
				require.Equal(t, tt.mockErr, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, "test response", text)
			}
			assert.Less(t, taken, tt.maxTaken)
			assert.Equal(t, 1, mock.GetCallCount())
		})
	}
}

// TestTimeoutMiddleware_BattleContextWins tests that a shorter battle deadline
// or a cancelled battle ends the call before the call timeout.
func TestTimeoutMiddleware_BattleContextWins(t *testing.T) {
	t.Run("deadline", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.ResponseDelay = 300 * time.Millisecond
		wrapped := TimeoutMiddleware(time.Second)(mock)

		ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
		defer cancel()
		_, _, _, err := wrapped.DoRequest(ctx, "rate these", nil)

		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("cancel", func(t *testing.T) {
		mock := NewMockCoreLLM()
		mock.ResponseDelay = 300 * time.Millisecond
		wrapped := TimeoutMiddleware(time.Second)(mock)

		ctx, cancel := context.WithCancel(t.Context())
		time.AfterFunc(20*time.Millisecond, cancel)
		start := time.Now()
		_, _, _, err := wrapped.DoRequest(ctx, "rate these", nil)

		require.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), 200*time.Millisecond)
	})
}

// TestTimeoutMiddleware_ForwardsBattleOptions tests that history, image and
// JSON mode reach the provider along with context values.
func TestTimeoutMiddleware_ForwardsBattleOptions(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := TimeoutMiddleware(time.Second)(mock)

	ctx := context.WithValue(t.Context(), testContextKey, "battle-7")
	opts := map[string]any{
		OptionJSONMode: true,
		OptionHistory:  []domain.Message{{Role: "user", Content: "hi"}},
		OptionImage:    &domain.Image{MIMEType: "image/png", Data: []byte{1}},
	}
	_, _, _, err := wrapped.DoRequest(ctx, "rate these", opts)

	require.NoError(t, err)
	assert.Equal(t, "rate these", mock.LastPrompt)
	assert.Equal(t, opts, mock.LastOpts)
	assert.Equal(t, "battle-7", mock.LastContext.Value(testContextKey))
	_, hasDeadline := mock.LastContext.Deadline()
	assert.True(t, hasDeadline)
}

func TestTimeoutMiddleware_ZeroTimeout(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := TimeoutMiddleware(0)(mock)

	_, _, _, err := wrapped.DoRequest(context.Background(), "Explain TCP", nil)

	require.NoError(t, err)
	_, hasDeadline := mock.LastContext.Deadline()
	assert.False(t, hasDeadline, "no deadline should be added")
}

func TestTimeoutMiddleware_PassesThroughModelMethods(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := TimeoutMiddleware(time.Second)(mock)

	wrapped.SetModel("gpt-5.1")
	assert.Equal(t, "gpt-5.1", wrapped.GetModel())
	assert.Equal(t, "gpt-5.1", mock.GetModel())
	assert.Equal(t, mock.ProviderName(), wrapped.ProviderName())
}

// TestTimeoutMiddleware_ConcurrentCandidates tests that one wrapped client
// serves the answer and rating fan-out at the same time.
func TestTimeoutMiddleware_ConcurrentCandidates(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.ResponseDelay = 20 * time.Millisecond
	wrapped := TimeoutMiddleware(time.Second)(mock)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _, errs[i] = wrapped.DoRequest(t.Context(), "Explain TCP", nil)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, len(errs), mock.GetCallCount())
}
