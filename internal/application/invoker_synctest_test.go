//go:build goexperiment.synctest

package application

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-arena/infrastructure/llm"
)

// TestInvoker_BackoffWithSynctest verifies that the second attempt starts one
// backoff after the first, without waiting in real time.
func TestInvoker_BackoffWithSynctest(t *testing.T) {
	synctest.Run(func() {
		mock := llm.NewMockCoreLLM()
		mock.FailUntilAttempt = 1
		roster := newTestRoster(t, testCandidate{key: "openai", model: "m", mock: mock})
		inv := NewInvoker(roster, InvokerConfig{Backoff: time.Second})

		start := time.Now()
		out := inv.Invoke(context.Background(), Call{Candidate: "openai", Prompt: "hi"})

		require.NoError(t, out.Err)
		assert.Equal(t, 2, out.Attempts)
		assert.Equal(t, time.Second, time.Since(start))
		assert.Equal(t, time.Second, out.Elapsed)

		gap := mock.GetTimeBetweenCalls(0, 1)
		require.NotNil(t, gap)
		assert.Equal(t, time.Second, *gap)
	})
}

// TestInvoker_ElapsedIncludesFailures verifies that elapsed time covers both
// attempts and the backoff when every attempt fails.
func TestInvoker_ElapsedIncludesFailures(t *testing.T) {
	synctest.Run(func() {
		mock := llm.NewMockCoreLLM()
		mock.Error = errors.New("down")
		mock.ResponseDelay = 3 * time.Second
		roster := newTestRoster(t, testCandidate{key: "openai", model: "m", mock: mock})
		inv := NewInvoker(roster, InvokerConfig{Backoff: time.Second})

		out := inv.Invoke(context.Background(), Call{Candidate: "openai", Prompt: "hi"})

		require.Error(t, out.Err)
		assert.Equal(t, 7*time.Second, out.Elapsed)
	})
}

// TestInvoker_CancelDuringBackoffWithSynctest verifies that cancellation
// during the backoff returns immediately.
func TestInvoker_CancelDuringBackoffWithSynctest(t *testing.T) {
	synctest.Run(func() {
		mock := llm.NewMockCoreLLM()
		mock.Error = errors.New("down")
		roster := newTestRoster(t, testCandidate{key: "openai", model: "m", mock: mock})
		inv := NewInvoker(roster, InvokerConfig{Backoff: time.Minute})

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(100*time.Millisecond, cancel)

		out := inv.Invoke(ctx, Call{Candidate: "openai", Prompt: "hi"})

		assert.ErrorIs(t, out.Err, context.Canceled)
		assert.Equal(t, 100*time.Millisecond, out.Elapsed)
		assert.Equal(t, 1, mock.GetCallCount())
	})
}
