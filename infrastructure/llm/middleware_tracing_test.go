package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ahrav/go-arena/internal/domain"
)

// recordingTracer returns a tracing middleware whose spans land in the
// returned recorder.
func recordingTracer(t *testing.T) (Middleware, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return TracingMiddlewareWithTracer(provider.Tracer("arena-test")), recorder
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

// TestTracingMiddleware_SpanPerCall tests the attributes recorded for the
// answer and rating calls of a battle.
func TestTracingMiddleware_SpanPerCall(t *testing.T) {
	tests := []struct {
		name    string
		prompt  string
		opts    map[string]any
		want    map[attribute.Key]attribute.Value
		missing []attribute.Key
	}{
		{
			name:   "answer with history and image",
			prompt: "what is this?",
			opts: map[string]any{
				OptionHistory: []domain.Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
				OptionImage:   &domain.Image{MIMEType: "image/png", Data: []byte{1}},
			},
			want: map[attribute.Key]attribute.Value{
				"llm.prompt.length":   attribute.IntValue(13),
				"llm.history.length":  attribute.IntValue(2),
				"llm.image.mime_type": attribute.StringValue("image/png"),
			},
			missing: []attribute.Key{"llm.json_mode"},
		},
		{
			name:   "rating in json mode",
			prompt: "rate these",
			opts:   map[string]any{OptionJSONMode: true},
			want: map[attribute.Key]attribute.Value{
				"llm.prompt.length": attribute.IntValue(10),
				"llm.json_mode":     attribute.BoolValue(true),
			},
			missing: []attribute.Key{"llm.history.length", "llm.image.mime_type"},
		},
		{
			name:    "empty prompt without options",
			want:    map[attribute.Key]attribute.Value{"llm.prompt.length": attribute.IntValue(0)},
			missing: []attribute.Key{"llm.json_mode", "llm.history.length"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware, recorder := recordingTracer(t)
			mock := NewMockCoreLLM()
			mock.Provider = "google"
			mock.Model = "gemini-3-pro-preview"
			mock.TokensIn, mock.TokensOut = 150, 75

			text, in, out, err := middleware(mock).DoRequest(t.Context(), tt.prompt, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, "test response", text)
			assert.Equal(t, 150, in)
			assert.Equal(t, 75, out)

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, "llm.request", spans[0].Name())
			assert.Equal(t, codes.Ok, spans[0].Status().Code)

			attrs := spanAttrs(spans[0])
			assert.Equal(t, "google", attrs["llm.provider"].AsString())
			assert.Equal(t, "gemini-3-pro-preview", attrs["llm.model"].AsString())
			assert.Equal(t, int64(150), attrs["llm.tokens.input"].AsInt64())
			assert.Equal(t, int64(75), attrs["llm.tokens.output"].AsInt64())
			for k, v := range tt.want {
				assert.Equal(t, v, attrs[k], "attribute %s", k)
			}
			for _, k := range tt.missing {
				assert.NotContains(t, attrs, k)
			}
		})
	}
}

// TestTracingMiddleware_FailedCalls tests that provider, breaker and
// cancellation errors come back unchanged and mark the span.
func TestTracingMiddleware_FailedCalls(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*MockCoreLLM) context.Context
		want  error
	}{
		{
			name: "provider error",
			setup: func(m *MockCoreLLM) context.Context {
				m.Error = errors.New("model overloaded")
				return context.Background()
			},
		},
		{
			name: "breaker open",
			setup: func(m *MockCoreLLM) context.Context {
				m.Error = ErrCircuitOpen
				return context.Background()
			},
			want: ErrCircuitOpen,
		},
		{
			name: "battle cancelled",
			setup: func(m *MockCoreLLM) context.Context {
				m.ResponseDelay = time.Second
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			want: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware, recorder := recordingTracer(t)
			mock := NewMockCoreLLM()
			ctx := tt.setup(mock)

			_, _, _, err := middleware(mock).DoRequest(ctx, "Explain TCP", nil)

			require.Error(t, err)
			want := tt.want
			if want == nil {
				want = mock.Error
			}
			assert.ErrorIs(t, err, want)

			spans := recorder.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, codes.Error, spans[0].Status().Code)
			assert.Equal(t, err.Error(), spans[0].Status().Description)
			assert.NotEmpty(t, spans[0].Events())
			assert.NotContains(t, spanAttrs(spans[0]), attribute.Key("llm.tokens.input"))
		})
	}
}

func TestTracingMiddleware_ForwardsContextAndOptions(t *testing.T) {
	middleware, _ := recordingTracer(t)
	mock := NewMockCoreLLM()

	ctx := context.WithValue(t.Context(), testContextKey, "battle-5")
	opts := map[string]any{OptionTemperature: 0.2}
	_, _, _, err := middleware(mock).DoRequest(ctx, "Explain TCP", opts)

	require.NoError(t, err)
	assert.Equal(t, opts, mock.LastOpts)
	assert.Equal(t, "battle-5", mock.LastContext.Value(testContextKey))
}

func TestTracingMiddleware_GlobalProviderAndModelMethods(t *testing.T) {
	mock := NewMockCoreLLM()
	wrapped := TracingMiddleware("github.com/ahrav/go-arena")(mock)

	_, _, _, err := wrapped.DoRequest(t.Context(), "Explain TCP", nil)
	require.NoError(t, err)

	wrapped.SetModel("gpt-5.1")
	assert.Equal(t, "gpt-5.1", mock.GetModel())
	assert.Equal(t, "gpt-5.1", wrapped.GetModel())
	assert.Equal(t, "mock", wrapped.ProviderName())
}

// TestTracingMiddleware_OutermostInChain tests that the span covers the
// timeout and breaker layers beneath it.
func TestTracingMiddleware_OutermostInChain(t *testing.T) {
	middleware, recorder := recordingTracer(t)
	mock := NewMockCoreLLM()
	mock.ResponseDelay = 200 * time.Millisecond

	wrapped := middleware(CircuitBreakerMiddleware(3, time.Minute)(TimeoutMiddleware(20 * time.Millisecond)(mock)))
	_, _, _, err := wrapped.DoRequest(t.Context(), "Explain TCP", nil)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, 1, mock.GetCallCount())
}
