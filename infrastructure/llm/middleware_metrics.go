package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-arena/internal/ports"
)

// Metric names recorded by MetricsMiddleware.
const (
	MetricLLMLatency  = "llm_latency_seconds"
	MetricLLMRequests = "llm_requests_total"
	MetricLLMTokens   = "llm_tokens_total"
)

// metricsLLM implements request metrics collection.
// This provides observability into request patterns, latency,
// token usage, and error rates for operational monitoring.
type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that collects request metrics.
// This enables monitoring of LLM usage, performance, and costs across providers.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{
			next:      next,
			collector: collector,
		}
	}
}

// DoRequest executes the request while collecting latency, status, and
// token usage labelled by provider and model.
func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)

	if m.collector == nil {
		return response, tokensIn, tokensOut, err
	}

	labels := map[string]string{
		"provider": m.next.ProviderName(),
		"model":    m.next.GetModel(),
		"status":   requestStatus(ctx, err),
	}

	m.collector.RecordHistogram(MetricLLMLatency, time.Since(start).Seconds(), labels)
	m.collector.RecordCounter(MetricLLMRequests, 1, labels)

	if err == nil {
		m.collector.RecordCounter(MetricLLMTokens, float64(tokensIn), withLabel(labels, "token_type", "input"))
		m.collector.RecordCounter(MetricLLMTokens, float64(tokensOut), withLabel(labels, "token_type", "output"))
	}

	return response, tokensIn, tokensOut, err
}

func requestStatus(ctx context.Context, err error) string {
	var perr *ProviderError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &perr) && perr.Type == ErrorTypeRateLimit:
		return "rate_limited"
	default:
		return "error"
	}
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[key] = value
	return out
}

// GetModel returns the model name from the wrapped implementation.
func (m *metricsLLM) GetModel() string { return m.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }

// ProviderName returns the provider type from the wrapped implementation.
func (m *metricsLLM) ProviderName() string { return m.next.ProviderName() }
