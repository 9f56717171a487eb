package llm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-arena/internal/domain"
)

// tracedLLM opens one client span per candidate call.
type tracedLLM struct {
	next   CoreLLM
	tracer trace.Tracer
}

// TracingMiddleware traces calls with the global tracer provider.
func TracingMiddleware(instrumentationName string) Middleware {
	return TracingMiddlewareWithTracer(otel.Tracer(instrumentationName))
}

// TracingMiddlewareWithTracer is TracingMiddleware with an explicit tracer.
func TracingMiddlewareWithTracer(tracer trace.Tracer) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &tracedLLM{next: next, tracer: tracer}
	}
}

// DoRequest records provider, model, prompt length, battle options and
// token usage on an "llm.request" span.
func (t *tracedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ctx, span := t.tracer.Start(ctx, "llm.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", t.next.ProviderName()),
			attribute.String("llm.model", t.next.GetModel()),
			attribute.Int("llm.prompt.length", len(prompt)),
		),
	)
	defer span.End()

	if jsonMode, _ := opts[OptionJSONMode].(bool); jsonMode {
		span.SetAttributes(attribute.Bool("llm.json_mode", true))
	}
	if history, ok := opts[OptionHistory].([]domain.Message); ok && len(history) > 0 {
		span.SetAttributes(attribute.Int("llm.history.length", len(history)))
	}
	if img, ok := opts[OptionImage].(*domain.Image); ok && img != nil {
		span.SetAttributes(attribute.String("llm.image.mime_type", img.MIMEType))
	}

	response, tokensIn, tokensOut, err := t.next.DoRequest(ctx, prompt, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return response, tokensIn, tokensOut, err
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.input", tokensIn),
		attribute.Int("llm.tokens.output", tokensOut),
	)
	span.SetStatus(codes.Ok, "")
	return response, tokensIn, tokensOut, nil
}

func (t *tracedLLM) GetModel() string     { return t.next.GetModel() }
func (t *tracedLLM) SetModel(m string)    { t.next.SetModel(m) }
func (t *tracedLLM) ProviderName() string { return t.next.ProviderName() }
