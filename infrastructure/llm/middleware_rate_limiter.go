package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// rateLimitedLLM paces calls to one candidate with a token bucket.
type rateLimitedLLM struct {
	next    CoreLLM
	limiter *rate.Limiter
}

// RateLimitMiddleware limits each wrapped client to limit calls per second
// with the given burst. Every client gets its own bucket, so a battle's
// answer and rating fan-out against one provider cannot starve another.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &rateLimitedLLM{
			next:    next,
			limiter: rate.NewLimiter(limit, burst),
		}
	}
}

// DoRequest blocks until a token is available or ctx ends.
func (r *rateLimitedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", 0, 0, fmt.Errorf("%s rate limit wait: %w", r.next.ProviderName(), err)
	}
	return r.next.DoRequest(ctx, prompt, opts)
}

func (r *rateLimitedLLM) GetModel() string     { return r.next.GetModel() }
func (r *rateLimitedLLM) SetModel(m string)    { r.next.SetModel(m) }
func (r *rateLimitedLLM) ProviderName() string { return r.next.ProviderName() }
