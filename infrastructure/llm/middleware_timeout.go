package llm

import (
	"context"
	"time"
)

// timeoutLLM bounds each candidate call.
type timeoutLLM struct {
	next    CoreLLM
	timeout time.Duration
}

// TimeoutMiddleware gives every call its own deadline of timeout from the
// moment it starts. A shorter battle deadline still wins. A non-positive
// timeout leaves the caller's context untouched.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &timeoutLLM{next: next, timeout: timeout}
	}
}

func (t *timeoutLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if t.timeout <= 0 {
		return t.next.DoRequest(ctx, prompt, opts)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.DoRequest(ctx, prompt, opts)
}

func (t *timeoutLLM) GetModel() string     { return t.next.GetModel() }
func (t *timeoutLLM) SetModel(m string)    { t.next.SetModel(m) }
func (t *timeoutLLM) ProviderName() string { return t.next.ProviderName() }
