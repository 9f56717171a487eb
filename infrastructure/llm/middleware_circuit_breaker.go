package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the provider while its breaker
// is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState is the breaker position for one candidate.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	// StateOpen rejects every call until the cooldown passes.
	StateOpen
	// StateHalfOpen admits one probe call.
	StateHalfOpen
)

// String returns the state name used in logs and metric labels.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreakerMetrics receives breaker outcomes per provider. RecordTrip
// counts calls rejected while open.
type CircuitBreakerMetrics interface {
	RecordState(provider string, state CircuitBreakerState)
	RecordTrip(provider string)
	RecordSuccess(provider string)
	RecordFailure(provider string)
}

// CircuitBreaker opens after maxFailures consecutive failures. Once the
// cooldown has passed it admits one probe whose outcome closes or reopens
// it. The lock is never held across the guarded call.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            CircuitBreakerState
	failureCount     int
	maxFailures      int
	cooldownDuration time.Duration
	openedAt         time.Time
	probing          bool
	now              func() time.Time
}

// NewCircuitBreaker returns a closed breaker. maxFailures below one is
// treated as one.
func NewCircuitBreaker(maxFailures int, cooldownDuration time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		maxFailures:      max(maxFailures, 1),
		cooldownDuration: cooldownDuration,
		now:              time.Now,
	}
}

// Call runs fn unless the breaker is open. A cancelled battle does not
// count against the provider.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}

	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldownDuration {
			return false
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasProbe := cb.state == StateHalfOpen
	cb.probing = false

	switch {
	case err == nil:
		cb.failureCount = 0
		cb.state = StateClosed
	case errors.Is(err, context.Canceled):
		// The probe never reached a verdict; let the next caller try.
	default:
		cb.failureCount++
		if wasProbe || cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
			cb.openedAt = cb.now()
		}
	}
}

func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// circuitBreakedLLM guards one candidate client.
type circuitBreakedLLM struct {
	next    CoreLLM
	cb      *CircuitBreaker
	metrics CircuitBreakerMetrics
}

// CircuitBreakerMiddleware is CircuitBreakerMiddlewareWithMetrics without
// metrics.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return CircuitBreakerMiddlewareWithMetrics(maxFailures, cooldown, nil)
}

// CircuitBreakerMiddlewareWithMetrics gives every wrapped client its own
// breaker and reports each call outcome to metrics when it is non-nil.
func CircuitBreakerMiddlewareWithMetrics(maxFailures int, cooldown time.Duration, metrics CircuitBreakerMetrics) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &circuitBreakedLLM{
			next:    next,
			cb:      NewCircuitBreaker(maxFailures, cooldown),
			metrics: metrics,
		}
	}
}

func (c *circuitBreakedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	var response string
	var tokensIn, tokensOut int

	err := c.cb.Call(func() error {
		var err error
		response, tokensIn, tokensOut, err = c.next.DoRequest(ctx, prompt, opts)
		return err
	})

	if c.metrics != nil {
		provider := c.next.ProviderName()
		switch {
		case err == nil:
			c.metrics.RecordSuccess(provider)
		case errors.Is(err, ErrCircuitOpen):
			c.metrics.RecordTrip(provider)
		default:
			c.metrics.RecordFailure(provider)
		}
		c.metrics.RecordState(provider, c.cb.GetState())
	}

	return response, tokensIn, tokensOut, err
}

func (c *circuitBreakedLLM) GetModel() string     { return c.next.GetModel() }
func (c *circuitBreakedLLM) SetModel(m string)    { c.next.SetModel(m) }
func (c *circuitBreakedLLM) ProviderName() string { return c.next.ProviderName() }
