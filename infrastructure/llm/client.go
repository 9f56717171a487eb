// Package llm provides a unified interface for the providers that take part
// in battles, with built-in support for rate limiting, circuit breaking,
// metrics, and tracing.
//
// The package abstracts multiple LLM providers (OpenAI, Anthropic, Google,
// xAI Grok) behind a common interface while adding production-ready
// cross-cutting concerns through a middleware pattern.
//
// Architecture:
//   - Core client implementation with middleware chain composition
//   - Provider implementations abstracted through CoreLLM interface
//   - Pluggable middleware for timeouts, rate limiting, circuit breaking, metrics, tracing
//   - Roster of battle candidates built from configuration
//
// Basic usage:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-5.1",
//	})
//	response, err := client.Complete(ctx, "Hello world!", map[string]any{"json_mode": true})
//
// Advanced usage with middleware:
//
//	client, err := llm.NewClient("anthropic", llm.ClientConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-opus-4-5-20251101",
//	    Middleware: []llm.Middleware{
//	        llm.TracingMiddleware("go-arena"),
//	        llm.MetricsMiddleware(metricsCollector),
//	        llm.CircuitBreakerMiddleware(5, 30*time.Second),
//	        llm.RateLimitMiddleware(2, 4),
//	        llm.TimeoutMiddleware(20 * time.Second),
//	    },
//	})
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ahrav/go-arena/internal/ports"
)

// CoreLLM defines the minimal interface that LLM providers must implement.
// This interface abstracts the core functionality needed to make requests
// to different LLM services, allowing the middleware system to wrap
// any conforming implementation.
type CoreLLM interface {
	// DoRequest sends a prompt to the LLM provider and returns the response.
	// The opts parameter carries request options such as json_mode, history,
	// image, temperature or max tokens.
	// Returns the response text, input token count, output token count, and any error.
	DoRequest(
		ctx context.Context,
		prompt string,
		opts map[string]any,
	) (
		response string,
		tokensIn, tokensOut int,
		err error,
	)

	// GetModel returns the currently configured model name.
	GetModel() string

	// SetModel updates the model to use for subsequent requests.
	SetModel(model string)

	// ProviderName returns the provider type, e.g. "openai".
	ProviderName() string
}

// ClientConfig holds all configuration options for creating an LLM client.
type ClientConfig struct {
	// APIKey authenticates requests to the LLM provider.
	APIKey string

	// Model specifies which LLM model to use for requests.
	// Each provider supports different model names.
	Model string

	// BaseURL overrides the default API endpoint for the provider.
	// Leave empty to use the provider's default endpoint.
	BaseURL string

	// Timeout sets the HTTP client timeout for individual requests.
	// Zero value means the transport default.
	Timeout time.Duration

	// Middleware allows custom middleware insertion.
	// The first middleware is the outermost.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM implementation to add cross-cutting functionality.
// This pattern allows composition of features like rate limiting, circuit breaking,
// metrics collection, and custom behavior without modifying core provider logic.
type Middleware func(CoreLLM) CoreLLM

// Client implements the ports.LLMClient interface with all cross-cutting concerns.
// It wraps a provider-specific CoreLLM implementation with middleware.
type Client struct {
	core CoreLLM
}

// NewClient creates a new LLM client with the specified provider and configuration.
// An empty model selects the provider's default.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	return NewClientFromCore(core, config.Middleware...), nil
}

// NewClientFromCore wraps an existing CoreLLM with middleware. The first
// middleware is the outermost.
func NewClientFromCore(core CoreLLM, middleware ...Middleware) *Client {
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}
	return &Client{core: core}
}

// Complete sends a prompt to the LLM and returns the response text.
// Provider failures are wrapped in a ports.LLMError; context errors are
// returned unchanged so callers can detect cancellation directly.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ports.NewLLMError(c.core.GetModel(), "complete", err)
	}
	return response, nil
}

// CompleteWithUsage sends a prompt to the LLM and returns detailed usage information.
func (c *Client) CompleteWithUsage(
	ctx context.Context,
	prompt string,
	options map[string]any,
) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

// GetModel returns the currently configured model name from the underlying provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// ProviderName returns the provider type behind the client.
func (c *Client) ProviderName() string { return c.core.ProviderName() }

var _ ports.LLMClient = (*Client)(nil)

// ProviderFactory creates a CoreLLM implementation from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

// Provider factory registry for extensibility.
var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory allows registration of custom LLM provider factories.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}

// ProviderTypes returns the registered provider types in lexical order.
func ProviderTypes() []string {
	types := make([]string, 0, len(providerFactories))
	for t := range providerFactories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
