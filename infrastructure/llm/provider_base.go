package llm

import (
	"sync"

	"github.com/ahrav/go-arena/internal/domain"
)

// Option keys understood by every provider.
const (
	OptionJSONMode    = "json_mode"
	OptionHistory     = "history"
	OptionImage       = "image"
	OptionTemperature = "temperature"
	OptionMaxTokens   = "max_tokens"
	OptionSystem      = "system"
	OptionModel       = "model"
	OptionTopP        = "top_p"
)

// DefaultMaxTokens is the completion budget used when a request does not set one.
const DefaultMaxTokens = 4096

// BaseProvider provides common, thread-safe functionality for all LLM providers,
// primarily for managing the model name.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
	name  string
}

// GetModel returns the name of the model currently configured for the provider.
// It is safe for concurrent use.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel updates the model name for the provider.
// It is safe for concurrent use.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// ProviderName returns the provider type.
func (b *BaseProvider) ProviderName() string { return b.name }

// RequestOptions represents a standardized set of configuration parameters for an LLM request.
// It consolidates common settings across different providers.
type RequestOptions struct {
	// MaxTokens specifies the maximum number of tokens to generate.
	MaxTokens int
	// Model is the identifier of the language model to use for the request.
	Model string
	// Temperature controls the randomness of the output.
	// A nil value indicates that the provider's default should be used.
	Temperature *float64
	// TopP is nucleus sampling. A nil value leaves the provider default.
	TopP *float64
	// System provides instructions to the model ahead of the conversation.
	System string
	// JSONMode asks the provider to answer with a JSON object only.
	JSONMode bool
	// History holds prior conversation turns sent before the prompt.
	History []domain.Message
	// Image is attached to the final user turn when set.
	Image *domain.Image
	// Extra holds any provider-specific options that are not part of the standardized set.
	Extra map[string]any
}

// ParseRequestOptions extracts and validates LLM request parameters from a map.
// It populates a RequestOptions struct with standardized values,
// using provided defaults for any missing or invalid entries.
// Any unrecognized options are collected into the Extra field.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		MaxTokens: ExtractOption(opts, OptionMaxTokens, DefaultMaxTokens, isPositive),
		Model:     ExtractOption(opts, OptionModel, defaultModel, isNonEmpty),
		System:    ExtractOption(opts, OptionSystem, "", nil),
		Extra:     make(map[string]any),
	}

	if temp := ExtractOption(opts, OptionTemperature, -1, IsValidTemperature); temp != -1 {
		options.Temperature = &temp
	}

	if topP := ExtractOption(opts, OptionTopP, -1, IsValidTopP); topP != -1 {
		options.TopP = &topP
	}

	options.JSONMode, _ = opts[OptionJSONMode].(bool)

	switch h := opts[OptionHistory].(type) {
	case []domain.Message:
		options.History = h
	case []map[string]string:
		for _, m := range h {
			options.History = append(options.History, domain.Message{Role: m["role"], Content: m["content"]})
		}
	}

	switch img := opts[OptionImage].(type) {
	case *domain.Image:
		options.Image = img
	case domain.Image:
		options.Image = &img
	}

	for k, v := range opts {
		switch k {
		case OptionMaxTokens, OptionModel, OptionSystem, OptionTemperature, OptionTopP,
			OptionJSONMode, OptionHistory, OptionImage:
		default:
			options.Extra[k] = v
		}
	}

	return options
}

// TokenCounter provides a utility for estimating token counts from text.
// This is useful when an exact tokenizer is not available for a given model.
type TokenCounter struct {
	// CharactersPerToken represents the average number of characters per token.
	CharactersPerToken float64
}

// NewTokenCounter creates a new TokenCounter with a default character-per-token ratio.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{
		CharactersPerToken: 4.0, // A common approximation for English text.
	}
}

// EstimateTokens calculates an estimated token count for a given string of text.
func (tc *TokenCounter) EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return int(float64(len(text)) / tc.CharactersPerToken)
}

// GetTokenCount returns the actual token count if it is available and positive.
// Otherwise, it falls back to estimating the count based on the provided text.
func (tc *TokenCounter) GetTokenCount(actualCount int, text string) int {
	if actualCount > 0 {
		return actualCount
	}
	return tc.EstimateTokens(text)
}
