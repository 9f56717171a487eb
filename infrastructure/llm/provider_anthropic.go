package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ahrav/go-arena/internal/domain"
)

const (
	// AnthropicDefaultModel is used when the configuration names no model.
	AnthropicDefaultModel = "claude-opus-4-5-20251101"

	// anthropicJSONSystemPrompt replaces the system prompt in JSON mode, since
	// the Messages API has no response format switch.
	anthropicJSONSystemPrompt = "You must respond with valid JSON only, no other text."
)

func init() {
	RegisterProviderFactory("anthropic", newAnthropicProvider)
}

// anthropicProvider implements the CoreLLM interface for Anthropic's Claude API.
type anthropicProvider struct {
	BaseProvider
	client          anthropic.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

// newAnthropicProvider creates a new Anthropic provider instance.
func newAnthropicProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	// Retries belong to the caller; the SDK's own retry loop is disabled.
	opts := []option.RequestOption{option.WithAPIKey(config.APIKey), option.WithMaxRetries(0)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: ValidateTimeout(config.Timeout)}))
	}

	return &anthropicProvider{
		BaseProvider:    BaseProvider{model: model, name: "anthropic"},
		client:          anthropic.NewClient(opts...),
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "anthropic"},
	}, nil
}

// DoRequest sends a request to Anthropic's Messages API and returns the
// concatenated text blocks with token usage.
func (p *anthropicProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, p.GetModel())
	params := p.buildParams(prompt, options)

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", 0, 0, p.errorClassifier.HandleError(err, anthropicStatus)
	}

	return p.processResponse(message, prompt)
}

// buildParams creates the API request parameters.
func (p *anthropicProvider) buildParams(prompt string, options RequestOptions) anthropic.MessageNewParams {
	messages := make([]anthropic.MessageParam, 0, len(options.History)+1)
	for _, m := range options.History {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == domain.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	if options.Image != nil {
		messages = append(messages, anthropic.NewUserMessage(
			anthropic.NewImageBlockBase64(options.Image.MIMEType, options.Image.Base64()),
			anthropic.NewTextBlock(prompt),
		))
	} else {
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(options.Model),
		MaxTokens: int64(options.MaxTokens),
		Messages:  messages,
	}

	if options.Temperature != nil {
		params.Temperature = anthropic.Float(ClampFloat64(*options.Temperature, 0.0, 1.0))
	}

	system := options.System
	if options.JSONMode {
		system = anthropicJSONSystemPrompt
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	return params
}

// processResponse extracts content and token counts from the API response.
func (p *anthropicProvider) processResponse(message *anthropic.Message, prompt string) (string, int, int, error) {
	var responseText strings.Builder
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			responseText.WriteString(text.Text)
		}
	}

	content := responseText.String()
	if content == "" {
		return "", 0, 0, ErrEmptyResponse
	}

	tokensIn := p.tokenCounter.GetTokenCount(int(message.Usage.InputTokens), prompt)
	tokensOut := p.tokenCounter.GetTokenCount(int(message.Usage.OutputTokens), content)

	return content, tokensIn, tokensOut, nil
}

func anthropicStatus(err error) (int, string, bool) {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, http.StatusText(apiErr.StatusCode), true
	}
	return 0, "", false
}
