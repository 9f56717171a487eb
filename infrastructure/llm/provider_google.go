package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/ahrav/go-arena/internal/domain"
)

const (
	// GoogleDefaultModel is used when the configuration names no model.
	GoogleDefaultModel = "gemini-3-pro-preview"
)

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

// googleProvider implements the CoreLLM interface for Google's Gemini API.
type googleProvider struct {
	BaseProvider
	client          *genai.Client
	tokenCounter    *TokenCounter
	errorClassifier *ErrorClassifier
}

// newGoogleProvider creates a new Google Gemini provider instance.
// It returns an error if the required configuration is missing or invalid.
func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	authConfig, err := buildAuthConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to configure authentication: %w", err)
	}

	client, err := genai.NewClient(context.Background(), authConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &googleProvider{
		BaseProvider:    BaseProvider{model: model, name: "google"},
		client:          client,
		tokenCounter:    NewTokenCounter(),
		errorClassifier: &ErrorClassifier{Provider: "google"},
	}, nil
}

// DoRequest sends a request to the Gemini API and returns the generated
// content with token usage.
func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	options := ParseRequestOptions(opts, p.GetModel())

	contents := p.buildContents(prompt, options)
	config := p.buildGenerationConfig(options)

	resp, err := p.client.Models.GenerateContent(ctx, options.Model, contents, config)
	if err != nil {
		return "", 0, 0, p.handleError(err)
	}

	content := resp.Text()
	if content == "" {
		return "", 0, 0, ErrEmptyResponse
	}

	tokensIn := p.getTokenCount(resp.UsageMetadata, true, prompt)
	tokensOut := p.getTokenCount(resp.UsageMetadata, false, content)

	return content, tokensIn, tokensOut, nil
}

// getTokenCount retrieves the token count from the API response metadata,
// falling back to an estimate.
func (p *googleProvider) getTokenCount(usage *genai.GenerateContentResponseUsageMetadata, isInput bool, text string) int {
	if usage != nil {
		if isInput && usage.PromptTokenCount > 0 {
			return int(usage.PromptTokenCount)
		}
		if !isInput && usage.CandidatesTokenCount > 0 {
			return int(usage.CandidatesTokenCount)
		}
	}
	return p.tokenCounter.EstimateTokens(text)
}

// buildContents maps history onto user and model turns and appends the
// prompt, with the image as an inline part when present.
func (p *googleProvider) buildContents(prompt string, options RequestOptions) []*genai.Content {
	contents := make([]*genai.Content, 0, len(options.History)+1)
	for _, m := range options.History {
		role := genai.Role(genai.RoleUser)
		if m.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	if options.Image == nil {
		return append(contents, genai.NewContentFromText(prompt, genai.RoleUser))
	}

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(options.Image.Data, options.Image.MIMEType),
	}
	return append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
}

// buildGenerationConfig creates the generation configuration for a Gemini request.
func (p *googleProvider) buildGenerationConfig(options RequestOptions) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if options.System != "" {
		config.SystemInstruction = genai.NewContentFromText(options.System, genai.RoleUser)
	}

	if options.JSONMode {
		config.ResponseMIMEType = "application/json"
	}

	if options.Temperature != nil {
		config.Temperature = genai.Ptr(float32(ClampFloat64(*options.Temperature, 0.0, 2.0)))
	}

	if options.MaxTokens > 0 {
		config.MaxOutputTokens = int32(min(options.MaxTokens, math.MaxInt32))
	}

	if options.TopP != nil {
		config.TopP = genai.Ptr(float32(ClampFloat64(*options.TopP, 0.0, 1.0)))
	}

	return config
}

// handleError classifies errors from the Gemini API. Safety blocks are
// reported as content policy errors.
func (p *googleProvider) handleError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && containsContentPolicyError(apiErr) {
		return NewProviderError("google", ErrorTypeContentPolicy, apiErr.Code,
			"request blocked by safety filters", err)
	}
	if code, message, ok := googleStatus(err); ok && isPolicyMessage(message) {
		return NewProviderError("google", ErrorTypeContentPolicy, code,
			"request blocked by safety filters", err)
	}
	return p.errorClassifier.HandleError(err, googleStatus)
}

func googleStatus(err error) (int, string, bool) {
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return genaiErr.Code, genaiErr.Message, true
	}
	var genaiErrPtr *genai.APIError
	if errors.As(err, &genaiErrPtr) {
		return genaiErrPtr.Code, genaiErrPtr.Message, true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" && len(apiErr.Errors) > 0 {
			message = apiErr.Errors[0].Message
		}
		return apiErr.Code, message, true
	}
	return 0, "", false
}

// buildAuthConfig creates the client configuration. Only API key
// authentication is supported; credential file paths are rejected.
func buildAuthConfig(config ClientConfig) (*genai.ClientConfig, error) {
	if looksLikeFilePath(config.APIKey) {
		if _, err := os.Stat(config.APIKey); err != nil {
			return nil, fmt.Errorf("credentials file not found: %s", config.APIKey)
		}
		return nil, fmt.Errorf("service account authentication is not supported, use an API key")
	}

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		validatedURL, err := ValidateBaseURL(config.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid BaseURL: %w", err)
		}
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: validatedURL}
	}
	if config.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: ValidateTimeout(config.Timeout)}
	}
	return cc, nil
}

// looksLikeFilePath checks if a string appears to be a file path.
func looksLikeFilePath(s string) bool {
	if filepath.IsAbs(s) || strings.ContainsAny(s, `/\`) {
		return true
	}

	lower := strings.ToLower(s)
	return strings.HasSuffix(lower, ".json") ||
		strings.HasSuffix(lower, ".p12") ||
		strings.HasSuffix(lower, ".pem") ||
		strings.Contains(lower, "credentials")
}

// containsContentPolicyError checks if a Google API error is related to
// content policy violations.
func containsContentPolicyError(apiErr *googleapi.Error) bool {
	if isPolicyMessage(apiErr.Message) {
		return true
	}

	for _, e := range apiErr.Errors {
		if e.Reason == "SAFETY" || e.Reason == "BLOCKED" {
			return true
		}
	}

	return false
}

func isPolicyMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "safety") ||
		strings.Contains(lower, "policy") ||
		strings.Contains(lower, "blocked")
}
