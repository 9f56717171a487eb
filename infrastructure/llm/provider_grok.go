package llm

const (
	// GrokDefaultModel is used when the configuration names no model.
	GrokDefaultModel = "grok-4-1-fast"

	// GrokDefaultBaseURL is xAI's chat completions endpoint.
	GrokDefaultBaseURL = "https://api.x.ai/v1"
)

func init() {
	RegisterProviderFactory("grok", newGrokProvider)
}

// newGrokProvider creates a provider for xAI's Grok models, which are served
// over the OpenAI chat completions protocol.
func newGrokProvider(config ClientConfig) (CoreLLM, error) {
	return newOpenAICompatibleProvider("grok", GrokDefaultModel, GrokDefaultBaseURL, config)
}
