package factory

import (
	"fmt"
	"net/http"

	"research-flowstream/pkg/llm"
	"research-flowstream/pkg/llm/ollama"
	"research-flowstream/pkg/llm/openai"
)

// NewLLMProvider builds the completion backend named by providerType.
// "groq", "openai" and "huggingface" share the OpenAI-compatible client.
func NewLLMProvider(providerType, modelName, baseURL, apiKey string, client *http.Client) (llm.LLMProvider, error) {
	switch providerType {
	case "groq", "openai", "huggingface":
		if apiKey == "" {
			return nil, fmt.Errorf("%s provider requires an api key", providerType)
		}
		return openai.NewProvider(apiKey, baseURL, modelName, client), nil
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, modelName, client), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
