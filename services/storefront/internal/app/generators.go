package app

import (
	"fmt"

	"cherrybook/pkg/ai"
	"cherrybook/pkg/recommend"
)

// Generation providers accepted by NewGeneratorFactory.
const (
	ProviderGemini       = "gemini"
	ProviderOpenAICompat = "openai-compat"
	ProviderOllama       = "ollama"
)

// NewGeneratorFactory returns a factory building the configured provider for
// a given API key. The key is looked up per call, so the factory itself is
// created once at startup.
func NewGeneratorFactory(provider, baseURL, model string) (recommend.GeneratorFactory, error) {
	switch provider {
	case "", ProviderGemini:
		return func(apiKey string) (ai.JSONGenerator, error) {
			client, err := ai.NewGeminiClient(apiKey, ai.WithGeminiBaseURL(baseURL))
			if err != nil {
				return nil, err
			}
			return ai.NewGeminiGenerator(client, model), nil
		}, nil
	case ProviderOpenAICompat:
		return func(apiKey string) (ai.JSONGenerator, error) {
			return ai.NewOpenAICompatGenerator(baseURL, apiKey, model), nil
		}, nil
	case ProviderOllama:
		client := ai.NewOllamaClient(baseURL)
		return func(string) (ai.JSONGenerator, error) {
			return ai.NewOllamaGenerator(client, model), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", provider)
	}
}
