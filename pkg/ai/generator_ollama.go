package ai

import "context"

// OllamaGenerator binds an OllamaClient to one model.
type OllamaGenerator struct {
	client *OllamaClient
	model  string
}

// NewOllamaGenerator builds an Ollama-based Generator.
func NewOllamaGenerator(client *OllamaClient, model string) *OllamaGenerator {
	return &OllamaGenerator{client: client, model: model}
}

// GenerateJSON implements JSONGenerator by passing schema as the chat
// format. Local models sometimes wrap the object in prose, so the reply is
// cut down to the JSON object.
func (g *OllamaGenerator) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, schema *Schema) (string, error) {
	var format any = "json"
	if schema != nil {
		format = schema
	}
	text, err := g.client.Chat(ctx, g.model, systemPrompt, userPrompt, format)
	if err != nil {
		return "", err
	}
	return extractOrRaw(text), nil
}
