package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://127.0.0.1:11434"

// OllamaClient calls a local Ollama server.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// OllamaOption customises an OllamaClient.
type OllamaOption func(*OllamaClient)

// WithOllamaHTTPClient overrides the HTTP client.
func WithOllamaHTTPClient(hc *http.Client) OllamaOption {
	return func(c *OllamaClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewOllamaClient constructs a client for baseURL, defaulting to the
// local daemon address.
func NewOllamaClient(baseURL string, opts ...OllamaOption) *OllamaClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	c := &OllamaClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Chat runs one non-streaming /api/chat exchange. format is nil for free
// text, "json" for any JSON object, or a *Schema to constrain the reply.
func (c *OllamaClient) Chat(ctx context.Context, model, systemPrompt, userPrompt string, format any) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("ollama generation model required")
	}
	messages := make([]ollamaChatMessage, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: userPrompt})

	var resp ollamaChatResponse
	req := ollamaChatRequest{Model: model, Messages: messages, Stream: false, Format: format}
	if err := postJSON(ctx, c.httpClient, "ollama", c.baseURL+"/api/chat", nil, req, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return "", errors.New("empty response from ollama")
	}
	return resp.Message.Content, nil
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Format   any                 `json:"format,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}
