package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func recommendationSchema() *Schema {
	return &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"message": {Type: TypeString},
			"ids":     {Type: TypeArray, Items: &Schema{Type: TypeString}},
		},
		Required: []string{"message", "ids"},
	}
}

func TestGeminiGenerateJSONSendsSchema(t *testing.T) {
	var got map[string]any
	var gotPath, gotKey, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("X-Goog-Api-Key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"message\":"},{"text":"\"hi\",\"ids\":[]}"}]}}]}`))
	}))
	defer srv.Close()

	client, err := NewGeminiClient("secret", WithGeminiBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	gen := NewGeminiGenerator(client, "models/gemini-test")
	out, err := gen.GenerateJSON(context.Background(), "system", "user", recommendationSchema())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != `{"message":"hi","ids":[]}` {
		t.Fatalf("unexpected output: %s", out)
	}
	if gotPath != "/models/gemini-test:generateContent" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotKey != "secret" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if gotQuery != "" {
		t.Fatalf("expected no query string, got %q", gotQuery)
	}
	cfg, ok := got["generationConfig"].(map[string]any)
	if !ok {
		t.Fatalf("missing generationConfig: %v", got)
	}
	if cfg["responseMimeType"] != "application/json" {
		t.Fatalf("unexpected mime type: %v", cfg["responseMimeType"])
	}
	schema, _ := cfg["responseSchema"].(map[string]any)
	if schema["type"] != "OBJECT" {
		t.Fatalf("expected upper-case schema type, got %v", schema["type"])
	}
	if _, ok := got["systemInstruction"]; !ok {
		t.Fatalf("expected system instruction")
	}
}

func TestGeminiRequiresAPIKey(t *testing.T) {
	if _, err := NewGeminiClient("  "); err == nil {
		t.Fatalf("expected error for blank api key")
	}
}

func TestGeminiAPIErrorSurfacesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
	}))
	defer srv.Close()

	client, err := NewGeminiClient("bad", WithGeminiBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.GenerateJSON(context.Background(), "", "", "hello", nil)
	if err == nil || !strings.Contains(err.Error(), "API key not valid") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestGeminiEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	client, _ := NewGeminiClient("k", WithGeminiBaseURL(srv.URL))
	if _, err := client.GenerateJSON(context.Background(), "", "", "hello", nil); err == nil {
		t.Fatalf("expected error for empty candidates")
	}
}

func TestOpenAICompatGenerateJSONStrictSchema(t *testing.T) {
	var got oaiChatRequest
	var raw map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		var body json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.Unmarshal(body, &got)
		_ = json.Unmarshal(body, &raw)
		_, _ = w.Write([]byte("{\"choices\":[{\"message\":{\"role\":\"assistant\",\"content\":\"```json\\n{\\\"message\\\":\\\"ok\\\",\\\"ids\\\":[\\\"1\\\"]}\\n```\"}}]}"))
	}))
	defer srv.Close()

	gen := NewOpenAICompatGenerator(srv.URL+"/v1/", "tok", "local-model")
	out, err := gen.GenerateJSON(context.Background(), "sys", "user", recommendationSchema())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != `{"message":"ok","ids":["1"]}` {
		t.Fatalf("expected fenced json to be extracted, got %s", out)
	}
	if auth != "Bearer tok" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
	format, _ := raw["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Fatalf("unexpected response_format: %v", format)
	}
	js, _ := format["json_schema"].(map[string]any)
	schema, _ := js["schema"].(map[string]any)
	if schema["additionalProperties"] != false {
		t.Fatalf("expected strict object schema, got %v", schema)
	}
}

func TestOpenAICompatRequiresModel(t *testing.T) {
	gen := NewOpenAICompatGenerator("http://127.0.0.1:1/v1", "", " ")
	if _, err := gen.GenerateJSON(context.Background(), "", "hi", nil); err == nil {
		t.Fatalf("expected error for missing model")
	}
}

func TestOllamaGenerateJSONPassesFormat(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"Sure! {\"message\":\"m\",\"ids\":[]}"}}`))
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(NewOllamaClient(srv.URL), "llama3")
	out, err := gen.GenerateJSON(context.Background(), "", "user", recommendationSchema())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != `{"message":"m","ids":[]}` {
		t.Fatalf("unexpected output %s", out)
	}
	format, ok := raw["format"].(map[string]any)
	if !ok || format["type"] != "object" {
		t.Fatalf("expected schema format, got %v", raw["format"])
	}
	if raw["stream"] != false {
		t.Fatalf("expected non-streaming request")
	}
}

func TestOllamaErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(NewOllamaClient(srv.URL, WithOllamaHTTPClient(srv.Client())), "missing")
	_, err := gen.GenerateJSON(context.Background(), "", "hi", nil)
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("expected model error, got %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                         `{"a":1}`,
		"```json\n{\"a\":1}\n```":         `{"a":1}`,
		"here you go: {\"a\":{\"b\":2}} ": `{"a":{"b":2}}`,
		"no json here":                    "",
	}
	for in, want := range cases {
		if got := ExtractJSON(in); got != want {
			t.Fatalf("ExtractJSON(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestProviderErrorsAreTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exhausted","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	gen := NewOpenAICompatGenerator(srv.URL, "", "m")
	_, err := gen.GenerateJSON(context.Background(), "", "hi", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T %v", err, err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Message != "quota exhausted" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if apiErr.Provider != "openai-compat" {
		t.Fatalf("unexpected provider %q", apiErr.Provider)
	}
}

func TestErrorMessageFallsBackToBody(t *testing.T) {
	if got := errorMessage([]byte("  upstream timeout\n")); got != "upstream timeout" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := (&APIError{Provider: "ollama", StatusCode: 502}).Error(); got != "ollama api error (502): Bad Gateway" {
		t.Fatalf("unexpected error text %q", got)
	}
}

func TestGeminiTransportErrorOmitsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	const key = "SUPERSECRETKEY123"
	client, err := NewGeminiClient(key, WithGeminiBaseURL(addr))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = NewGeminiGenerator(client, "").GenerateJSON(context.Background(), "", "hello", recommendationSchema())
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if strings.Contains(err.Error(), key) {
		t.Fatalf("api key leaked into error: %v", err)
	}
}
