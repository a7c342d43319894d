// Package recommend asks a generative model to pick catalog books for a
// free-text shopper query.
package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cherrybook/internal/util"
	"cherrybook/pkg/ai"
	"cherrybook/pkg/domain"
)

const (
	// DefaultMaxResults bounds the number of recommendations per query.
	DefaultMaxResults = 4

	UnavailableMessage = "AI features are currently unavailable."
	FallbackMessage    = "I'm having a little trouble reading the shelves right now. Please browse our collection below!"
)

// Outcome labels passed to Observer.
const (
	OutcomeOK          = "ok"
	OutcomeUnavailable = "unavailable"
	OutcomeFailed      = "failed"
)

// CredentialSource reports the current API key. It is called before every
// request, so a key provided after startup takes effect immediately.
type CredentialSource func() (apiKey string, ok bool)

// GeneratorFactory builds a generator for the given key.
type GeneratorFactory func(apiKey string) (ai.JSONGenerator, error)

// Observer receives one call per Recommend invocation.
type Observer interface {
	ObserveRecommendation(outcome string, elapsed time.Duration)
}

// Config configures a Gateway.
type Config struct {
	Credentials  CredentialSource
	NewGenerator GeneratorFactory
	MaxResults   int
	Observer     Observer
}

// Gateway turns a query plus catalog into a RecommendationResult. It never
// returns an error: every failure becomes a fixed fallback message.
type Gateway struct {
	credentials  CredentialSource
	newGenerator GeneratorFactory
	maxResults   int
	observer     Observer
}

// New builds a Gateway. A nil credential source means "never available".
func New(cfg Config) *Gateway {
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	creds := cfg.Credentials
	if creds == nil {
		creds = func() (string, bool) { return "", false }
	}
	return &Gateway{
		credentials:  creds,
		newGenerator: cfg.NewGenerator,
		maxResults:   maxResults,
		observer:     cfg.Observer,
	}
}

// Recommend performs at most one model call.
func (g *Gateway) Recommend(ctx context.Context, query string, books []domain.Book) domain.RecommendationResult {
	start := time.Now()
	logger := util.LoggerFromContext(ctx)

	apiKey, ok := g.credentials()
	if !ok || strings.TrimSpace(apiKey) == "" || g.newGenerator == nil {
		logger.Warn("recommend.unavailable", "reason", "no api key configured")
		g.observe(OutcomeUnavailable, start)
		return emptyResult(UnavailableMessage)
	}

	result, err := g.generate(ctx, apiKey, query, books)
	if err != nil {
		attrs := []any{"err", err, "duration_ms", time.Since(start).Milliseconds()}
		var apiErr *ai.APIError
		if errors.As(err, &apiErr) {
			attrs = append(attrs, "provider", apiErr.Provider, "upstream_status", apiErr.StatusCode)
		}
		logger.Error("recommend.failed", attrs...)
		g.observe(OutcomeFailed, start)
		return emptyResult(FallbackMessage)
	}
	if len(result.Recommendations) > g.maxResults {
		logger.Debug("recommend.truncated", "returned", len(result.Recommendations), "max", g.maxResults)
		result.Recommendations = result.Recommendations[:g.maxResults]
	}
	logger.Info("recommend.ok", "count", len(result.Recommendations), "duration_ms", time.Since(start).Milliseconds())
	g.observe(OutcomeOK, start)
	return result
}

func (g *Gateway) generate(ctx context.Context, apiKey, query string, books []domain.Book) (domain.RecommendationResult, error) {
	gen, err := g.newGenerator(apiKey)
	if err != nil {
		return domain.RecommendationResult{}, fmt.Errorf("build generator: %w", err)
	}
	prompt, err := buildPrompt(query, books, g.maxResults)
	if err != nil {
		return domain.RecommendationResult{}, err
	}
	text, err := gen.GenerateJSON(ctx, systemPrompt, prompt, responseSchema())
	if err != nil {
		return domain.RecommendationResult{}, fmt.Errorf("generate: %w", err)
	}
	return parseResult(text)
}

func (g *Gateway) observe(outcome string, start time.Time) {
	if g.observer != nil {
		g.observer.ObserveRecommendation(outcome, time.Since(start))
	}
}

var errEmptyResponse = errors.New("empty model response")

type wireRecommendation struct {
	BookID *string `json:"bookId"`
	Reason *string `json:"reason"`
}

type wireResult struct {
	Recommendations *[]wireRecommendation `json:"recommendations"`
	Message         *string               `json:"message"`
}

// parseResult decodes and validates a model reply against the response schema.
func parseResult(text string) (domain.RecommendationResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.RecommendationResult{}, errEmptyResponse
	}
	var wire wireResult
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return domain.RecommendationResult{}, fmt.Errorf("decode response: %w", err)
	}
	if wire.Message == nil {
		return domain.RecommendationResult{}, errors.New("response missing message")
	}
	if wire.Recommendations == nil {
		return domain.RecommendationResult{}, errors.New("response missing recommendations")
	}
	recs := make([]domain.Recommendation, 0, len(*wire.Recommendations))
	for i, r := range *wire.Recommendations {
		if r.BookID == nil || r.Reason == nil {
			return domain.RecommendationResult{}, fmt.Errorf("recommendation %d missing bookId or reason", i)
		}
		recs = append(recs, domain.Recommendation{BookID: strings.TrimSpace(*r.BookID), Reason: plainText(*r.Reason)})
	}
	return domain.RecommendationResult{Recommendations: recs, Message: plainText(*wire.Message)}, nil
}

func emptyResult(message string) domain.RecommendationResult {
	return domain.RecommendationResult{Recommendations: []domain.Recommendation{}, Message: message}
}

// RankedIDs returns the recommended book ids in order. The result is never
// nil, so it always reads as an active search when handed to search.Project.
func RankedIDs(result domain.RecommendationResult) []string {
	ids := make([]string, 0, len(result.Recommendations))
	for _, r := range result.Recommendations {
		ids = append(ids, r.BookID)
	}
	return ids
}
