package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cherrybook/internal/util"
	"cherrybook/pkg/ai"
	"cherrybook/pkg/domain"
	"cherrybook/pkg/search"
)

type fakeGenerator struct {
	reply string
	err   error

	calls      int
	userPrompt string
	schema     *ai.Schema
}

func (f *fakeGenerator) GenerateJSON(_ context.Context, _ string, userPrompt string, schema *ai.Schema) (string, error) {
	f.calls++
	f.userPrompt = userPrompt
	f.schema = schema
	return f.reply, f.err
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveRecommendation(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func withKey(key string) CredentialSource {
	return func() (string, bool) { return key, key != "" }
}

func factoryFor(gen ai.JSONGenerator, builds *int) GeneratorFactory {
	return func(string) (ai.JSONGenerator, error) {
		*builds++
		return gen, nil
	}
}

func testBooks() []domain.Book {
	return []domain.Book{
		{ID: "A", Title: "Alpha", Author: "Ann", Price: 10, Rating: 4.1, CoverURL: "https://covers/a", Description: "first", Tags: []string{"Sci-Fi", "Space"}},
		{ID: "B", Title: "Beta", Author: "Bob", Price: 12, Rating: 3.9, CoverURL: "https://covers/b", Description: "second", Tags: []string{"Romance"}},
		{ID: "C", Title: "Gamma", Author: "Cy", Price: 8, Rating: 4.7, CoverURL: "https://covers/c", Description: "third", Tags: nil},
	}
}

func TestRecommendWithoutCredentialMakesNoCalls(t *testing.T) {
	gen := &fakeGenerator{reply: `{"recommendations":[],"message":"x"}`}
	builds := 0
	obs := &recordingObserver{}
	g := New(Config{Credentials: withKey(""), NewGenerator: factoryFor(gen, &builds), Observer: obs})

	got := g.Recommend(context.Background(), "space opera", testBooks())

	if builds != 0 || gen.calls != 0 {
		t.Fatalf("expected no generator activity, builds=%d calls=%d", builds, gen.calls)
	}
	if got.Message != UnavailableMessage {
		t.Fatalf("unexpected message %q", got.Message)
	}
	if got.Recommendations == nil || len(got.Recommendations) != 0 {
		t.Fatalf("expected empty non-nil recommendations, got %#v", got.Recommendations)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != OutcomeUnavailable {
		t.Fatalf("unexpected outcomes %v", obs.outcomes)
	}
}

func TestRecommendCredentialCheckedPerCall(t *testing.T) {
	key := ""
	gen := &fakeGenerator{reply: `{"recommendations":[{"bookId":"A","reason":"r"}],"message":"m"}`}
	builds := 0
	g := New(Config{
		Credentials:  func() (string, bool) { return key, key != "" },
		NewGenerator: factoryFor(gen, &builds),
	})

	if got := g.Recommend(context.Background(), "q", testBooks()); got.Message != UnavailableMessage {
		t.Fatalf("expected unavailable before key is set, got %q", got.Message)
	}
	key = "late-key"
	if got := g.Recommend(context.Background(), "q", testBooks()); got.Message != "m" {
		t.Fatalf("expected key to be picked up, got %q", got.Message)
	}
	if builds != 1 {
		t.Fatalf("expected one generator build, got %d", builds)
	}
}

func TestRecommendFailuresFallBack(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		err   error
	}{
		{name: "transport error", err: errors.New("connection refused")},
		{name: "empty body", reply: "  "},
		{name: "not json", reply: "I think you'd like Dune"},
		{name: "missing message", reply: `{"recommendations":[]}`},
		{name: "missing recommendations", reply: `{"message":"hi"}`},
		{name: "null recommendations", reply: `{"recommendations":null,"message":"hi"}`},
		{name: "item missing reason", reply: `{"recommendations":[{"bookId":"A"}],"message":"hi"}`},
		{name: "item missing bookId", reply: `{"recommendations":[{"reason":"r"}],"message":"hi"}`},
		{name: "wrong types", reply: `{"recommendations":"A","message":"hi"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := &fakeGenerator{reply: tc.reply, err: tc.err}
			builds := 0
			obs := &recordingObserver{}
			g := New(Config{Credentials: withKey("k"), NewGenerator: factoryFor(gen, &builds), Observer: obs})

			got := g.Recommend(context.Background(), "anything", testBooks())
			if got.Message != FallbackMessage {
				t.Fatalf("expected fallback message, got %q", got.Message)
			}
			if got.Recommendations == nil || len(got.Recommendations) != 0 {
				t.Fatalf("expected empty recommendations, got %#v", got.Recommendations)
			}
			if gen.calls != 1 {
				t.Fatalf("expected exactly one call, got %d", gen.calls)
			}
			if len(obs.outcomes) != 1 || obs.outcomes[0] != OutcomeFailed {
				t.Fatalf("unexpected outcomes %v", obs.outcomes)
			}
		})
	}
}

func TestRecommendFactoryErrorFallsBack(t *testing.T) {
	g := New(Config{
		Credentials: withKey("k"),
		NewGenerator: func(string) (ai.JSONGenerator, error) {
			return nil, errors.New("bad provider")
		},
	})
	if got := g.Recommend(context.Background(), "q", testBooks()); got.Message != FallbackMessage {
		t.Fatalf("expected fallback, got %q", got.Message)
	}
}

func TestRecommendPreservesOrderAndDuplicates(t *testing.T) {
	gen := &fakeGenerator{reply: `{"recommendations":[
		{"bookId":"C","reason":"c"},
		{"bookId":"A","reason":"a"},
		{"bookId":"C","reason":"again"},
		{"bookId":"zzz","reason":"not in catalog"}
	],"message":"Enjoy!"}`}
	builds := 0
	g := New(Config{Credentials: withKey("k"), NewGenerator: factoryFor(gen, &builds)})

	got := g.Recommend(context.Background(), "q", testBooks())
	ids := RankedIDs(got)
	want := []string{"C", "A", "C", "zzz"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	if got.Recommendations[2].Reason != "again" || got.Message != "Enjoy!" {
		t.Fatalf("unexpected result %#v", got)
	}
}

func TestRecommendTruncatesToMaxResults(t *testing.T) {
	gen := &fakeGenerator{reply: `{"recommendations":[
		{"bookId":"1","reason":"r"},{"bookId":"2","reason":"r"},{"bookId":"3","reason":"r"}
	],"message":"m"}`}
	builds := 0
	g := New(Config{Credentials: withKey("k"), NewGenerator: factoryFor(gen, &builds), MaxResults: 2})

	got := g.Recommend(context.Background(), "q", testBooks())
	if len(got.Recommendations) != 2 || got.Recommendations[1].BookID != "2" {
		t.Fatalf("expected first two recommendations, got %#v", got.Recommendations)
	}
	if !strings.Contains(gen.userPrompt, "Select up to 2 books") {
		t.Fatalf("prompt should carry the bound: %s", gen.userPrompt)
	}
}

func TestRecommendSendsOnlyProjectedCatalog(t *testing.T) {
	gen := &fakeGenerator{reply: `{"recommendations":[],"message":"none"}`}
	builds := 0
	g := New(Config{Credentials: withKey("k"), NewGenerator: factoryFor(gen, &builds)})

	got := g.Recommend(context.Background(), "cozy \"rainy\" day", testBooks())
	if got.Message != "none" || len(got.Recommendations) != 0 {
		t.Fatalf("unexpected result %#v", got)
	}
	for _, leaked := range []string{"https://covers/a", "4.7", "price", "rating", "coverUrl"} {
		if strings.Contains(gen.userPrompt, leaked) {
			t.Fatalf("prompt leaked %q: %s", leaked, gen.userPrompt)
		}
	}
	if !strings.Contains(gen.userPrompt, `"tags":"Sci-Fi, Space"`) {
		t.Fatalf("expected comma-joined tags in prompt: %s", gen.userPrompt)
	}
	if !strings.Contains(gen.userPrompt, `User Query: "cozy \"rainy\" day"`) {
		t.Fatalf("expected quoted query in prompt: %s", gen.userPrompt)
	}

	raw, err := json.Marshal(gen.schema)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	if !strings.Contains(string(raw), `"required":["recommendations","message"]`) {
		t.Fatalf("unexpected schema: %s", raw)
	}
}

func TestRankedIDsNeverNil(t *testing.T) {
	ids := RankedIDs(domain.RecommendationResult{})
	if ids == nil || len(ids) != 0 {
		t.Fatalf("expected empty non-nil ids, got %#v", ids)
	}
}

func TestRecommendationsDriveProjection(t *testing.T) {
	gen := &fakeGenerator{reply: `{"recommendations":[{"bookId":"C","reason":"c"},{"bookId":"A","reason":"a"}],"message":"m"}`}
	builds := 0
	g := New(Config{Credentials: withKey("k"), NewGenerator: factoryFor(gen, &builds)})

	books := testBooks()
	shown := search.Project(books, RankedIDs(g.Recommend(context.Background(), "q", books)))
	if len(shown) != 2 || shown[0].ID != "C" || shown[1].ID != "A" {
		t.Fatalf("expected [C A], got %v", shown)
	}
}

func TestRecommendStripsMarkupFromModelText(t *testing.T) {
	gen := &fakeGenerator{reply: `{"recommendations":[{"bookId":" A ","reason":"<em>Gorgeous</em> prose"}],"message":"<script>x()</script>Happy reading!"}`}
	builds := 0
	g := New(Config{Credentials: withKey("k"), NewGenerator: factoryFor(gen, &builds)})

	got := g.Recommend(context.Background(), "q", testBooks())
	if got.Message != "Happy reading!" {
		t.Fatalf("message = %q", got.Message)
	}
	if got.Recommendations[0].BookID != "A" || got.Recommendations[0].Reason != "Gorgeous prose" {
		t.Fatalf("unexpected recommendation %+v", got.Recommendations[0])
	}
}

func TestRecommendFailureLogOmitsCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	var buf bytes.Buffer
	prev := slog.Default()
	logger := util.InitLoggerTo(&buf, "debug")
	defer slog.SetDefault(prev)

	const key = "SUPERSECRETKEY123"
	g := New(Config{
		Credentials: withKey(key),
		NewGenerator: func(apiKey string) (ai.JSONGenerator, error) {
			client, err := ai.NewGeminiClient(apiKey, ai.WithGeminiBaseURL(addr))
			if err != nil {
				return nil, err
			}
			return ai.NewGeminiGenerator(client, ""), nil
		},
	})
	ctx := util.ContextWithLogger(context.Background(), logger)
	if got := g.Recommend(ctx, "space", testBooks()); got.Message != FallbackMessage {
		t.Fatalf("expected fallback, got %+v", got)
	}
	out := buf.String()
	if !strings.Contains(out, "recommend.failed") {
		t.Fatalf("expected failure record, got %s", out)
	}
	if strings.Contains(out, key) {
		t.Fatalf("credential written to logs: %s", out)
	}
}
