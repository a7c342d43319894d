package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"cherrybook/pkg/domain"
)

// KeywordIndex is an in-memory full-text index over the catalog.
// It yields ranked ids that feed Project, like the AI recommendations do.
//
// Thread safety: all methods are safe for concurrent use.
type KeywordIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	size  int
}

// NewKeywordIndex indexes books into a fresh in-memory index.
func NewKeywordIndex(books []domain.Book) (*KeywordIndex, error) {
	index, err := bleve.NewMemOnly(buildKeywordMapping())
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	batch := index.NewBatch()
	for _, b := range books {
		if err := batch.Index(b.ID, keywordDocument(b)); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("index book %s: %w", b.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("commit keyword batch: %w", err)
	}
	return &KeywordIndex{index: index, size: len(books)}, nil
}

// Search returns matching book ids, best match first.
// A blank query returns nil, meaning "no filter".
func (k *KeywordIndex) Search(ctx context.Context, q string) ([]string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	k.mu.RLock()
	defer k.mu.RUnlock()

	limit := k.size
	if limit <= 0 {
		limit = 1
	}
	req := bleve.NewSearchRequestOptions(buildKeywordQuery(q), limit, 0, false)
	req.SortBy([]string{"-_score", "_id"})
	res, err := k.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute keyword search: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Close releases the index.
func (k *KeywordIndex) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.index.Close()
}

func keywordDocument(b domain.Book) map[string]any {
	return map[string]any{
		"title":       b.Title,
		"author":      b.Author,
		"description": b.Description,
		"tags":        strings.Join(b.Tags, " "),
		"category":    strings.ToLower(b.Category()),
	}
}

func buildKeywordMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	doc := bleve.NewDocumentMapping()
	for _, field := range []string{"title", "author", "description", "tags"} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = en.AnalyzerName
		fm.Store = false
		doc.AddFieldMappingsAt(field, fm)
	}
	category := bleve.NewTextFieldMapping()
	category.Analyzer = keyword.Name
	category.Store = false
	doc.AddFieldMappingsAt("category", category)

	indexMapping.DefaultMapping = doc
	return indexMapping
}

func buildKeywordQuery(q string) query.Query {
	match := func(field string, boost float64) query.Query {
		m := bleve.NewMatchQuery(q)
		m.SetField(field)
		m.SetBoost(boost)
		return m
	}
	queries := []query.Query{
		match("title", 3.0),
		match("author", 2.0),
		match("tags", 1.5),
		match("description", 1.0),
	}

	exact := bleve.NewTermQuery(strings.ToLower(q))
	exact.SetField("category")
	exact.SetBoost(2.0)
	queries = append(queries, exact)

	fuzzy := bleve.NewFuzzyQuery(strings.ToLower(q))
	fuzzy.SetField("title")
	fuzzy.SetFuzziness(1)
	fuzzy.SetBoost(0.8)
	queries = append(queries, fuzzy)

	return bleve.NewDisjunctionQuery(queries...)
}
