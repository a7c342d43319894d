package search

import (
	"sort"

	"cherrybook/pkg/domain"
)

// Project derives the displayed book sequence from the catalog.
//
// A nil rankedIDs means no active search: the catalog is returned in its own
// order. Otherwise only books named in rankedIDs are kept, ordered by their
// first position there. Ids missing from the catalog are dropped. An empty,
// non-nil rankedIDs yields an empty, non-nil result.
func Project(books []domain.Book, rankedIDs []string) []domain.Book {
	if rankedIDs == nil {
		out := make([]domain.Book, len(books))
		copy(out, books)
		return out
	}
	rank := make(map[string]int, len(rankedIDs))
	for i, id := range rankedIDs {
		if _, seen := rank[id]; !seen {
			rank[id] = i
		}
	}
	out := make([]domain.Book, 0, len(rankedIDs))
	for _, b := range books {
		if _, ok := rank[b.ID]; ok {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rank[out[i].ID] < rank[out[j].ID]
	})
	return out
}
