package search

import (
	"testing"

	"cherrybook/pkg/domain"
)

func ids(books []domain.Book) []string {
	out := make([]string, len(books))
	for i, b := range books {
		out[i] = b.ID
	}
	return out
}

func sameIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

var abc = []domain.Book{{ID: "A"}, {ID: "B"}, {ID: "C"}}

func TestProjectNilReturnsCatalogInOrder(t *testing.T) {
	got := Project(abc, nil)
	if !sameIDs(ids(got), []string{"A", "B", "C"}) {
		t.Fatalf("Project(nil) = %v", ids(got))
	}
}

func TestProjectOrdersByRank(t *testing.T) {
	tests := []struct {
		name   string
		ranked []string
		want   []string
	}{
		{name: "ai order wins over catalog order", ranked: []string{"C", "A"}, want: []string{"C", "A"}},
		{name: "unknown ids are dropped", ranked: []string{"X", "B", "Y", "A"}, want: []string{"B", "A"}},
		{name: "duplicates use first position", ranked: []string{"B", "C", "B"}, want: []string{"B", "C"}},
		{name: "all unknown", ranked: []string{"X"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Project(abc, tt.ranked)
			if !sameIDs(ids(got), tt.want) {
				t.Fatalf("Project(%v) = %v, want %v", tt.ranked, ids(got), tt.want)
			}
		})
	}
}

func TestProjectEmptyIsNotShowAll(t *testing.T) {
	got := Project(abc, []string{})
	if got == nil {
		t.Fatalf("expected non-nil empty result")
	}
	if len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
}

func TestProjectDoesNotMutateInput(t *testing.T) {
	books := []domain.Book{{ID: "A"}, {ID: "B"}, {ID: "C"}}
	_ = Project(books, []string{"C", "B", "A"})
	if !sameIDs(ids(books), []string{"A", "B", "C"}) {
		t.Fatalf("input reordered: %v", ids(books))
	}
}
