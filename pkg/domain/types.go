package domain

import "strings"

// Book is a catalog entry. Books are seeded once and never mutated.
type Book struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Price       float64  `json:"price"`
	Rating      float64  `json:"rating"`
	CoverURL    string   `json:"coverUrl"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Category returns the primary category label (the first tag).
func (b Book) Category() string {
	if len(b.Tags) == 0 {
		return ""
	}
	return strings.TrimSpace(b.Tags[0])
}

// Clone returns a copy that shares no slices with b.
func (b Book) Clone() Book {
	out := b
	if b.Tags != nil {
		out.Tags = append([]string(nil), b.Tags...)
	}
	return out
}

// CartLine is a book plus the purchased quantity. Quantity is always >= 1.
type CartLine struct {
	Book
	Quantity int `json:"quantity"`
}

// LineTotal returns price * quantity for the line.
func (l CartLine) LineTotal() float64 {
	return l.Price * float64(l.Quantity)
}

type Recommendation struct {
	BookID string `json:"bookId"`
	Reason string `json:"reason"`
}

// RecommendationResult is the outcome of one recommendation round trip.
type RecommendationResult struct {
	Recommendations []Recommendation `json:"recommendations"`
	Message         string           `json:"message"`
}

// SearchState is the per-visitor search cell.
// Results is nil when no search is active (show everything) and an empty,
// non-nil slice when the last search matched nothing.
type SearchState struct {
	Query       string   `json:"query"`
	IsSearching bool     `json:"isSearching"`
	Results     []string `json:"results"`
	AIMessage   *string  `json:"aiMessage"`
}

// Clone returns a deep copy of the state.
func (s SearchState) Clone() SearchState {
	out := s
	if s.Results != nil {
		out.Results = append(make([]string, 0, len(s.Results)), s.Results...)
	}
	if s.AIMessage != nil {
		msg := *s.AIMessage
		out.AIMessage = &msg
	}
	return out
}
