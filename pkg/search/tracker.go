package search

import (
	"errors"
	"strings"
	"sync"

	"cherrybook/pkg/domain"
)

// ErrSearchInFlight is returned when the same query is submitted again
// before its first submission resolved.
var ErrSearchInFlight = errors.New("search already in progress")

// Token identifies one issued search. Only the latest token may resolve.
type Token uint64

// Tracker owns one visitor's SearchState.
//
// Every Begin issues a new token; a response is applied only if its token is
// still the latest, so a slow earlier search can never overwrite a newer one.
type Tracker struct {
	mu      sync.Mutex
	state   domain.SearchState
	latest  Token
	pending bool
}

// NewTracker returns a tracker in the "no search yet" state.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Begin marks a search for query as in flight and returns its token.
func (t *Tracker) Begin(query string) (Token, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending && strings.EqualFold(strings.TrimSpace(t.state.Query), strings.TrimSpace(query)) {
		return 0, ErrSearchInFlight
	}
	t.latest++
	t.pending = true
	t.state.Query = query
	t.state.IsSearching = true
	return t.latest, nil
}

// Resolve applies a search outcome. It reports false and leaves the state
// untouched when token has been superseded by a later Begin or a Clear.
func (t *Tracker) Resolve(token Token, rankedIDs []string, message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.pending || token != t.latest {
		return false
	}
	if rankedIDs == nil {
		rankedIDs = []string{}
	}
	msg := message
	t.state = domain.SearchState{
		Query:       t.state.Query,
		IsSearching: false,
		Results:     append([]string{}, rankedIDs...),
		AIMessage:   &msg,
	}
	t.pending = false
	return true
}

// Clear returns to the "no active search" state. In-flight searches are
// invalidated and their responses will be discarded.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest++
	t.pending = false
	t.state = domain.SearchState{}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() domain.SearchState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Clone()
}
