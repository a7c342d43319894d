// Package session keeps per-visitor storefront state in memory.
package session

import (
	"sync"

	"cherrybook/pkg/cart"
	"cherrybook/pkg/search"
)

// Session is one visitor's cart, cart visibility and search state.
// Cart mutations are serialised by the session lock; the search tracker
// has its own lock so a slow recommendation never blocks the cart.
type Session struct {
	ID string

	mu       sync.Mutex
	ledger   cart.Ledger
	cartOpen bool

	tracker *search.Tracker
}

func newSession(id string) *Session {
	return &Session{
		ID:      id,
		ledger:  cart.Ledger{},
		tracker: search.NewTracker(),
	}
}

// CartView is a snapshot of the cart with derived totals.
type CartView struct {
	Lines     cart.Ledger `json:"items"`
	Open      bool        `json:"open"`
	Subtotal  float64     `json:"subtotal"`
	ItemCount int         `json:"itemCount"`
}

// Cart returns the current cart snapshot.
func (s *Session) Cart() CartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// UpdateCart applies fn atomically. fn receives the current ledger and
// visibility and returns their replacements. The returned views are taken
// before and after the update.
func (s *Session) UpdateCart(fn func(l cart.Ledger, open bool) (cart.Ledger, bool)) (before, after CartView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before = s.viewLocked()
	l, open := fn(s.ledger, s.cartOpen)
	if l == nil {
		l = cart.Ledger{}
	}
	s.ledger, s.cartOpen = l, open
	return before, s.viewLocked()
}

// Search returns the session's search tracker.
func (s *Session) Search() *search.Tracker {
	return s.tracker
}

func (s *Session) viewLocked() CartView {
	return CartView{
		Lines:     cart.Copy(s.ledger),
		Open:      s.cartOpen,
		Subtotal:  cart.Subtotal(s.ledger),
		ItemCount: cart.ItemCount(s.ledger),
	}
}
