package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cherrybook/internal/util"
)

// DefaultIdleTTL is how long an untouched session survives.
const DefaultIdleTTL = 2 * time.Hour

type entry struct {
	session  *Session
	lastSeen time.Time
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithSizeObserver is called with the live session count after every
// create and sweep.
func WithSizeObserver(fn func(active int)) Option {
	return func(r *Registry) { r.onSize = fn }
}

// Registry maps opaque session ids to sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	idleTTL  time.Duration
	now      func() time.Time
	onSize   func(int)
}

// NewRegistry returns an empty registry. idleTTL <= 0 uses DefaultIdleTTL.
func NewRegistry(idleTTL time.Duration, opts ...Option) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	r := &Registry{
		sessions: make(map[string]*entry),
		idleTTL:  idleTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Get returns the live session for id and marks it as seen.
func (r *Registry) Get(id string) (*Session, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false
	}
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	now := r.now()
	if now.Sub(e.lastSeen) > r.idleTTL {
		delete(r.sessions, id)
		n := len(r.sessions)
		r.mu.Unlock()
		r.reportSize(n)
		return nil, false
	}
	e.lastSeen = now
	r.mu.Unlock()
	return e.session, true
}

// Create starts a new session with a fresh id.
func (r *Registry) Create() *Session {
	s := newSession(util.NewID())
	r.mu.Lock()
	r.sessions[s.ID] = &entry{session: s, lastSeen: r.now()}
	n := len(r.sessions)
	r.mu.Unlock()
	r.reportSize(n)
	return s
}

// Resolve returns the session for id, creating a new one (with a new id)
// when id is blank, unknown or expired. created reports the latter case.
func (r *Registry) Resolve(id string) (s *Session, created bool) {
	if s, ok := r.Get(id); ok {
		return s, false
	}
	return r.Create(), true
}

// Len returns the number of stored sessions, including expired ones not yet
// swept.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	now := r.now()
	removed := 0
	for id, e := range r.sessions {
		if now.Sub(e.lastSeen) > r.idleTTL {
			delete(r.sessions, id)
			removed++
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()
	r.reportSize(n)
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = r.idleTTL / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				slog.Debug("session.sweep", "removed", n, "active", r.Len())
			}
		}
	}
}

func (r *Registry) reportSize(n int) {
	if r.onSize != nil {
		r.onSize(n)
	}
}
