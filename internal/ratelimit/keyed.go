package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter is an in-process token bucket per key, used when no Redis
// is configured. Buckets untouched for idleTTL are dropped by a background
// cleanup loop until Close is called.
type KeyedLimiter struct {
	mu      sync.Mutex
	buckets map[string]*keyedEntry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// NewKeyedLimiter allows limit requests per window with a burst of limit.
func NewKeyedLimiter(limit int, window time.Duration) *KeyedLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	k := &KeyedLimiter{
		buckets: make(map[string]*keyedEntry),
		limit:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		idleTTL: 2 * window,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go k.cleanup(window)
	return k
}

// Allow takes one token from key's bucket.
func (k *KeyedLimiter) Allow(_ context.Context, key string) Decision {
	now := k.now()
	r := k.bucket(normalizeKey(key), now).ReserveN(now, 1)
	if !r.OK() {
		return Decision{RetryAfter: time.Second}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{RetryAfter: delay}
	}
	return Decision{Allowed: true}
}

// Wait blocks until key has a token or ctx ends.
func (k *KeyedLimiter) Wait(ctx context.Context, key string) error {
	return k.bucket(normalizeKey(key), k.now()).Wait(ctx)
}

func (k *KeyedLimiter) bucket(key string, now time.Time) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()
	e, ok := k.buckets[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.buckets[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

func (k *KeyedLimiter) evictIdle() {
	cutoff := k.now().Add(-k.idleTTL)
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, e := range k.buckets {
		if e.lastSeen.Before(cutoff) {
			delete(k.buckets, key)
		}
	}
}

func (k *KeyedLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-k.done:
			return
		case <-ticker.C:
			k.evictIdle()
		}
	}
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (k *KeyedLimiter) Close() error {
	k.stopOnce.Do(func() { close(k.done) })
	return nil
}
