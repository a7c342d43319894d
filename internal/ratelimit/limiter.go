// Package ratelimit throttles requests per client key.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// RetryAfter is a hint for rejected callers; zero when allowed.
	RetryAfter time.Duration
}

// Limiter is implemented by the Redis fixed-window limiter and the
// in-process token bucket limiter.
type Limiter interface {
	Allow(ctx context.Context, key string) Decision
	Close() error
}

func normalizeKey(key string) string {
	if key == "" {
		return "unknown"
	}
	return key
}
