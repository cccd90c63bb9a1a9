// Package ratelimit defines the rate-limiting port used by the HTTP layer
// and two implementations: an in-memory fixed-window counter suitable only
// for a single instance, and a Redis-backed counter for horizontally scaled
// deployments.
package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of one limiter check.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// Limiter decides whether one more request keyed by id may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}
