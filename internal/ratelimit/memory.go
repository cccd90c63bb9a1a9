package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowEntry struct {
	count   int64
	resetAt time.Time
}

// MemoryLimiter is a best-effort fixed-window limiter backed by a local map.
// It is per-process only: with more than one instance behind a load balancer
// each instance counts independently, so use RedisLimiter there instead.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	limit   int64
	window  time.Duration
	done    chan struct{}
	once    sync.Once

	now func() time.Time
}

func NewMemoryLimiter(limit int64, window time.Duration) *MemoryLimiter {
	l := &MemoryLimiter{
		entries: make(map[string]*windowEntry),
		limit:   limit,
		window:  window,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go l.sweep()
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &windowEntry{resetAt: now.Add(l.window)}
		l.entries[key] = e
	}

	if e.count >= l.limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: e.resetAt}, nil
	}
	e.count++
	return Result{Allowed: true, Remaining: l.limit - e.count, ResetAt: e.resetAt}, nil
}

// Close stops the background sweeper.
func (l *MemoryLimiter) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *MemoryLimiter) sweep() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			now := l.now()
			l.mu.Lock()
			for k, e := range l.entries {
				if !now.Before(e.resetAt) {
					delete(l.entries, k)
				}
			}
			l.mu.Unlock()
		}
	}
}
