package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter admits or rejects operation-creation requests per principal.
// The production implementation is backed by shared Redis counters; the
// in-memory implementation below serves tests and single-instance runs.
type Limiter interface {
	Allow(ctx context.Context, principalID string) (bool, error)
}

// MemoryLimiter keeps one token bucket per principal.
type MemoryLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewMemoryLimiter allows `limit` requests per `window` with a burst of
// the same size.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, principalID string) (bool, error) {
	l.mu.Lock()
	limiter, ok := l.limiters[principalID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[principalID] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow(), nil
}
