package redisrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RateLimitRepository keeps fixed-window admission counters per
// principal. Counters live in Redis so every panel instance shares one
// view of the window.
type RateLimitRepository struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewRateLimitRepository(client *redis.Client, limit int, window time.Duration) *RateLimitRepository {
	return &RateLimitRepository{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ratelimit:",
	}
}

// Allow counts the request against the caller's current window and
// reports whether it is admitted.
func (r *RateLimitRepository) Allow(ctx context.Context, principalID string) (bool, error) {
	key := r.prefix + principalID

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	// First hit opens the window
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	return count <= int64(r.limit), nil
}
