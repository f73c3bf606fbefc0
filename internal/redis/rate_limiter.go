package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// Quota is the outcome of one rate limiter check.
type Quota struct {
	Allowed   bool
	Limit     int
	Remaining int
}

// RateLimiter counts events per key in a sliding window kept in a Redis
// sorted set.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimiter allows at most limit events per window for each key.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

func (r *RateLimiter) Limit() int { return r.limit }

// Allow records an event for key and reports whether it fits the window.
// Rejected events are still recorded, so a client that keeps hammering stays
// limited.
func (r *RateLimiter) Allow(ctx context.Context, key string) (Quota, error) {
	now := time.Now()
	windowStart := now.Add(-r.window).UnixNano()
	rkey := "ratelimit:" + key

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "0", strconv.FormatInt(windowStart, 10))
	// The ulid member keeps two events in the same nanosecond distinct.
	pipe.ZAdd(ctx, rkey, redis.Z{Score: float64(now.UnixNano()), Member: ulid.Make().String()})
	count := pipe.ZCard(ctx, rkey)
	pipe.Expire(ctx, rkey, r.window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return Quota{}, fmt.Errorf("rate limiter pipeline for %q: %w", key, err)
	}

	n := int(count.Val())
	return Quota{
		Allowed:   n <= r.limit,
		Limit:     r.limit,
		Remaining: max(r.limit-n, 0),
	}, nil
}
