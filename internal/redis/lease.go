package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProjectLockKey is the lease key guarding a single project's run.
func ProjectLockKey(projectID string) string { return "project:lock:" + projectID }

var (
	renewScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
)

// Lease is an expiring ownership claim on a key. Only the owner can renew or
// release it; a crashed owner loses it after ttl.
type Lease struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

// NewLease returns a lease on key held under owner's name.
func NewLease(client *redis.Client, key, owner string, ttl time.Duration) *Lease {
	return &Lease{client: client, key: key, owner: owner, ttl: ttl}
}

func (l *Lease) Key() string { return l.key }

// Acquire takes the lease if it is free, or renews it if this owner already
// holds it. It reports whether the caller holds the lease afterwards.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lease %s setnx: %w", l.key, err)
	}
	if ok {
		return true, nil
	}
	return l.Renew(ctx)
}

// Renew extends the lease when this owner holds it.
func (l *Lease) Renew(ctx context.Context) (bool, error) {
	n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("lease %s renew: %w", l.key, err)
	}
	return n == 1, nil
}

// Release drops the lease if this owner holds it.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lease %s release: %w", l.key, err)
	}
	return nil
}

// Keep renews the lease every ttl/3 until ctx is done, and calls lost once if
// ownership slips away.
func (l *Lease) Keep(ctx context.Context, lost func()) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := l.Renew(ctx)
			if ctx.Err() != nil {
				return
			}
			if err == nil && !ok {
				lost()
				return
			}
		}
	}
}

// Taken reports whether anyone currently holds the lease.
func (l *Lease) Taken(ctx context.Context) (bool, error) {
	n, err := l.client.Exists(ctx, l.key).Result()
	if err != nil {
		return false, fmt.Errorf("lease %s exists: %w", l.key, err)
	}
	return n == 1, nil
}
