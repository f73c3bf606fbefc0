package retry

import (
	"context"
	"fmt"
	"time"
)

// Config bounds a retried call. It is used by collaborators that own their
// retries (stores, the planner client), never for task dispatch, which
// follows Policy.
type Config struct {
	// MaxAttempts counts every call, the first one included.
	MaxAttempts int
	// BaseDelay scales the wait after attempt n to BaseDelay × n².
	BaseDelay time.Duration
	// MaxDelay caps a single wait. Zero means uncapped.
	MaxDelay time.Duration
	// OnRetry runs after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Delay is the wait after the given 1-indexed failed attempt.
func (c Config) Delay(attempt int) time.Duration {
	d := c.BaseDelay * time.Duration(attempt*attempt)
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, returns a permanent error (IsPermanent), or
// MaxAttempts is reached; the last error is returned. With BaseDelay=100ms the
// waits are 100ms, 400ms, 900ms...
func Do(ctx context.Context, cfg Config, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= attempts || IsPermanent(err) {
			return err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		timer := time.NewTimer(cfg.Delay(attempt))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		}
	}
}
