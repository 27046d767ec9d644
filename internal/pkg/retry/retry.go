package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 500 * time.Millisecond

	// maxDelay caps the exponential backoff so late attempts stay bounded.
	maxDelay = 30 * time.Second
)

// Do runs op up to attempts times with exponential backoff
// (delay = min(cap, base * 2^attempt)). Each failure is logged with its
// attempt number; when attempts are exhausted the last error is returned
// wrapped, never swallowed.
//
// Do must not be called while an idempotency lock is held: retrying inside
// the critical section would block peer processes for the whole backoff span.
func Do(ctx context.Context, name string, attempts int, baseDelay time.Duration, op func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := baseDelay << (attempt - 1)
			if delay > maxDelay {
				delay = maxDelay
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: canceled after %d attempts: %w", name, attempt, ctx.Err())
			case <-time.After(delay):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		log.Warnf("[Retry] %s attempt %d/%d failed: %v", name, attempt+1, attempts, lastErr)
	}

	return fmt.Errorf("%s: exhausted %d attempts: %w", name, attempts, lastErr)
}
