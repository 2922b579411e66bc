// Package retry wraps fallible operations with bounded exponential backoff.
//
// Every I/O call to an external collaborator (store, generation service,
// third-party API) goes through Do; it is the only place transient failures
// are absorbed.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Do executes op up to maxAttempts times. The delay after failed attempt i
// (0-indexed) is baseDelay * 2^i; there is no delay before the first attempt.
// Context cancellation aborts the backoff wait. On exhaustion the last
// observed error is returned.
func Do[T any](ctx context.Context, logger *slog.Logger, maxAttempts int, baseDelay time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := baseDelay << (attempt - 1)
			logger.Debug("retrying operation",
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", maxAttempts),
				slog.Duration("delay", delay),
				slog.String("last_error", lastErr.Error()),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, fmt.Errorf("retry aborted after %d attempts: %w (last error: %v)", attempt, ctx.Err(), lastErr)
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", maxAttempts, lastErr)
}
