package llm

import (
	"context"
	"log/slog"
	"time"
)

// WithRetry runs fn up to attempts times with fixed-step exponential
// backoff (backoff, 2*backoff, 4*backoff, ...). Attempt counts are always
// bounded; there is no unbounded retry anywhere in the pipeline.
func WithRetry(ctx context.Context, logger *slog.Logger, op string, attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		logger.Warn("llm.retry", "op", op, "attempt", attempt, "attempts", attempts, "error", err)
		if attempt == attempts {
			break
		}
		wait := backoff << (attempt - 1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}
