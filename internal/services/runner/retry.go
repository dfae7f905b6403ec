package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gazette/internal/interfaces"
)

// RetryPolicy coordinates bounded retries with a fixed delay between
// attempts. The cancel token is consulted before every attempt so a
// cancelled run never consumes another attempt or delay; cancellation
// latency is bounded by one delay plus one outstanding call.
type RetryPolicy struct {
	MaxRetries int           // retry budget on top of the first attempt; 0 means no retries
	RetryDelay time.Duration // fixed delay between attempts
	logger     arbor.ILogger
}

// NewRetryPolicy creates a retry policy
func NewRetryPolicy(maxRetries int, retryDelay time.Duration, logger arbor.ILogger) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryPolicy{
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
		logger:     logger,
	}
}

// Execute runs op until it succeeds, the cancel token trips, the context is
// done, or the retry budget is exhausted. On exhaustion the last captured
// error is returned.
func Execute[T any](ctx context.Context, p *RetryPolicy, cancel interfaces.CancelToken, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := p.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if cancel != nil && cancel.Cancelled() {
			return zero, ErrCancelled
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt < attempts {
			p.logger.Debug().
				Int("attempt", attempt).
				Int("max_retries", p.MaxRetries).
				Dur("delay", p.RetryDelay).
				Err(err).
				Msg("Attempt failed, retrying after delay")

			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(p.RetryDelay):
			}
		}
	}

	p.logger.Warn().
		Int("max_retries", p.MaxRetries).
		Err(lastErr).
		Msg("All retry attempts exhausted")

	return zero, fmt.Errorf("retries exhausted after %d attempts: %w", attempts, lastErr)
}
