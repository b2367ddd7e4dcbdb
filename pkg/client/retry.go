package client

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// backoff returns the delay before the given attempt (1-based). The delay
// grows linearly: attempt n waits BaseDelay × n. The first attempt never waits.
func (c Config) backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return c.BaseDelay * time.Duration(attempt)
}

// retryWithBackoff runs fetch up to MaxAttempts times, sleeping between
// attempts. Non-retryable errors end the loop immediately.
func retryWithBackoff[T any](ctx context.Context, cfg Config, name string, logger zerolog.Logger, fetch Fetcher[T]) (T, error) {
	var (
		zero    T
		lastErr error
	)

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := cfg.backoff(attempt)
			clientRetriesTotal.WithLabelValues(name).Inc()

			logger.Debug().
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("Retrying request after backoff")

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
			case <-timer.C:
			}
		}

		value, err := fetch(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("Request succeeded after retry")
			}
			return value, nil
		}

		lastErr = err
		if !cfg.Retryable(err) {
			logger.Debug().Err(err).Int("attempt", attempt).Msg("Error is not retryable")
			return zero, err
		}
	}

	clientRetryExhaustedTotal.WithLabelValues(name).Inc()
	logger.Warn().
		Err(lastErr).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, lastErr)
}
