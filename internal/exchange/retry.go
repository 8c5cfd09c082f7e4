package exchange

import (
	"context"
	"errors"
	"time"

	engerrors "github.com/evanz1215/binance-trading-bot/internal/errors"
)

// RetryConfig bounds the retry behaviour for idempotent read operations.
// Order placement is never routed through here.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultReadRetry returns the retry policy used for market data and account
// reads. Two retries keeps the worst case well inside a cycle.
func DefaultReadRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:    2,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryRead executes fn, retrying transient failures with exponential backoff.
// Non-retryable errors and context cancellation stop immediately.
func RetryRead(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

func isRetryable(err error) bool {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return exErr.Retryable
	}
	var engErr *engerrors.EngineError
	if errors.As(err, &engErr) {
		return engErr.IsRetryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return engerrors.Categorize(err, "exchange", "read").IsRetryable()
}
