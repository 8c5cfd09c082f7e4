package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetryRead_SucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	err := RetryRead(context.Background(), fastRetry(), func() error {
		attempts++
		if attempts < 2 {
			return NewExchangeError("test", "429", "too many requests", true)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryRead_StopsOnNonRetryable(t *testing.T) {
	attempts := 0
	callErr := NewExchangeError("test", "400", "invalid symbol", false)
	err := RetryRead(context.Background(), fastRetry(), func() error {
		attempts++
		return callErr
	})

	assert.Equal(t, 1, attempts, "non-retryable errors must not be retried")
	var exErr *ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, "400", exErr.Code)
}

func TestRetryRead_ExhaustsBudget(t *testing.T) {
	attempts := 0
	err := RetryRead(context.Background(), fastRetry(), func() error {
		attempts++
		return NewExchangeError("test", "500", "server error", true)
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
}

func TestRetryRead_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := RetryRead(ctx, fastRetry(), func() error {
		attempts++
		return NewExchangeError("test", "500", "server error", true)
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, attempts)
}
