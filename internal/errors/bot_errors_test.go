package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderErrorsNeverRetryable(t *testing.T) {
	err := Wrap(fmt.Errorf("exchange said no"), ErrorCategoryOrder, "exchange", "place order")
	assert.False(t, err.IsRetryable())

	// Even an explicit override cannot make an order error retryable.
	err = err.WithRetryable(true)
	assert.False(t, err.IsRetryable())
}

func TestWrapPreservesUnderlying(t *testing.T) {
	underlying := fmt.Errorf("connection reset")
	err := Wrap(underlying, ErrorCategoryNetwork, "exchange", "get ticker")

	require.NotNil(t, err)
	assert.True(t, errors.Is(err, underlying))
	assert.True(t, err.IsRetryable())
	assert.Contains(t, err.Error(), "NETWORK")

	assert.Nil(t, Wrap(nil, ErrorCategoryNetwork, "exchange", "get ticker"))
}

func TestCategorizeHeuristics(t *testing.T) {
	tests := []struct {
		msg       string
		category  ErrorCategory
		retryable bool
	}{
		{"context deadline exceeded", ErrorCategoryTimeout, true},
		{"dial tcp: connection refused", ErrorCategoryNetwork, true},
		{"invalid api key", ErrorCategoryCredentials, false},
		{"rate limit exceeded, slow down", ErrorCategoryRateLimit, true},
		{"insufficient balance for order", ErrorCategoryOrder, false},
		{"quantity below minimum", ErrorCategoryValidation, false},
		{"something else entirely", ErrorCategoryNetwork, true},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := Categorize(fmt.Errorf("%s", tt.msg), "exchange", "read")
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.retryable, err.IsRetryable())
		})
	}
}

func TestCategorizePassesThroughEngineErrors(t *testing.T) {
	original := Wrap(fmt.Errorf("boom"), ErrorCategoryOrder, "exchange", "place order")
	again := Categorize(original, "other", "op")
	assert.Same(t, original, again)

	assert.Nil(t, Categorize(nil, "exchange", "read"))
}
