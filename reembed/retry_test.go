package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(attempts *int, failures int) func(context.Context) error {
	return func(context.Context) error {
		*attempts++
		if *attempts <= failures {
			return errors.New("temporary error")
		}
		return nil
	}
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("first try", func(t *testing.T) {
		attempts := 0
		require.NoError(t, RetryWithBackoff(context.Background(), failing(&attempts, 0), 3, time.Millisecond))
		assert.Equal(t, 1, attempts)
	})

	t.Run("eventual success", func(t *testing.T) {
		attempts := 0
		require.NoError(t, RetryWithBackoff(context.Background(), failing(&attempts, 2), 5, time.Millisecond))
		assert.Equal(t, 3, attempts)
	})

	t.Run("all attempts fail", func(t *testing.T) {
		attempts := 0
		expected := errors.New("persistent error")
		err := RetryWithBackoff(context.Background(), func(context.Context) error {
			attempts++
			return expected
		}, 3, time.Millisecond)
		assert.Equal(t, expected, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("invalid attempts", func(t *testing.T) {
		for _, n := range []int{0, -1} {
			attempts := 0
			err := RetryWithBackoff(context.Background(), failing(&attempts, 10), n, time.Millisecond)
			assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
			assert.Zero(t, attempts)
		}
	})
}

func TestRetryWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := RetryWithBackoff(ctx, func(context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	}, 10, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithBackoff_ExponentialBackoff(t *testing.T) {
	attempts := 0
	var delays []time.Duration
	last := time.Now()

	err := RetryWithBackoff(context.Background(), func(context.Context) error {
		attempts++
		if attempts > 1 {
			delays = append(delays, time.Since(last))
		}
		last = time.Now()
		if attempts < 4 {
			return errors.New("error")
		}
		return nil
	}, 5, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, delays, 3)

	assert.GreaterOrEqual(t, delays[0], 10*time.Millisecond)
	assert.GreaterOrEqual(t, delays[1], 20*time.Millisecond)
	assert.GreaterOrEqual(t, delays[2], 40*time.Millisecond)
}
