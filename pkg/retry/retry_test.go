package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fast(n int) []Option {
	return []Option{WithMaxAttempts(n), WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond), WithJitter(0)}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	}, fast(5)...)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStops(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errFlaky)
	}, fast(5)...)

	assert.ErrorIs(t, err, errFlaky)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	var retries []int
	opts := append(fast(3), WithOnRetry(func(attempt int, _ error, _ time.Duration) {
		retries = append(retries, attempt)
	}))

	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errFlaky)
	}, opts...)

	assert.Equal(t, errFlaky, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_RetryIfFilters(t *testing.T) {
	calls := 0
	opts := append(fast(5), WithRetryIf(IsRetryable))

	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	}, opts...)

	assert.Equal(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithData(t *testing.T) {
	got, err := DoWithData(context.Background(), func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestWaitIsCapped(t *testing.T) {
	r := New(WithInitialDelay(time.Second), WithMaxDelay(3*time.Second), WithJitter(0))
	assert.Equal(t, time.Second, r.policy.wait(1))
	assert.Equal(t, 2*time.Second, r.policy.wait(2))
	assert.Equal(t, 3*time.Second, r.policy.wait(5))
}

func TestRetryableOverridesRetryIf(t *testing.T) {
	calls := 0
	r := StorageRetrier(func(error) bool { return false }).With(WithInitialDelay(time.Millisecond), WithJitter(0))

	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return Retryable(errFlaky)
		}
		return errFlaky
	})

	assert.Equal(t, errFlaky, err)
	assert.Equal(t, 2, calls)
}

func TestWith_LeavesOriginalUntouched(t *testing.T) {
	base := New(WithMaxAttempts(2))
	wider := base.With(WithMaxAttempts(6))

	assert.Equal(t, 2, base.policy.Attempts)
	assert.Equal(t, 6, wider.policy.Attempts)
}
