package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("conflict")

func TestRetrier_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	r := New(Policy{MaxAttempts: 5, InitialDelay: time.Millisecond})

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errConflict
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	var retried []int
	r := New(Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			retried = append(retried, attempt)
		},
	})

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errConflict
	})

	assert.Equal(t, errConflict, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetrier_PermanentErrorIsNotRetried(t *testing.T) {
	calls := 0
	err := New(Policy{MaxAttempts: 5, InitialDelay: time.Millisecond}).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(errConflict)
	})

	assert.Equal(t, errConflict, err)
	assert.Equal(t, 1, calls)
}

func TestForLedger_UsesPredicate(t *testing.T) {
	other := errors.New("validation")
	calls := 0
	r := ForLedger(4, time.Millisecond, func(err error) bool {
		return errors.Is(err, errConflict)
	}, nil)

	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return other
	})
	assert.Equal(t, other, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errConflict
	})
	assert.ErrorIs(t, err, errConflict)
	assert.Equal(t, 4, calls)
}

func TestDoWithData_ReturnsValue(t *testing.T) {
	calls := 0
	v, err := DoWithData(context.Background(), New(Policy{InitialDelay: time.Millisecond}), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errConflict
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)
}

func TestRetrier_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(Policy{}).Do(ctx, func(ctx context.Context) error {
		return errConflict
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetrier_ContextErrorsAreNotRetried(t *testing.T) {
	calls := 0
	err := New(Policy{MaxAttempts: 5, InitialDelay: time.Millisecond}).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return context.DeadlineExceeded
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	r := New(Policy{InitialDelay: 10 * time.Millisecond, MaxDelay: 35 * time.Millisecond, Multiplier: 2})

	assert.Equal(t, 10*time.Millisecond, r.Backoff(1))
	assert.Equal(t, 20*time.Millisecond, r.Backoff(2))
	assert.Equal(t, 35*time.Millisecond, r.Backoff(3))
	assert.Equal(t, 35*time.Millisecond, r.Backoff(10))
}
