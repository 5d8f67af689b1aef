package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errBackend = errors.New("backend down")

func fail(context.Context) error    { return errBackend }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	var transitions []State
	cb := New("test",
		WithFailureThreshold(2),
		WithOnStateChange(func(_ string, _, to State) { transitions = append(transitions, to) }),
	)

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBackend)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBackend)
	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), succeed)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejection(err))
	assert.Equal(t, []State{StateOpen}, transitions)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New("test",
		WithFailureThreshold(1),
		WithSuccessThreshold(1),
		WithTimeout(time.Minute),
		WithClock(func() time.Time { return now }),
	)

	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(context.Background(), succeed))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New("test",
		WithFailureThreshold(1),
		WithTimeout(time.Minute),
		WithClock(func() time.Time { return now }),
	)

	_ = cb.Execute(context.Background(), fail)
	now = now.Add(2 * time.Minute)
	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), succeed), ErrCircuitOpen)
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	ignored := errors.New("cache miss")
	cb := New("test",
		WithFailureThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, ignored) }),
	)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return ignored })
	}
	assert.Equal(t, StateClosed, cb.State())
}
