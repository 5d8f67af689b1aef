// Package retry re-runs operations with exponential backoff and jitter.
// The ledger uses it to repeat optimistic read-modify-write cycles after a
// lost race; store connections use it to wait for Postgres at startup.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// PermanentError stops the retry loop immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent marks err as not worth another attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts counts the first call too. Default: 3
	MaxAttempts int

	// InitialDelay is the wait before the second attempt. Default: 100ms
	InitialDelay time.Duration

	// MaxDelay caps a single wait. Default: 30s
	MaxDelay time.Duration

	// Multiplier grows the wait after each attempt. Default: 2.0
	Multiplier float64

	// Jitter spreads each wait by up to ±Jitter of its length (0..1).
	Jitter float64

	// ShouldRetry decides whether an error earns another attempt.
	// Nil retries everything except permanent and context errors.
	ShouldRetry func(error) bool

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	if p.Jitter < 0 || p.Jitter > 1.0 {
		p.Jitter = 0
	}
	return p
}

// Retrier runs operations under a Policy.
type Retrier struct {
	policy Policy
}

// New creates a Retrier. Zero fields of p take their defaults.
func New(p Policy) *Retrier {
	return &Retrier{policy: p.withDefaults()}
}

// Do calls operation until it succeeds, returns an error the policy does
// not retry, or runs out of attempts. The last error is returned as is.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if !r.shouldRetry(err) || attempt >= r.policy.MaxAttempts {
			return err
		}

		delay := r.Backoff(attempt)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
}

func (r *Retrier) shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if r.policy.ShouldRetry == nil {
		return true
	}
	return r.policy.ShouldRetry(err)
}

// Backoff returns the wait after the given failed attempt:
// InitialDelay * Multiplier^(attempt-1), capped and jittered.
func (r *Retrier) Backoff(attempt int) time.Duration {
	p := r.policy
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		delay += delay * p.Jitter * (rand.Float64()*2 - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// DoWithData runs an operation that returns a value.
func DoWithData[T any](ctx context.Context, r *Retrier, operation func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = operation(ctx)
		return opErr
	})
	return result, err
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESETS
// ══════════════════════════════════════════════════════════════════════════════

// ForLedger retries a student read-modify-write cycle. Only errors accepted
// by retryIf are retried; everything else fails on the first attempt.
func ForLedger(maxAttempts int, initialDelay time.Duration, retryIf func(error) bool, onRetry func(int, error, time.Duration)) *Retrier {
	return New(Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		MaxDelay:     500 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       0.3,
		ShouldRetry:  retryIf,
		OnRetry:      onRetry,
	})
}

// ForConnect waits for a store that is still starting up.
func ForConnect(onRetry func(int, error, time.Duration)) *Retrier {
	return New(Policy{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     3 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
		OnRetry:      onRetry,
	})
}
