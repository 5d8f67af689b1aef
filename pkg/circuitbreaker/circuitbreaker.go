// Package circuitbreaker implements the Circuit Breaker pattern.
// The leaderboard read path wraps its Redis cache calls in a breaker so that
// a failing cache degrades to direct recomputation instead of adding a
// network timeout to every request.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed is the normal state - requests are allowed through.
	StateClosed State = iota
	// StateOpen is the failure state - requests are blocked.
	StateOpen
	// StateHalfOpen lets a limited number of probe requests through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the circuit is open and requests are blocked.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open probe budget is used up.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config holds circuit breaker configuration.
type Config struct {
	Name string

	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of half-open successes that closes it again.
	SuccessThreshold int

	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration

	// MaxHalfOpenRequests bounds concurrent probes.
	MaxHalfOpenRequests int

	OnStateChange func(name string, from, to State)

	// IsFailure decides whether an error counts. Nil means every error counts.
	IsFailure func(error) bool

	now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
		now:                 time.Now,
	}
}

// Option is a functional option for configuring the circuit breaker.
type Option func(*Config)

// WithFailureThreshold sets the failure threshold.
func WithFailureThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.FailureThreshold = n
		}
	}
}

// WithSuccessThreshold sets the success threshold.
func WithSuccessThreshold(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SuccessThreshold = n
		}
	}
}

// WithTimeout sets the open-state duration.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithOnStateChange sets the state change callback.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(c *Config) {
		c.OnStateChange = fn
	}
}

// WithIsFailure sets the failure classifier.
func WithIsFailure(fn func(error) bool) Option {
	return func(c *Config) {
		c.IsFailure = fn
	}
}

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.now = now
		}
	}
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	config Config

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	consecutiveSuccess  int
	openedAt            time.Time
	halfOpenInFlight    int
}

// New creates a new CircuitBreaker with the given name and options.
func New(name string, opts ...Option) *CircuitBreaker {
	config := DefaultConfig(name)
	for _, opt := range opts {
		opt(&config)
	}
	return &CircuitBreaker{config: config, state: StateClosed}
}

// Execute runs fn if the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.afterRequest(err)
	return err
}

// IsRejection reports whether err was produced by the breaker itself.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.config.now().Sub(cb.openedAt) < cb.config.Timeout {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.halfOpenInFlight = 1
		return nil
	case StateHalfOpen:
		if cb.halfOpenInFlight < cb.config.MaxHalfOpenRequests {
			cb.halfOpenInFlight++
			return nil
		}
		return ErrTooManyRequests
	default:
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil
	if failed && cb.config.IsFailure != nil {
		failed = cb.config.IsFailure(err)
	}

	if !failed {
		cb.consecutiveFailures = 0
		cb.consecutiveSuccess++
		if cb.state == StateHalfOpen {
			cb.halfOpenInFlight--
			if cb.consecutiveSuccess >= cb.config.SuccessThreshold {
				cb.setState(StateClosed)
			}
		}
		return
	}

	cb.consecutiveSuccess = 0
	cb.consecutiveFailures++
	switch cb.state {
	case StateClosed:
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
	}
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.consecutiveFailures = 0
	cb.consecutiveSuccess = 0
	cb.halfOpenInFlight = 0
	if next == StateOpen {
		cb.openedAt = cb.config.now()
	}
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, prev, next)
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// CacheBreaker returns a breaker tuned for a best-effort cache: it trips
// quickly and probes again after a short pause.
func CacheBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(
		"leaderboard-cache",
		WithFailureThreshold(3),
		WithSuccessThreshold(1),
		WithTimeout(15*time.Second),
		WithOnStateChange(onStateChange),
	)
}
