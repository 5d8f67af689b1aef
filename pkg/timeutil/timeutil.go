// Package timeutil provides the clock abstraction used by the progression
// domain and the storage layers. All persisted timestamps are UTC and
// truncated to microseconds so that values survive a round trip through
// Postgres TIMESTAMPTZ and SQLite text columns unchanged.
package timeutil

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

// UTC is the production clock.
func UTC() time.Time {
	return Normalize(time.Now())
}

// Normalize converts t to UTC with microsecond precision.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Fixed returns a clock that always reports t.
func Fixed(t time.Time) Clock {
	t = Normalize(t)
	return func() time.Time { return t }
}

// Stepping returns a clock that starts at start and advances by step on
// every call. Safe for concurrent use.
func Stepping(start time.Time, step time.Duration) Clock {
	var mu sync.Mutex
	next := Normalize(start)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}

// OrDefault returns c, or the UTC clock when c is nil.
func OrDefault(c Clock) Clock {
	if c == nil {
		return UTC
	}
	return c
}

// FormatRFC3339 formats t in UTC using RFC 3339 with fractional seconds.
func FormatRFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseRFC3339 parses a value written by FormatRFC3339.
func ParseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return Normalize(t), nil
}
