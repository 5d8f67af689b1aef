package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job at a fixed interval after the previous run.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates an IntervalSchedule. The interval must be at
// least one second.
func NewIntervalSchedule(interval time.Duration) (*IntervalSchedule, error) {
	if interval < time.Second {
		return nil, fmt.Errorf("interval %s is shorter than 1s", interval)
	}
	return &IntervalSchedule{Interval: interval}, nil
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}
