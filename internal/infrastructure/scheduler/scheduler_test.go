package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job " + j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

type panicJob struct{}

func (panicJob) Name() string              { return "panic" }
func (panicJob) Description() string       { return "panics" }
func (panicJob) Run(context.Context) error { panic("boom") }

func mustInterval(t *testing.T, d time.Duration) *IntervalSchedule {
	t.Helper()
	s, err := NewIntervalSchedule(d)
	require.NoError(t, err)
	return s
}

func TestParseCronExpression_Next(t *testing.T) {
	base := time.Date(2026, 3, 6, 10, 17, 42, 0, time.UTC) // Friday

	tests := []struct {
		expr string
		want time.Time
	}{
		{"*/5 * * * *", time.Date(2026, 3, 6, 10, 20, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 3, 7, 3, 0, 0, 0, time.UTC)},
		{"30 2 * * 1-5", time.Date(2026, 3, 9, 2, 30, 0, 0, time.UTC)},
		{"0,45 10 * * *", time.Date(2026, 3, 6, 10, 45, 0, 0, time.UTC)},
		{"0 0 1 */3 *", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"18 10 * * *", time.Date(2026, 3, 6, 10, 18, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ce, err := ParseCronExpression(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ce.Next(base))
			assert.Equal(t, tt.expr, ce.String())
		})
	}
}

func TestParseCronExpression_Invalid(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "*/0 * * * *", "5-1 * * * *", "a * * * *"} {
		_, err := ParseCronExpression(expr)
		assert.Error(t, err, expr)
	}
}

func TestParseCronExpression_Impossible(t *testing.T) {
	ce := MustParseCronExpression("0 0 31 2 *")
	assert.True(t, ce.Next(time.Now()).IsZero())
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("@every 90s", nil)
	require.NoError(t, err)
	assert.Equal(t, "@every 1m30s", s.String())

	s, err = ParseSchedule("0 3 * * *", time.UTC)
	require.NoError(t, err)
	assert.IsType(t, &CronExpression{}, s)

	_, err = ParseSchedule("@every 10ms", nil)
	assert.Error(t, err)
	_, err = ParseSchedule("@every soon", nil)
	assert.Error(t, err)
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &countingJob{name: "a"}

	assert.ErrorIs(t, s.Register(nil, mustInterval(t, time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, mustInterval(t, time.Minute)))
	assert.ErrorIs(t, s.Register(job, mustInterval(t, time.Minute)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.SetEnabled("missing", true), ErrJobNotFound)
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	var now atomic.Int64
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now.Store(start.UnixNano())
	clock := func() time.Time { return time.Unix(0, now.Load()).UTC() }

	s := NewScheduler(SchedulerConfig{Clock: clock, TickInterval: 5 * time.Millisecond})
	job := &countingJob{name: "warm"}
	require.NoError(t, s.Register(job, mustInterval(t, time.Minute)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), job.runs.Load())

	now.Store(start.Add(time.Minute).UnixNano())
	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, int64(1), infos[0].RunCount)
	assert.Equal(t, start.Add(2*time.Minute), infos[0].NextRun)
}

func TestScheduler_RunNowRecordsFailuresAndPanics(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	failing := &countingJob{name: "audit", err: errors.New("store down")}
	require.NoError(t, s.Register(failing, mustInterval(t, time.Hour)))
	require.NoError(t, s.Register(panicJob{}, mustInterval(t, time.Hour)))

	var completed []string
	s.OnJobComplete(func(r JobResult) { completed = append(completed, r.JobName) })

	result, err := s.RunNow(context.Background(), "audit")
	assert.EqualError(t, err, "store down")
	assert.False(t, result.Success)
	assert.True(t, result.Manual)

	_, err = s.RunNow(context.Background(), "panic")
	assert.ErrorIs(t, err, ErrJobPanicked)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	snap := s.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalExecutions)
	assert.Equal(t, int64(2), snap.TotalFailures)
	assert.Equal(t, int64(1), snap.FailuresByJob["audit"])
	assert.Equal(t, []string{"audit", "panic"}, completed)
	assert.Len(t, s.History(0), 2)
	assert.Len(t, s.History(1), 1)
}

func TestScheduler_RunNowRejectsOverlap(t *testing.T) {
	s := NewScheduler(DefaultSchedulerConfig())
	job := &countingJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, mustInterval(t, time.Hour)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.RunNow(context.Background(), "slow")
	}()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(job.block)
	<-done
}
