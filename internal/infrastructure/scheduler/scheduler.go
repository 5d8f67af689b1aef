// Package scheduler runs the background jobs of the progression worker:
// leaderboard cache warm-up and the ledger balance audit. Jobs are registered
// with a Schedule (cron expression or fixed interval); a job never overlaps
// with its own previous run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ecoquest/ecoquest-progression/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of periodic work.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Description returns a human-readable description of the job.
	Description() string

	// Run executes the job. ctx is cancelled when the scheduler stops.
	Run(ctx context.Context) error
}

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the next run time strictly after t.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Manual      bool
	Error       error
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler manages and executes scheduled jobs.
type Scheduler struct {
	mu sync.RWMutex

	logger       *slog.Logger
	clock        timeutil.Clock
	tick         time.Duration
	historyLimit int

	jobs       map[string]*scheduledJob
	running    bool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	startedAt  time.Time
	history    []JobResult
	metrics    *SchedulerMetrics
	onComplete func(JobResult)
}

type scheduledJob struct {
	job       Job
	schedule  Schedule
	enabled   bool
	inFlight  bool
	lastRun   time.Time
	nextRun   time.Time
	runCount  int64
	failCount int64
	last      *JobResult
}

// SchedulerConfig contains configuration for the Scheduler.
type SchedulerConfig struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Clock returns the current time (default: UTC wall clock).
	Clock timeutil.Clock

	// TickInterval is how often due jobs are checked (default: 1s).
	TickInterval time.Duration

	// MaxHistorySize is the number of job results kept in history.
	MaxHistorySize int
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickInterval:   time.Second,
		MaxHistorySize: 200,
	}
}

// NewScheduler creates a new Scheduler with the given configuration.
func NewScheduler(config SchedulerConfig) *Scheduler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = 200
	}

	return &Scheduler{
		logger:       config.Logger.With("component", "scheduler"),
		clock:        timeutil.OrDefault(config.Clock),
		tick:         config.TickInterval,
		historyLimit: config.MaxHistorySize,
		jobs:         make(map[string]*scheduledJob),
		metrics:      NewSchedulerMetrics(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds a job to the scheduler with the given schedule.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		enabled:  true,
		nextRun:  schedule.Next(s.clock()),
	}
	s.jobs[name] = sj

	s.logger.Info("job registered",
		"job", name,
		"schedule", schedule.String(),
		"next_run", timeutil.FormatRFC3339(sj.nextRun),
	)
	return nil
}

// SetEnabled enables or disables a job by name.
func (s *Scheduler) SetEnabled(jobName string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, exists := s.jobs[jobName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}

	sj.enabled = enabled
	if enabled {
		sj.nextRun = sj.schedule.Next(s.clock())
	}
	s.logger.Info("job toggled", "job", jobName, "enabled", enabled)
	return nil
}

// OnJobComplete sets a callback invoked after every job run.
func (s *Scheduler) OnJobComplete(fn func(JobResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onComplete = fn
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = s.clock()
	jobs := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("scheduler started", "jobs_count", jobs)

	s.wg.Add(1)
	go s.runLoop()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.logger.Info("scheduler stopped", "uptime", s.clock().Sub(s.startedAt).String())
	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER LOOP
// ══════════════════════════════════════════════════════════════════════════════

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue()
		}
	}
}

// dispatchDue starts every enabled job whose next run has passed and which
// is not still running.
func (s *Scheduler) dispatchDue() {
	now := s.clock()

	s.mu.Lock()
	var due []*scheduledJob
	for _, sj := range s.jobs {
		if sj.enabled && !sj.inFlight && !sj.nextRun.IsZero() && !now.Before(sj.nextRun) {
			sj.inFlight = true
			sj.lastRun = now
			sj.nextRun = sj.schedule.Next(now)
			due = append(due, sj)
		}
	}
	ctx := s.ctx
	s.mu.Unlock()

	for _, sj := range due {
		s.wg.Add(1)
		go func(sj *scheduledJob) {
			defer s.wg.Done()
			s.execute(ctx, sj, false)
		}(sj)
	}
}

// execute runs a job and records the result.
func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob, manual bool) JobResult {
	name := sj.job.Name()
	started := s.clock()
	s.logger.Debug("job started", "job", name, "manual", manual)

	err := s.runSafely(ctx, sj.job)

	completed := s.clock()
	result := JobResult{
		JobName:     name,
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
		Success:     err == nil,
		Manual:      manual,
		Error:       err,
	}
	s.metrics.RecordExecution(name, result.Duration, result.Success)

	s.mu.Lock()
	sj.inFlight = false
	sj.runCount++
	if err != nil {
		sj.failCount++
	}
	sj.last = &result
	s.history = append(s.history, result)
	if len(s.history) > s.historyLimit {
		s.history = s.history[len(s.history)-s.historyLimit:]
	}
	hook := s.onComplete
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "job", name, "duration", result.Duration.String(), "error", err)
	} else {
		s.logger.Info("job completed", "job", name, "duration", result.Duration.String())
	}

	if hook != nil {
		hook(result)
	}
	return result
}

func (s *Scheduler) runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Run(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow executes a job immediately, ignoring its schedule. It fails with
// ErrJobRunning when the job is already in flight.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (JobResult, error) {
	s.mu.Lock()
	sj, exists := s.jobs[jobName]
	if !exists {
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	if sj.inFlight {
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobRunning, jobName)
	}
	sj.inFlight = true
	sj.lastRun = s.clock()
	s.mu.Unlock()

	result := s.execute(ctx, sj, true)
	return result, result.Error
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name        string
	Description string
	Enabled     bool
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// ListJobs returns registered jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		infos = append(infos, JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Enabled:     sj.enabled,
			Schedule:    sj.schedule.String(),
			LastRun:     sj.lastRun,
			NextRun:     sj.nextRun,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
			LastResult:  sj.last,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// History returns up to limit most recent results, oldest first.
func (s *Scheduler) History(limit int) []JobResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]JobResult, limit)
	copy(out, s.history[len(s.history)-limit:])
	return out
}

// Metrics returns scheduler metrics.
func (s *Scheduler) Metrics() *SchedulerMetrics {
	return s.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// SchedulerMetrics tracks job execution counters.
type SchedulerMetrics struct {
	mu sync.RWMutex

	executions    int64
	failures      int64
	totalDuration time.Duration
	failuresByJob map[string]int64
}

// NewSchedulerMetrics creates a new metrics tracker.
func NewSchedulerMetrics() *SchedulerMetrics {
	return &SchedulerMetrics{failuresByJob: make(map[string]int64)}
}

// RecordExecution records a job execution.
func (m *SchedulerMetrics) RecordExecution(jobName string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.executions++
	m.totalDuration += duration
	if !success {
		m.failures++
		m.failuresByJob[jobName]++
	}
}

// Snapshot returns a point-in-time snapshot of metrics.
func (m *SchedulerMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		TotalExecutions: m.executions,
		TotalFailures:   m.failures,
		FailuresByJob:   make(map[string]int64, len(m.failuresByJob)),
	}
	for k, v := range m.failuresByJob {
		snap.FailuresByJob[k] = v
	}
	if m.executions > 0 {
		snap.AverageDuration = m.totalDuration / time.Duration(m.executions)
	}
	return snap
}

// MetricsSnapshot is a point-in-time snapshot of scheduler metrics.
type MetricsSnapshot struct {
	TotalExecutions int64
	TotalFailures   int64
	FailuresByJob   map[string]int64
	AverageDuration time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrJobRunning              = errors.New("job is already running")
	ErrJobPanicked             = errors.New("job panicked")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)
