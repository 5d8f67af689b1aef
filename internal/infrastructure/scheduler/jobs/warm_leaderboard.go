// Package jobs contains the scheduled jobs of the progression worker.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/leaderboard"
	"github.com/ecoquest/ecoquest-progression/pkg/logger"
)

// LeaderboardRefresher recomputes the ranking and stores it in the cache.
type LeaderboardRefresher interface {
	Refresh(ctx context.Context) ([]leaderboard.Entry, error)
}

// WarmLeaderboardJob keeps the cached leaderboard fresh so that reads rarely
// fall through to the store.
type WarmLeaderboardJob struct {
	refresher LeaderboardRefresher
	timeout   time.Duration
	log       *logger.Logger
}

// NewWarmLeaderboardJob creates the job. timeout bounds one refresh.
func NewWarmLeaderboardJob(refresher LeaderboardRefresher, timeout time.Duration, log *logger.Logger) *WarmLeaderboardJob {
	if log == nil {
		log = logger.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WarmLeaderboardJob{
		refresher: refresher,
		timeout:   timeout,
		log:       log.With(logger.Component("warm_leaderboard")),
	}
}

// Name returns the job name.
func (j *WarmLeaderboardJob) Name() string { return "warm_leaderboard" }

// Description returns the job description.
func (j *WarmLeaderboardJob) Description() string {
	return "recompute the leaderboard and refresh its cache"
}

// Run refreshes the leaderboard once.
func (j *WarmLeaderboardJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	entries, err := j.refresher.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh leaderboard: %w", err)
	}

	j.log.Info("leaderboard warmed",
		logger.Int("entries", len(entries)),
		logger.Latency(time.Since(start)),
	)
	return nil
}
