package jobs

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoquest/ecoquest-progression/internal/domain/leaderboard"
	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
	"github.com/ecoquest/ecoquest-progression/pkg/logger"
)

type refresherFunc func(ctx context.Context) ([]leaderboard.Entry, error)

func (f refresherFunc) Refresh(ctx context.Context) ([]leaderboard.Entry, error) { return f(ctx) }

type auditorFunc func(ctx context.Context) ([]student.BalanceAudit, error)

func (f auditorFunc) AuditBalances(ctx context.Context) ([]student.BalanceAudit, error) { return f(ctx) }

func textLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.New(logger.Options{Output: buf, Level: logger.LevelDebug, Format: logger.FormatText})
}

func TestWarmLeaderboardJob_Run(t *testing.T) {
	var buf bytes.Buffer
	var hadDeadline bool
	job := NewWarmLeaderboardJob(refresherFunc(func(ctx context.Context) ([]leaderboard.Entry, error) {
		_, hadDeadline = ctx.Deadline()
		return []leaderboard.Entry{{Rank: 1, StudentID: "s1"}}, nil
	}), time.Second, textLogger(&buf))

	assert.Equal(t, "warm_leaderboard", job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.True(t, hadDeadline)
	assert.Contains(t, buf.String(), "entries=1")
}

func TestWarmLeaderboardJob_PropagatesFailure(t *testing.T) {
	job := NewWarmLeaderboardJob(refresherFunc(func(context.Context) ([]leaderboard.Entry, error) {
		return nil, errors.New("redis down")
	}), 0, nil)

	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "redis down")
}

func TestAuditLedgerJob_ReportsDrift(t *testing.T) {
	var buf bytes.Buffer
	job := NewAuditLedgerJob(auditorFunc(func(context.Context) ([]student.BalanceAudit, error) {
		return []student.BalanceAudit{
			{StudentID: "ok", EcoPoints: 600, LedgerSum: 600, StoredLevel: 2},
			{StudentID: "bad-sum", EcoPoints: 600, LedgerSum: 550, StoredLevel: 2},
			{StudentID: "bad-level", EcoPoints: 600, LedgerSum: 600, StoredLevel: 1},
		}, nil
	}), textLogger(&buf))

	assert.Nil(t, job.LastReport())
	require.NoError(t, job.Run(context.Background()))

	report := job.LastReport()
	require.NotNil(t, report)
	assert.Equal(t, 3, report.Checked)
	require.Len(t, report.Drifted, 2)
	assert.Equal(t, "bad-sum", report.Drifted[0].StudentID)
	assert.Equal(t, "bad-level", report.Drifted[1].StudentID)

	out := buf.String()
	assert.Contains(t, out, "ledger drift detected")
	assert.Contains(t, out, "student_id=bad-sum")
	assert.Contains(t, out, "ledger_sum=550")
	assert.Contains(t, out, "expected_level=2")
	assert.Contains(t, out, "drifted=2")
}

func TestAuditLedgerJob_StoreFailure(t *testing.T) {
	job := NewAuditLedgerJob(auditorFunc(func(context.Context) ([]student.BalanceAudit, error) {
		return nil, errors.New("connection refused")
	}), nil)

	assert.ErrorContains(t, job.Run(context.Background()), "connection refused")
	assert.Nil(t, job.LastReport())
}
