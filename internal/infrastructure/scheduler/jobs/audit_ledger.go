package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
	"github.com/ecoquest/ecoquest-progression/pkg/logger"
)

// BalanceAuditor returns the balance reconciliation for every student.
type BalanceAuditor interface {
	AuditBalances(ctx context.Context) ([]student.BalanceAudit, error)
}

// AuditReport summarises one audit run.
type AuditReport struct {
	Checked int
	Drifted []student.BalanceAudit
	RanAt   time.Time
}

// AuditLedgerJob verifies that every balance equals the sum of its ledger
// entries and that the stored level matches the balance. Drift is logged;
// nothing is repaired automatically.
type AuditLedgerJob struct {
	auditor BalanceAuditor
	log     *logger.Logger
	last    atomic.Pointer[AuditReport]
}

// NewAuditLedgerJob creates the job.
func NewAuditLedgerJob(auditor BalanceAuditor, log *logger.Logger) *AuditLedgerJob {
	if log == nil {
		log = logger.Default()
	}
	return &AuditLedgerJob{
		auditor: auditor,
		log:     log.With(logger.Component("audit_ledger")),
	}
}

// Name returns the job name.
func (j *AuditLedgerJob) Name() string { return "audit_ledger" }

// Description returns the job description.
func (j *AuditLedgerJob) Description() string {
	return "compare balances and levels with the points ledger"
}

// Run performs one audit. It returns an error only when the audit itself
// could not be performed.
func (j *AuditLedgerJob) Run(ctx context.Context) error {
	audits, err := j.auditor.AuditBalances(ctx)
	if err != nil {
		return fmt.Errorf("audit balances: %w", err)
	}

	report := &AuditReport{Checked: len(audits), RanAt: time.Now().UTC()}
	for _, a := range audits {
		if !a.Drift() {
			continue
		}
		report.Drifted = append(report.Drifted, a)
		j.log.Warn("ledger drift detected",
			logger.StudentID(a.StudentID),
			logger.Int("eco_points", a.EcoPoints.Int()),
			logger.Int("ledger_sum", a.LedgerSum.Int()),
			logger.Int("stored_level", a.StoredLevel.Int()),
			logger.Int("expected_level", student.LevelFromPoints(a.EcoPoints).Int()),
		)
	}
	j.last.Store(report)

	j.log.Info("ledger audit finished",
		logger.Int("checked", report.Checked),
		logger.Int("drifted", len(report.Drifted)),
	)
	return nil
}

// LastReport returns the result of the most recent run, or nil.
func (j *AuditLedgerJob) LastReport() *AuditReport {
	return j.last.Load()
}
