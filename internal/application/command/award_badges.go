package command

import (
	"context"

	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD BADGES COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// AwardBadgesCommand grants catalog badges directly (admin and manual rules).
type AwardBadgesCommand struct {
	StudentID string
	BadgeIDs  []string
}

// Validate checks the command.
func (c AwardBadgesCommand) Validate() error {
	if c.StudentID == "" {
		return shared.Validationf("student", "AwardBadges", "student id is required")
	}
	if len(c.BadgeIDs) == 0 {
		return shared.Validationf("student", "AwardBadges", "at least one badge id is required")
	}
	return nil
}

// AwardBadgesHandler handles direct badge awards.
type AwardBadgesHandler struct {
	ledger *Ledger
}

// NewAwardBadgesHandler creates a new handler.
func NewAwardBadgesHandler(ledger *Ledger) *AwardBadgesHandler {
	return &AwardBadgesHandler{ledger: ledger}
}

// Handle unions the requested badges into the student's set. Badges already
// held are skipped; an id missing from the catalog rejects the whole request.
func (h *AwardBadgesHandler) Handle(ctx context.Context, cmd AwardBadgesCommand) (*ProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	applied, err := h.ledger.Apply(ctx, "award_badges", cmd.StudentID,
		func(s *student.Student, env student.Env) (student.Outcome, error) {
			return s.AwardBadges(env, cmd.BadgeIDs)
		},
		nil,
	)
	if err != nil {
		return nil, err
	}

	result := progressResult(applied)
	return &result, nil
}
