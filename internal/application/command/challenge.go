package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/challenge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOIN CHALLENGE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// JoinChallengeCommand enrolls a student in a challenge.
type JoinChallengeCommand struct {
	StudentID   string
	ChallengeID string
}

// JoinChallengeHandler handles challenge enrollment.
type JoinChallengeHandler struct {
	ledger   *Ledger
	students student.Repository
	tracker  *challenge.Tracker
	logger   *slog.Logger
}

// NewJoinChallengeHandler creates a new handler.
func NewJoinChallengeHandler(
	ledger *Ledger,
	students student.Repository,
	tracker *challenge.Tracker,
	logger *slog.Logger,
) *JoinChallengeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JoinChallengeHandler{
		ledger:   ledger,
		students: students,
		tracker:  tracker,
		logger:   logger.With("handler", "join_challenge"),
	}
}

// Handle joins the challenge. Joining twice returns shared.ErrAlreadyJoined.
func (h *JoinChallengeHandler) Handle(ctx context.Context, cmd JoinChallengeCommand) (*challenge.Participation, error) {
	if _, err := h.students.GetByID(ctx, cmd.StudentID); err != nil {
		return nil, err
	}

	p, err := h.tracker.Join(ctx, cmd.StudentID, cmd.ChallengeID)
	if err != nil {
		return nil, err
	}

	h.logger.Info("challenge joined", "student_id", p.StudentID, "challenge_id", p.ChallengeID)
	h.ledger.Publish(shared.NewChallengeJoinedEvent(p.StudentID, p.ChallengeID, p.JoinedAt))
	return p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE CHALLENGE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CompleteChallengeCommand marks a joined challenge completed and pays its reward.
type CompleteChallengeCommand struct {
	StudentID    string
	ChallengeID  string
	PointsReward int
}

// Validate checks the command.
func (c CompleteChallengeCommand) Validate() error {
	if c.StudentID == "" {
		return shared.Validationf("challenge", "Complete", "student id is required")
	}
	if _, err := shared.NewContentID(c.ChallengeID); err != nil {
		return shared.Validationf("challenge", "Complete", "invalid challenge id %q", c.ChallengeID)
	}
	if c.PointsReward < 0 {
		return shared.Validationf("challenge", "Complete", "points reward must not be negative")
	}
	return nil
}

// CompleteChallengeResult contains the participation and the new progression.
type CompleteChallengeResult struct {
	ProgressResult
	Participation *challenge.Participation

	// AlreadyRewarded is set when the reward was paid by an earlier call.
	AlreadyRewarded bool
}

// CompleteChallengeHandler handles challenge completion.
type CompleteChallengeHandler struct {
	ledger  *Ledger
	tracker *challenge.Tracker
}

// NewCompleteChallengeHandler creates a new handler.
func NewCompleteChallengeHandler(ledger *Ledger, tracker *challenge.Tracker) *CompleteChallengeHandler {
	return &CompleteChallengeHandler{ledger: ledger, tracker: tracker}
}

// Handle marks the participation completed, then pays the reward through
// the ledger. The reward is keyed by challenge id, so a repeated call or a
// retry after a partial failure never pays twice.
func (h *CompleteChallengeHandler) Handle(ctx context.Context, cmd CompleteChallengeCommand) (*CompleteChallengeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	p, _, err := h.tracker.MarkCompleted(ctx, cmd.StudentID, cmd.ChallengeID)
	if err != nil {
		return nil, err
	}

	applied, err := h.ledger.Apply(ctx, "complete_challenge", cmd.StudentID,
		func(s *student.Student, env student.Env) (student.Outcome, error) {
			return s.RewardChallenge(env, cmd.ChallengeID, student.EcoPoints(cmd.PointsReward))
		},
		func(s *student.Student, out student.Outcome, at time.Time) []shared.Event {
			return []shared.Event{shared.NewChallengeCompletedEvent(s.ID, cmd.ChallengeID, out.PointsAwarded.Int(), at)}
		},
	)
	if err != nil {
		return nil, err
	}

	return &CompleteChallengeResult{
		ProgressResult:  progressResult(applied),
		Participation:   p,
		AlreadyRewarded: applied.Outcome.Duplicate,
	}, nil
}
