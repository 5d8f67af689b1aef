package command

import (
	"context"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE LESSON COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CompleteLessonCommand records a finished lesson.
type CompleteLessonCommand struct {
	StudentID string
	LessonID  string

	// PointsReward comes from the content catalog of the caller.
	PointsReward int
}

// Validate checks the command.
func (c CompleteLessonCommand) Validate() error {
	if c.StudentID == "" {
		return shared.Validationf("progress", "CompleteLesson", "student id is required")
	}
	if _, err := shared.NewContentID(c.LessonID); err != nil {
		return shared.Validationf("progress", "CompleteLesson", "invalid lesson id %q", c.LessonID)
	}
	if c.PointsReward < 0 {
		return shared.Validationf("progress", "CompleteLesson", "points reward must not be negative")
	}
	return nil
}

// CompleteLessonResult is the progression snapshot after the lesson.
type CompleteLessonResult struct {
	ProgressResult

	// AlreadyCompleted is set when the lesson was completed before;
	// nothing changed in that case.
	AlreadyCompleted bool
}

// CompleteLessonHandler handles lesson completion.
type CompleteLessonHandler struct {
	ledger *Ledger
}

// NewCompleteLessonHandler creates a new handler.
func NewCompleteLessonHandler(ledger *Ledger) *CompleteLessonHandler {
	return &CompleteLessonHandler{ledger: ledger}
}

// Handle completes the lesson. Completing the same lesson twice is
// idempotent and awards nothing the second time.
func (h *CompleteLessonHandler) Handle(ctx context.Context, cmd CompleteLessonCommand) (*CompleteLessonResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	applied, err := h.ledger.Apply(ctx, "complete_lesson", cmd.StudentID,
		func(s *student.Student, env student.Env) (student.Outcome, error) {
			return s.CompleteLesson(env, cmd.LessonID, student.EcoPoints(cmd.PointsReward))
		},
		func(s *student.Student, out student.Outcome, at time.Time) []shared.Event {
			return []shared.Event{shared.NewLessonCompletedEvent(s.ID, cmd.LessonID, out.PointsAwarded.Int(), at)}
		},
	)
	if err != nil {
		return nil, err
	}

	return &CompleteLessonResult{
		ProgressResult:   progressResult(applied),
		AlreadyCompleted: applied.Outcome.Duplicate,
	}, nil
}
