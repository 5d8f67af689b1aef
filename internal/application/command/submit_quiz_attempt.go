package command

import (
	"context"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/quiz"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT QUIZ ATTEMPT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// SubmitQuizAttemptCommand grades and records one quiz attempt.
type SubmitQuizAttemptCommand struct {
	StudentID string
	QuizID    string

	// Answers holds the chosen option per question; a negative value means
	// the question was skipped. Missing trailing answers count as skipped.
	Answers []int

	TimeTakenSeconds int
}

// Validate checks the command.
func (c SubmitQuizAttemptCommand) Validate() error {
	if c.StudentID == "" {
		return shared.Validationf("quiz", "Submit", "student id is required")
	}
	if _, err := shared.NewContentID(c.QuizID); err != nil {
		return shared.Validationf("quiz", "Submit", "invalid quiz id %q", c.QuizID)
	}
	if c.TimeTakenSeconds < 0 {
		return shared.Validationf("quiz", "Submit", "time taken must not be negative")
	}
	return nil
}

// SubmitQuizAttemptResult contains the graded attempt and the new progression.
type SubmitQuizAttemptResult struct {
	ProgressResult
	Attempt quiz.AttemptResult
}

// SubmitQuizAttemptHandler handles quiz submissions.
type SubmitQuizAttemptHandler struct {
	ledger  *Ledger
	quizzes quiz.Repository
}

// NewSubmitQuizAttemptHandler creates a new handler.
func NewSubmitQuizAttemptHandler(ledger *Ledger, quizzes quiz.Repository) *SubmitQuizAttemptHandler {
	return &SubmitQuizAttemptHandler{ledger: ledger, quizzes: quizzes}
}

// Handle grades the submission against the stored quiz and records the
// attempt. Every attempt is kept; only passing attempts award points.
func (h *SubmitQuizAttemptHandler) Handle(ctx context.Context, cmd SubmitQuizAttemptCommand) (*SubmitQuizAttemptResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	q, err := h.quizzes.GetByID(ctx, cmd.QuizID)
	if err != nil {
		return nil, err
	}

	answers := make([]quiz.Answer, len(cmd.Answers))
	for i, a := range cmd.Answers {
		answers[i] = quiz.Choice(a)
	}

	// The id is fixed before the ledger so that retries record the same attempt.
	attemptID := h.ledger.NewID()
	var graded quiz.AttemptResult

	applied, err := h.ledger.Apply(ctx, "submit_quiz_attempt", cmd.StudentID,
		func(s *student.Student, env student.Env) (student.Outcome, error) {
			result, err := quiz.Grade(q, quiz.Submission{
				AttemptID:        attemptID,
				StudentID:        s.ID,
				Answers:          answers,
				TimeTakenSeconds: cmd.TimeTakenSeconds,
				SubmittedAt:      env.Now,
			})
			if err != nil {
				return student.Outcome{}, err
			}
			graded = result
			return s.RecordQuizAttempt(env, result, student.EcoPoints(q.RewardPoints))
		},
		func(s *student.Student, _ student.Outcome, at time.Time) []shared.Event {
			return []shared.Event{shared.NewQuizAttemptedEvent(
				s.ID, graded.ID, graded.QuizID, graded.ScorePercent, graded.Passed, graded.Late, at,
			)}
		},
	)
	if err != nil {
		return nil, err
	}

	return &SubmitQuizAttemptResult{
		ProgressResult: progressResult(applied),
		Attempt:        graded,
	}, nil
}
