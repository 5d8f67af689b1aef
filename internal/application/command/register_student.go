package command

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER STUDENT COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// RegisterStudentCommand creates a progression record for an account.
type RegisterStudentCommand struct {
	// AccountID is the identity provider account (1:1 with the student).
	AccountID string

	// DisplayName is shown on the leaderboard.
	DisplayName string
}

// Validate checks the command before any storage access.
func (c RegisterStudentCommand) Validate() error {
	if strings.TrimSpace(c.AccountID) == "" {
		return shared.Validationf("student", "Register", "account id is required")
	}
	if strings.TrimSpace(c.DisplayName) == "" {
		return shared.Validationf("student", "Register", "display name is required")
	}
	return nil
}

// RegisterStudentResult contains the created student's snapshot.
type RegisterStudentResult struct {
	Stats student.Stats
}

// RegisterStudentHandler handles student registration.
type RegisterStudentHandler struct {
	ledger   *Ledger
	students student.Repository
	logger   *slog.Logger
}

// NewRegisterStudentHandler creates a new handler.
func NewRegisterStudentHandler(ledger *Ledger, students student.Repository, logger *slog.Logger) *RegisterStudentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegisterStudentHandler{
		ledger:   ledger,
		students: students,
		logger:   logger.With("handler", "register_student"),
	}
}

// Handle registers the student. A second registration of the same account
// returns shared.ErrStudentAlreadyExists.
func (h *RegisterStudentHandler) Handle(ctx context.Context, cmd RegisterStudentCommand) (*RegisterStudentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := h.ledger.Now()
	s, err := student.NewStudent(student.NewStudentParams{
		ID:          h.ledger.NewID(),
		AccountID:   strings.TrimSpace(cmd.AccountID),
		DisplayName: strings.TrimSpace(cmd.DisplayName),
	}, now)
	if err != nil {
		return nil, err
	}

	if err := h.students.Create(ctx, s); err != nil {
		return nil, err
	}

	h.logger.Info("student registered", "student_id", s.ID, "account_id", s.AccountID)
	h.ledger.Publish(shared.NewStudentRegisteredEvent(s.ID, s.AccountID, s.DisplayName, now))

	return &RegisterStudentResult{Stats: s.Stats()}, nil
}
