// Package challenge содержит трекер участия в челленджах.
// Студент вступает в челлендж не более одного раза; завершение
// идемпотентно. Очки за челлендж начисляет леджер прогресса, а не трекер.
package challenge

import (
	"context"
	"errors"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Participation - участие студента в челлендже. Пара (ChallengeID, StudentID)
// уникальна.
type Participation struct {
	ChallengeID string
	StudentID   string
	JoinedAt    time.Time
	Completed   bool
	CompletedAt *time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository хранит участия.
type Repository interface {
	// Create сохраняет новое участие.
	// Возвращает shared.ErrAlreadyJoined, если пара уже существует.
	Create(ctx context.Context, p *Participation) error

	// Get возвращает участие.
	// Возвращает shared.ErrParticipationNotFound, если пары нет.
	Get(ctx context.Context, challengeID, studentID string) (*Participation, error)

	// MarkCompleted переводит участие в completed, если оно ещё не завершено.
	// changed=false означает, что участие уже было завершено.
	// Возвращает shared.ErrParticipationNotFound, если пары нет.
	MarkCompleted(ctx context.Context, challengeID, studentID string, at time.Time) (p *Participation, changed bool, err error)

	// ListByChallenge возвращает участников в порядке вступления.
	ListByChallenge(ctx context.Context, challengeID string) ([]*Participation, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// TRACKER
// ══════════════════════════════════════════════════════════════════════════════

// Tracker обеспечивает семантику "вступить один раз".
type Tracker struct {
	repo Repository
	now  func() time.Time
}

// NewTracker создаёт трекер. now может быть nil - тогда используется UTC.
func NewTracker(repo Repository, now func() time.Time) *Tracker {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Tracker{repo: repo, now: now}
}

// Join создаёт участие с joined_at=now и completed=false.
// Повторное вступление возвращает shared.ErrAlreadyJoined.
func (t *Tracker) Join(ctx context.Context, studentID, challengeID string) (*Participation, error) {
	if err := validatePair(studentID, challengeID, "Join"); err != nil {
		return nil, err
	}

	p := &Participation{
		ChallengeID: challengeID,
		StudentID:   studentID,
		JoinedAt:    t.now(),
	}
	if err := t.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// MarkCompleted отмечает участие завершённым. firstTime=true, если именно
// этот вызов выполнил переход. Без участия возвращает shared.ErrNotJoined.
func (t *Tracker) MarkCompleted(ctx context.Context, studentID, challengeID string) (p *Participation, firstTime bool, err error) {
	if err := validatePair(studentID, challengeID, "MarkCompleted"); err != nil {
		return nil, false, err
	}

	p, changed, err := t.repo.MarkCompleted(ctx, challengeID, studentID, t.now())
	if errors.Is(err, shared.ErrParticipationNotFound) {
		return nil, false, shared.ErrNotJoined
	}
	if err != nil {
		return nil, false, err
	}
	return p, changed, nil
}

// Get возвращает участие или shared.ErrNotJoined.
func (t *Tracker) Get(ctx context.Context, studentID, challengeID string) (*Participation, error) {
	p, err := t.repo.Get(ctx, challengeID, studentID)
	if errors.Is(err, shared.ErrParticipationNotFound) {
		return nil, shared.ErrNotJoined
	}
	return p, err
}

// ListParticipants возвращает участников челленджа.
func (t *Tracker) ListParticipants(ctx context.Context, challengeID string) ([]*Participation, error) {
	if _, err := shared.NewContentID(challengeID); err != nil {
		return nil, shared.Validationf("challenge", "ListParticipants", "invalid challenge id %q", challengeID)
	}
	return t.repo.ListByChallenge(ctx, challengeID)
}

func validatePair(studentID, challengeID, op string) error {
	if studentID == "" {
		return shared.Validationf("challenge", op, "student id is required")
	}
	if _, err := shared.NewContentID(challengeID); err != nil {
		return shared.Validationf("challenge", op, "invalid challenge id %q", challengeID)
	}
	return nil
}
