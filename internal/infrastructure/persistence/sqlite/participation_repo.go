package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/challenge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

// ParticipationRepository implements challenge.Repository for SQLite.
type ParticipationRepository struct {
	store *Store
}

// NewParticipationRepository creates a new ParticipationRepository.
func NewParticipationRepository(store *Store) *ParticipationRepository {
	return &ParticipationRepository{store: store}
}

const participationColumns = `challenge_id, student_id, joined_at, completed, completed_at`

// Create inserts a participation.
func (r *ParticipationRepository) Create(ctx context.Context, p *challenge.Participation) error {
	var completedAt any
	if p.CompletedAt != nil {
		completedAt = formatTime(*p.CompletedAt)
	}

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO challenge_participations (challenge_id, student_id, joined_at, completed, completed_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ChallengeID, p.StudentID, formatTime(p.JoinedAt), boolInt(p.Completed), completedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyJoined
		}
		return fmt.Errorf("failed to create participation: %w", err)
	}
	return nil
}

// Get returns a participation.
func (r *ParticipationRepository) Get(ctx context.Context, challengeID, studentID string) (*challenge.Participation, error) {
	return getParticipation(ctx, r.store.db, challengeID, studentID)
}

// MarkCompleted flips completed once; a repeated call reports changed=false.
func (r *ParticipationRepository) MarkCompleted(ctx context.Context, challengeID, studentID string, at time.Time) (*challenge.Participation, bool, error) {
	var (
		p       *challenge.Participation
		changed bool
	)
	err := r.store.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE challenge_participations
			SET completed = 1, completed_at = ?
			WHERE challenge_id = ? AND student_id = ? AND completed = 0
		`, formatTime(at), challengeID, studentID)
		if err != nil {
			return fmt.Errorf("failed to complete participation: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		changed = n == 1

		p, err = getParticipation(ctx, tx, challengeID, studentID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return p, changed, nil
}

// ListByChallenge returns participants in join order.
func (r *ParticipationRepository) ListByChallenge(ctx context.Context, challengeID string) ([]*challenge.Participation, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+participationColumns+`
		FROM challenge_participations
		WHERE challenge_id = ?
		ORDER BY seq
	`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var out []*challenge.Participation
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func getParticipation(ctx context.Context, q querier, challengeID, studentID string) (*challenge.Participation, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+participationColumns+`
		FROM challenge_participations
		WHERE challenge_id = ? AND student_id = ?
	`, challengeID, studentID)

	p, err := scanParticipation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrParticipationNotFound
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipation(row rowScanner) (*challenge.Participation, error) {
	var (
		p           challenge.Participation
		joined      string
		completedAt sql.NullString
	)
	if err := row.Scan(&p.ChallengeID, &p.StudentID, &joined, &p.Completed, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan participation: %w", err)
	}

	var err error
	if p.JoinedAt, err = parseTime(joined); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		p.CompletedAt = &t
	}
	return &p, nil
}
