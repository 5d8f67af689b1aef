package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ecoquest/ecoquest-progression/internal/domain/challenge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

// ParticipationRepository implements challenge.Repository for PostgreSQL.
// The (challenge_id, student_id) primary key enforces join-once.
type ParticipationRepository struct {
	conn *Connection
}

// NewParticipationRepository creates a new ParticipationRepository.
func NewParticipationRepository(conn *Connection) *ParticipationRepository {
	return &ParticipationRepository{conn: conn}
}

const participationColumns = `challenge_id, student_id, joined_at, completed, completed_at`

// Create inserts a participation.
func (r *ParticipationRepository) Create(ctx context.Context, p *challenge.Participation) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO challenge_participations (challenge_id, student_id, joined_at, completed, completed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ChallengeID, p.StudentID, p.JoinedAt, p.Completed, p.CompletedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyJoined
		}
		return fmt.Errorf("failed to create participation: %w", err)
	}
	return nil
}

// Get returns a participation.
func (r *ParticipationRepository) Get(ctx context.Context, challengeID, studentID string) (*challenge.Participation, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT `+participationColumns+`
		FROM challenge_participations
		WHERE challenge_id = $1 AND student_id = $2
	`, challengeID, studentID)

	p, err := scanParticipation(row)
	if IsNoRows(err) {
		return nil, shared.ErrParticipationNotFound
	}
	return p, err
}

// MarkCompleted flips completed once; a repeated call reports changed=false.
func (r *ParticipationRepository) MarkCompleted(ctx context.Context, challengeID, studentID string, at time.Time) (*challenge.Participation, bool, error) {
	row := r.conn.QueryRow(ctx, `
		UPDATE challenge_participations
		SET completed = TRUE, completed_at = $3
		WHERE challenge_id = $1 AND student_id = $2 AND NOT completed
		RETURNING `+participationColumns,
		challengeID, studentID, at)

	p, err := scanParticipation(row)
	if err == nil {
		return p, true, nil
	}
	if !IsNoRows(err) {
		return nil, false, err
	}

	p, err = r.Get(ctx, challengeID, studentID)
	if err != nil {
		return nil, false, err
	}
	return p, false, nil
}

// ListByChallenge returns participants in join order.
func (r *ParticipationRepository) ListByChallenge(ctx context.Context, challengeID string) ([]*challenge.Participation, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+participationColumns+`
		FROM challenge_participations
		WHERE challenge_id = $1
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

func scanParticipation(row pgx.Row) (*challenge.Participation, error) {
	var p challenge.Participation
	if err := row.Scan(&p.ChallengeID, &p.StudentID, &p.JoinedAt, &p.Completed, &p.CompletedAt); err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan participation: %w", err)
	}
	return &p, nil
}
