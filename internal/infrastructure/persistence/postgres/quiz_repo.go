package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ecoquest/ecoquest-progression/internal/domain/quiz"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

// QuizRepository implements quiz.Repository for PostgreSQL.
// Questions are stored as one JSONB document per quiz.
type QuizRepository struct {
	conn *Connection
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(conn *Connection) *QuizRepository {
	return &QuizRepository{conn: conn}
}

type questionRecord struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Points       int      `json:"points"`
}

func encodeQuestions(qs []quiz.Question) ([]byte, error) {
	records := make([]questionRecord, len(qs))
	for i, q := range qs {
		records[i] = questionRecord(q)
	}
	return json.Marshal(records)
}

func decodeQuestions(data []byte) ([]quiz.Question, error) {
	var records []questionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	qs := make([]quiz.Question, len(records))
	for i, r := range records {
		qs[i] = quiz.Question(r)
	}
	return qs, nil
}

// GetByID returns a quiz definition.
func (r *QuizRepository) GetByID(ctx context.Context, id string) (*quiz.Quiz, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT id, title, passing_score, time_limit_minutes, reward_points, questions
		FROM quizzes WHERE id = $1
	`, id)

	q, err := scanQuiz(row)
	if IsNoRows(err) {
		return nil, shared.ErrQuizNotFound
	}
	return q, err
}

// Save validates and upserts a quiz definition.
func (r *QuizRepository) Save(ctx context.Context, q *quiz.Quiz) error {
	if err := q.Validate(); err != nil {
		return err
	}

	questions, err := encodeQuestions(q.Questions)
	if err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO quizzes (id, title, passing_score, time_limit_minutes, reward_points, questions, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			passing_score = EXCLUDED.passing_score,
			time_limit_minutes = EXCLUDED.time_limit_minutes,
			reward_points = EXCLUDED.reward_points,
			questions = EXCLUDED.questions,
			updated_at = NOW()
	`, q.ID, q.Title, q.PassingScore, q.TimeLimitMinutes, q.RewardPoints, questions)
	if err != nil {
		return fmt.Errorf("failed to save quiz: %w", err)
	}
	return nil
}

// List returns all quizzes ordered by id.
func (r *QuizRepository) List(ctx context.Context) ([]*quiz.Quiz, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, title, passing_score, time_limit_minutes, reward_points, questions
		FROM quizzes ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}
	defer rows.Close()

	var out []*quiz.Quiz
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func scanQuiz(row pgx.Row) (*quiz.Quiz, error) {
	var (
		q         quiz.Quiz
		questions []byte
	)
	if err := row.Scan(&q.ID, &q.Title, &q.PassingScore, &q.TimeLimitMinutes, &q.RewardPoints, &questions); err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan quiz: %w", err)
	}

	qs, err := decodeQuestions(questions)
	if err != nil {
		return nil, fmt.Errorf("failed to decode questions of quiz %s: %w", q.ID, err)
	}
	q.Questions = qs
	return &q, nil
}
