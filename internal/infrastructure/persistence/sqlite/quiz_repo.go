package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/quiz"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

// QuizRepository implements quiz.Repository for SQLite.
// Questions are stored as a JSON text column.
type QuizRepository struct {
	store *Store
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(store *Store) *QuizRepository {
	return &QuizRepository{store: store}
}

type questionRecord struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Points       int      `json:"points"`
}

// GetByID returns a quiz definition.
func (r *QuizRepository) GetByID(ctx context.Context, id string) (*quiz.Quiz, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT id, title, passing_score, time_limit_minutes, reward_points, questions
		FROM quizzes WHERE id = ?
	`, id)

	q, err := scanQuiz(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrQuizNotFound
	}
	return q, err
}

// Save validates and upserts a quiz definition.
func (r *QuizRepository) Save(ctx context.Context, q *quiz.Quiz) error {
	if err := q.Validate(); err != nil {
		return err
	}

	records := make([]questionRecord, len(q.Questions))
	for i, question := range q.Questions {
		records[i] = questionRecord(question)
	}
	questions, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}

	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO quizzes (id, title, passing_score, time_limit_minutes, reward_points, questions, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			passing_score = excluded.passing_score,
			time_limit_minutes = excluded.time_limit_minutes,
			reward_points = excluded.reward_points,
			questions = excluded.questions,
			updated_at = excluded.updated_at
	`, q.ID, q.Title, q.PassingScore, q.TimeLimitMinutes, q.RewardPoints, string(questions), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save quiz: %w", err)
	}
	return nil
}

// List returns all quizzes ordered by id.
func (r *QuizRepository) List(ctx context.Context) ([]*quiz.Quiz, error) {
	rows, err := r.store.db.QueryContext(ctx, `
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

func scanQuiz(row rowScanner) (*quiz.Quiz, error) {
	var (
		q         quiz.Quiz
		questions string
	)
	if err := row.Scan(&q.ID, &q.Title, &q.PassingScore, &q.TimeLimitMinutes, &q.RewardPoints, &questions); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan quiz: %w", err)
	}

	var records []questionRecord
	if err := json.Unmarshal([]byte(questions), &records); err != nil {
		return nil, fmt.Errorf("failed to decode questions of quiz %s: %w", q.ID, err)
	}
	q.Questions = make([]quiz.Question, len(records))
	for i, rec := range records {
		q.Questions[i] = quiz.Question(rec)
	}
	return &q, nil
}
