package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/leaderboard"
	"github.com/ecoquest/ecoquest-progression/internal/domain/quiz"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
)

// StudentRepository implements student.Repository and
// leaderboard.StandingsSource for SQLite.
type StudentRepository struct {
	store *Store
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(store *Store) *StudentRepository {
	return &StudentRepository{store: store}
}

// Create inserts a new student and assigns its Seq.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	res, err := r.store.db.ExecContext(ctx, `
		INSERT INTO students (id, account_id, display_name, eco_points, level, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.AccountID, s.DisplayName, s.EcoPoints.Int(), s.Level().Int(), s.Version,
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrStudentAlreadyExists
		}
		return fmt.Errorf("failed to create student: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read student seq: %w", err)
	}
	s.Seq = seq
	return nil
}

// GetByID returns the student with its full progression history.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Student, error) {
	return r.load(ctx, "id", id)
}

// GetByAccountID returns the student linked to the account.
func (r *StudentRepository) GetByAccountID(ctx context.Context, accountID string) (*student.Student, error) {
	return r.load(ctx, "account_id", accountID)
}

func (r *StudentRepository) load(ctx context.Context, column, value string) (*student.Student, error) {
	s := &student.Student{
		CompletedLessons: make(map[string]time.Time),
		ChallengeRewards: make(map[string]time.Time),
	}

	var (
		points           int
		created, updated string
	)
	err := r.store.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, seq, account_id, display_name, eco_points, version, created_at, updated_at
		FROM students WHERE %s = ?
	`, column), value).Scan(&s.ID, &s.Seq, &s.AccountID, &s.DisplayName, &points, &s.Version, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	s.EcoPoints = student.EcoPoints(points)
	if s.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}

	if err := r.loadTimes(ctx, `SELECT lesson_id, completed_at FROM completed_lessons WHERE student_id = ?`, s.ID, s.CompletedLessons); err != nil {
		return nil, fmt.Errorf("failed to load lessons: %w", err)
	}
	if err := r.loadTimes(ctx, `SELECT challenge_id, rewarded_at FROM challenge_rewards WHERE student_id = ?`, s.ID, s.ChallengeRewards); err != nil {
		return nil, fmt.Errorf("failed to load challenge rewards: %w", err)
	}
	if err := r.loadBadges(ctx, s); err != nil {
		return nil, err
	}
	if err := r.loadAttempts(ctx, s); err != nil {
		return nil, err
	}

	return s, nil
}

func (r *StudentRepository) loadTimes(ctx context.Context, query, id string, into map[string]time.Time) error {
	rows, err := r.store.db.QueryContext(ctx, query, id)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key, at string
		if err := rows.Scan(&key, &at); err != nil {
			return err
		}
		t, err := parseTime(at)
		if err != nil {
			return err
		}
		into[key] = t
	}
	return rows.Err()
}

func (r *StudentRepository) loadBadges(ctx context.Context, s *student.Student) error {
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT badge_id, earned_at FROM student_badges WHERE student_id = ? ORDER BY seq`, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load badges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b  student.EarnedBadge
			at string
		)
		if err := rows.Scan(&b.BadgeID, &at); err != nil {
			return fmt.Errorf("failed to scan badge: %w", err)
		}
		if b.EarnedAt, err = parseTime(at); err != nil {
			return err
		}
		s.Badges = append(s.Badges, b)
	}
	return rows.Err()
}

func (r *StudentRepository) loadAttempts(ctx context.Context, s *student.Student) error {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, quiz_id, answers, correct_count, total_questions, score_percent,
		       earned_question_points, max_question_points, passed, late,
		       time_taken_seconds, completed_at
		FROM quiz_attempts
		WHERE student_id = ?
		ORDER BY seq
	`, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a := quiz.AttemptResult{StudentID: s.ID}
		var answers, completed string
		if err := rows.Scan(
			&a.ID, &a.QuizID, &answers, &a.CorrectCount, &a.TotalQuestions, &a.ScorePercent,
			&a.EarnedQuestionPoints, &a.MaxQuestionPoints, &a.Passed, &a.Late,
			&a.TimeTakenSeconds, &completed,
		); err != nil {
			return fmt.Errorf("failed to scan attempt: %w", err)
		}
		if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
			return fmt.Errorf("failed to decode answers of attempt %s: %w", a.ID, err)
		}
		if a.CompletedAt, err = parseTime(completed); err != nil {
			return err
		}
		s.QuizAttempts = append(s.QuizAttempts, a)
	}
	return rows.Err()
}

// Save writes pending changes with the new balance and level in one
// transaction, if the stored version still equals s.Version.
func (r *StudentRepository) Save(ctx context.Context, s *student.Student) error {
	changes := s.PendingChanges()

	err := r.store.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE students
			SET eco_points = ?, level = ?, display_name = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`, s.EcoPoints.Int(), s.Level().Int(), s.DisplayName, formatTime(s.UpdatedAt), s.ID, s.Version)
		if err != nil {
			return fmt.Errorf("failed to update student: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return missingOrStale(ctx, tx, s)
		}

		return insertChanges(ctx, tx, s.ID, changes)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", shared.ErrConcurrentModification, err)
		}
		return err
	}

	s.CommitChanges()
	return nil
}

func missingOrStale(ctx context.Context, q querier, s *student.Student) error {
	var version int64
	err := q.QueryRowContext(ctx, `SELECT version FROM students WHERE id = ?`, s.ID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return shared.ErrStudentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read student version: %w", err)
	}
	return fmt.Errorf("%w: student %s has version %d, expected %d",
		shared.ErrConcurrentModification, s.ID, version, s.Version)
}

func insertChanges(ctx context.Context, q querier, studentID string, c student.Changes) error {
	for _, l := range c.Lessons {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO completed_lessons (student_id, lesson_id, completed_at) VALUES (?, ?, ?)`,
			studentID, l.LessonID, formatTime(l.CompletedAt)); err != nil {
			return fmt.Errorf("failed to insert lesson: %w", err)
		}
	}

	for _, a := range c.Attempts {
		answers, err := json.Marshal(a.Answers)
		if err != nil {
			return fmt.Errorf("failed to encode answers: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO quiz_attempts (
				id, student_id, quiz_id, answers, correct_count, total_questions, score_percent,
				earned_question_points, max_question_points, passed, late, time_taken_seconds, completed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, studentID, a.QuizID, string(answers), a.CorrectCount, a.TotalQuestions, a.ScorePercent,
			a.EarnedQuestionPoints, a.MaxQuestionPoints, boolInt(a.Passed), boolInt(a.Late),
			a.TimeTakenSeconds, formatTime(a.CompletedAt),
		); err != nil {
			return fmt.Errorf("failed to insert attempt: %w", err)
		}
	}

	for _, b := range c.Badges {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO student_badges (student_id, badge_id, earned_at) VALUES (?, ?, ?)`,
			studentID, b.BadgeID, formatTime(b.EarnedAt)); err != nil {
			return fmt.Errorf("failed to insert badge: %w", err)
		}
	}

	for _, cr := range c.ChallengeRewards {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO challenge_rewards (student_id, challenge_id, rewarded_at) VALUES (?, ?, ?)`,
			studentID, cr.ChallengeID, formatTime(cr.RewardedAt)); err != nil {
			return fmt.Errorf("failed to insert challenge reward: %w", err)
		}
	}

	for _, e := range c.Ledger {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO points_ledger (id, student_id, source, reference, points, balance_after, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, e.ID, studentID, string(e.Source), e.Reference, e.Points.Int(), e.BalanceAfter.Int(), formatTime(e.CreatedAt),
		); err != nil {
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}
	}

	return nil
}

// ListLedger returns audit entries, newest first, and the total count.
func (r *StudentRepository) ListLedger(ctx context.Context, studentID string, page shared.Pagination) ([]student.LedgerEntry, int, error) {
	var exists bool
	if err := r.store.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM students WHERE id = ?)`, studentID).Scan(&exists); err != nil {
		return nil, 0, fmt.Errorf("failed to check student: %w", err)
	}
	if !exists {
		return nil, 0, shared.ErrStudentNotFound
	}

	var total int
	if err := r.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM points_ledger WHERE student_id = ?`, studentID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger: %w", err)
	}

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, source, reference, points, balance_after, created_at
		FROM points_ledger
		WHERE student_id = ?
		ORDER BY seq DESC
		LIMIT ? OFFSET ?
	`, studentID, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer rows.Close()

	var entries []student.LedgerEntry
	for rows.Next() {
		e := student.LedgerEntry{StudentID: studentID}
		var (
			source, created string
			points, balance int
		)
		if err := rows.Scan(&e.ID, &source, &e.Reference, &points, &balance, &created); err != nil {
			return nil, 0, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, 0, err
		}
		e.Source = student.PointsSource(source)
		e.Points = student.EcoPoints(points)
		e.BalanceAfter = student.EcoPoints(balance)
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// AuditBalances compares every stored balance and level with its ledger sum.
func (r *StudentRepository) AuditBalances(ctx context.Context) ([]student.BalanceAudit, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT s.id, s.eco_points, s.level, COALESCE(SUM(l.points), 0)
		FROM students s
		LEFT JOIN points_ledger l ON l.student_id = s.id
		GROUP BY s.seq
		ORDER BY s.seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to audit balances: %w", err)
	}
	defer rows.Close()

	var audits []student.BalanceAudit
	for rows.Next() {
		var (
			a                  student.BalanceAudit
			points, level, sum int
		)
		if err := rows.Scan(&a.StudentID, &points, &level, &sum); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		a.EcoPoints = student.EcoPoints(points)
		a.StoredLevel = student.Level(level)
		a.LedgerSum = student.EcoPoints(sum)
		audits = append(audits, a)
	}
	return audits, rows.Err()
}

// Standings returns every student in creation order.
func (r *StudentRepository) Standings(ctx context.Context) ([]leaderboard.Standing, error) {
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT id, display_name, eco_points, level, seq FROM students ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to load standings: %w", err)
	}
	defer rows.Close()

	var standings []leaderboard.Standing
	for rows.Next() {
		var st leaderboard.Standing
		if err := rows.Scan(&st.StudentID, &st.DisplayName, &st.EcoPoints, &st.Level, &st.Seq); err != nil {
			return nil, fmt.Errorf("failed to scan standing: %w", err)
		}
		standings = append(standings, st)
	}
	return standings, rows.Err()
}
