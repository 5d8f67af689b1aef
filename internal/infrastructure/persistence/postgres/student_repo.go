package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ecoquest/ecoquest-progression/internal/domain/leaderboard"
	"github.com/ecoquest/ecoquest-progression/internal/domain/quiz"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository and
// leaderboard.StandingsSource for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

// Create inserts a new student and assigns its Seq.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	query := `
		INSERT INTO students (id, account_id, display_name, eco_points, level, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq
	`

	err := r.conn.QueryRow(ctx, query,
		s.ID,
		s.AccountID,
		s.DisplayName,
		s.EcoPoints.Int(),
		s.Level().Int(),
		s.Version,
		s.CreatedAt,
		s.UpdatedAt,
	).Scan(&s.Seq)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrStudentAlreadyExists
		}
		return fmt.Errorf("failed to create student: %w", err)
	}

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
	query := fmt.Sprintf(`
		SELECT id, seq, account_id, display_name, eco_points, version, created_at, updated_at
		FROM students
		WHERE %s = $1
	`, column)

	s := &student.Student{
		CompletedLessons: make(map[string]time.Time),
		ChallengeRewards: make(map[string]time.Time),
	}
	var points int
	err := r.conn.QueryRow(ctx, query, value).Scan(
		&s.ID, &s.Seq, &s.AccountID, &s.DisplayName, &points, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	s.EcoPoints = student.EcoPoints(points)

	if err := r.loadLessons(ctx, s); err != nil {
		return nil, err
	}
	if err := r.loadAttempts(ctx, s); err != nil {
		return nil, err
	}
	if err := r.loadBadges(ctx, s); err != nil {
		return nil, err
	}
	if err := r.loadRewards(ctx, s); err != nil {
		return nil, err
	}

	return s, nil
}

func (r *StudentRepository) loadLessons(ctx context.Context, s *student.Student) error {
	rows, err := r.conn.Query(ctx,
		`SELECT lesson_id, completed_at FROM completed_lessons WHERE student_id = $1`, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load lessons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			at time.Time
		)
		if err := rows.Scan(&id, &at); err != nil {
			return fmt.Errorf("failed to scan lesson: %w", err)
		}
		s.CompletedLessons[id] = at
	}
	return rows.Err()
}

func (r *StudentRepository) loadAttempts(ctx context.Context, s *student.Student) error {
	rows, err := r.conn.Query(ctx, `
		SELECT id, quiz_id, answers, correct_count, total_questions, score_percent,
		       earned_question_points, max_question_points, passed, late,
		       time_taken_seconds, completed_at
		FROM quiz_attempts
		WHERE student_id = $1
		ORDER BY seq
	`, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a := quiz.AttemptResult{StudentID: s.ID}
		var answers []byte
		if err := rows.Scan(
			&a.ID, &a.QuizID, &answers, &a.CorrectCount, &a.TotalQuestions, &a.ScorePercent,
			&a.EarnedQuestionPoints, &a.MaxQuestionPoints, &a.Passed, &a.Late,
			&a.TimeTakenSeconds, &a.CompletedAt,
		); err != nil {
			return fmt.Errorf("failed to scan attempt: %w", err)
		}
		if err := json.Unmarshal(answers, &a.Answers); err != nil {
			return fmt.Errorf("failed to decode answers of attempt %s: %w", a.ID, err)
		}
		s.QuizAttempts = append(s.QuizAttempts, a)
	}
	return rows.Err()
}

func (r *StudentRepository) loadBadges(ctx context.Context, s *student.Student) error {
	rows, err := r.conn.Query(ctx,
		`SELECT badge_id, earned_at FROM student_badges WHERE student_id = $1 ORDER BY seq`, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load badges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b student.EarnedBadge
		if err := rows.Scan(&b.BadgeID, &b.EarnedAt); err != nil {
			return fmt.Errorf("failed to scan badge: %w", err)
		}
		s.Badges = append(s.Badges, b)
	}
	return rows.Err()
}

func (r *StudentRepository) loadRewards(ctx context.Context, s *student.Student) error {
	rows, err := r.conn.Query(ctx,
		`SELECT challenge_id, rewarded_at FROM challenge_rewards WHERE student_id = $1`, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load challenge rewards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			at time.Time
		)
		if err := rows.Scan(&id, &at); err != nil {
			return fmt.Errorf("failed to scan challenge reward: %w", err)
		}
		s.ChallengeRewards[id] = at
	}
	return rows.Err()
}

// Save writes pending changes together with the new balance and level in
// one transaction, if the stored version still equals s.Version.
func (r *StudentRepository) Save(ctx context.Context, s *student.Student) error {
	changes := s.PendingChanges()

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE students
			SET eco_points = $1, level = $2, display_name = $3, version = version + 1, updated_at = $4
			WHERE id = $5 AND version = $6
		`, s.EcoPoints.Int(), s.Level().Int(), s.DisplayName, s.UpdatedAt, s.ID, s.Version)
		if err != nil {
			return fmt.Errorf("failed to update student: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.missingOrStale(ctx, tx, s)
		}

		return insertChanges(ctx, tx, s.ID, changes)
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", shared.ErrConcurrentModification, err)
		}
		return err
	}

	s.CommitChanges()
	return nil
}

func (r *StudentRepository) missingOrStale(ctx context.Context, q Querier, s *student.Student) error {
	var version int64
	err := q.QueryRow(ctx, `SELECT version FROM students WHERE id = $1`, s.ID).Scan(&version)
	if IsNoRows(err) {
		return shared.ErrStudentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read student version: %w", err)
	}
	return fmt.Errorf("%w: student %s has version %d, expected %d",
		shared.ErrConcurrentModification, s.ID, version, s.Version)
}

func insertChanges(ctx context.Context, q Querier, studentID string, c student.Changes) error {
	for _, l := range c.Lessons {
		if _, err := q.Exec(ctx,
			`INSERT INTO completed_lessons (student_id, lesson_id, completed_at) VALUES ($1, $2, $3)`,
			studentID, l.LessonID, l.CompletedAt); err != nil {
			return fmt.Errorf("failed to insert lesson: %w", err)
		}
	}

	for _, a := range c.Attempts {
		answers, err := json.Marshal(a.Answers)
		if err != nil {
			return fmt.Errorf("failed to encode answers: %w", err)
		}
		if _, err := q.Exec(ctx, `
			INSERT INTO quiz_attempts (
				id, student_id, quiz_id, answers, correct_count, total_questions, score_percent,
				earned_question_points, max_question_points, passed, late, time_taken_seconds, completed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, a.ID, studentID, a.QuizID, answers, a.CorrectCount, a.TotalQuestions, a.ScorePercent,
			a.EarnedQuestionPoints, a.MaxQuestionPoints, a.Passed, a.Late, a.TimeTakenSeconds, a.CompletedAt,
		); err != nil {
			return fmt.Errorf("failed to insert attempt: %w", err)
		}
	}

	for _, b := range c.Badges {
		if _, err := q.Exec(ctx,
			`INSERT INTO student_badges (student_id, badge_id, earned_at) VALUES ($1, $2, $3)`,
			studentID, b.BadgeID, b.EarnedAt); err != nil {
			return fmt.Errorf("failed to insert badge: %w", err)
		}
	}

	for _, cr := range c.ChallengeRewards {
		if _, err := q.Exec(ctx,
			`INSERT INTO challenge_rewards (student_id, challenge_id, rewarded_at) VALUES ($1, $2, $3)`,
			studentID, cr.ChallengeID, cr.RewardedAt); err != nil {
			return fmt.Errorf("failed to insert challenge reward: %w", err)
		}
	}

	for _, e := range c.Ledger {
		if _, err := q.Exec(ctx, `
			INSERT INTO points_ledger (id, student_id, source, reference, points, balance_after, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, e.ID, studentID, string(e.Source), e.Reference, e.Points.Int(), e.BalanceAfter.Int(), e.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// ListLedger returns audit entries, newest first, and the total count.
func (r *StudentRepository) ListLedger(ctx context.Context, studentID string, page shared.Pagination) ([]student.LedgerEntry, int, error) {
	exists, err := r.exists(ctx, studentID)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, shared.ErrStudentNotFound
	}

	var total int
	if err := r.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM points_ledger WHERE student_id = $1`, studentID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger: %w", err)
	}

	rows, err := r.conn.Query(ctx, `
		SELECT id, source, reference, points, balance_after, created_at
		FROM points_ledger
		WHERE student_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3
	`, studentID, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list ledger: %w", err)
	}
	defer rows.Close()

	var entries []student.LedgerEntry
	for rows.Next() {
		e := student.LedgerEntry{StudentID: studentID}
		var (
			source          string
			points, balance int
		)
		if err := rows.Scan(&e.ID, &source, &e.Reference, &points, &balance, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Source = student.PointsSource(source)
		e.Points = student.EcoPoints(points)
		e.BalanceAfter = student.EcoPoints(balance)
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (r *StudentRepository) exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM students WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check student: %w", err)
	}
	return ok, nil
}

// AuditBalances compares every stored balance and level with its ledger sum.
func (r *StudentRepository) AuditBalances(ctx context.Context) ([]student.BalanceAudit, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT s.id, s.eco_points, s.level, COALESCE(SUM(l.points), 0)
		FROM students s
		LEFT JOIN points_ledger l ON l.student_id = s.id
		GROUP BY s.id, s.eco_points, s.level, s.seq
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
	rows, err := r.conn.Query(ctx, `
		SELECT id, display_name, eco_points, level, seq
		FROM students
		ORDER BY seq
	`)
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
