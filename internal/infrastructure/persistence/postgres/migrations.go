package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies embedded migrations and records them in schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			version   int
			appliedAt time.Time
		)
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations and returns how many ran.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return 0, err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}

		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx,
				fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		count++
	}

	return count, nil
}

// Rollback reverts the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			mig = &m.migrations[i]
			break
		}
	}
	if mig == nil || mig.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status returns every migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_students", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_progress", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_challenges_and_quizzes", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS students (
    id TEXT PRIMARY KEY,
    seq BIGSERIAL NOT NULL UNIQUE,
    account_id VARCHAR(128) NOT NULL UNIQUE,
    display_name VARCHAR(100) NOT NULL,
    eco_points INTEGER NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 1,
    version BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_eco_points CHECK (eco_points >= 0),
    CONSTRAINT valid_level CHECK (level >= 1)
);

CREATE INDEX IF NOT EXISTS idx_students_eco_points ON students(eco_points DESC, seq ASC);
`

const migration001Down = `
DROP TABLE IF EXISTS students;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: PROGRESS (lessons, attempts, badges, rewards, ledger)
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS completed_lessons (
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    lesson_id VARCHAR(128) NOT NULL,
    completed_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (student_id, lesson_id)
);

CREATE TABLE IF NOT EXISTS quiz_attempts (
    id TEXT PRIMARY KEY,
    seq BIGSERIAL NOT NULL,
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    quiz_id VARCHAR(128) NOT NULL,
    answers JSONB NOT NULL,
    correct_count INTEGER NOT NULL,
    total_questions INTEGER NOT NULL,
    score_percent INTEGER NOT NULL,
    earned_question_points INTEGER NOT NULL,
    max_question_points INTEGER NOT NULL,
    passed BOOLEAN NOT NULL,
    late BOOLEAN NOT NULL,
    time_taken_seconds INTEGER NOT NULL,
    completed_at TIMESTAMPTZ NOT NULL,

    CONSTRAINT valid_score CHECK (score_percent BETWEEN 0 AND 100)
);

CREATE INDEX IF NOT EXISTS idx_quiz_attempts_student ON quiz_attempts(student_id, seq);

CREATE TABLE IF NOT EXISTS student_badges (
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    badge_id VARCHAR(64) NOT NULL,
    seq BIGSERIAL NOT NULL,
    earned_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (student_id, badge_id)
);

CREATE TABLE IF NOT EXISTS challenge_rewards (
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    challenge_id VARCHAR(128) NOT NULL,
    rewarded_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (student_id, challenge_id)
);

CREATE TABLE IF NOT EXISTS points_ledger (
    id TEXT PRIMARY KEY,
    seq BIGSERIAL NOT NULL,
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    source VARCHAR(32) NOT NULL,
    reference VARCHAR(128) NOT NULL,
    points INTEGER NOT NULL,
    balance_after INTEGER NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,

    CONSTRAINT valid_source CHECK (source IN ('lesson_completion', 'quiz_pass', 'challenge_completion')),
    CONSTRAINT positive_points CHECK (points > 0)
);

CREATE INDEX IF NOT EXISTS idx_points_ledger_student ON points_ledger(student_id, seq DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS points_ledger;
DROP TABLE IF EXISTS challenge_rewards;
DROP TABLE IF EXISTS student_badges;
DROP TABLE IF EXISTS quiz_attempts;
DROP TABLE IF EXISTS completed_lessons;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CHALLENGES AND QUIZ DEFINITIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS challenge_participations (
    challenge_id VARCHAR(128) NOT NULL,
    student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    seq BIGSERIAL NOT NULL,
    joined_at TIMESTAMPTZ NOT NULL,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_at TIMESTAMPTZ,
    PRIMARY KEY (challenge_id, student_id)
);

CREATE TABLE IF NOT EXISTS quizzes (
    id VARCHAR(128) PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    passing_score INTEGER NOT NULL,
    time_limit_minutes INTEGER NOT NULL DEFAULT 0,
    reward_points INTEGER NOT NULL DEFAULT 0,
    questions JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migration003Down = `
DROP TABLE IF EXISTS quizzes;
DROP TABLE IF EXISTS challenge_participations;
`
