package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoquest/ecoquest-progression/internal/domain/badge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/challenge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/quiz"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
)

var now = time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func env() student.Env {
	return student.Env{Catalog: badge.DefaultCatalog(), Now: now, NewID: uuid.NewString}
}

func mustCreate(t *testing.T, r *StudentRepository, id string) *student.Student {
	t.Helper()
	s, err := student.NewStudent(student.NewStudentParams{ID: id, AccountID: "acc-" + id, DisplayName: "Student " + id}, now)
	require.NoError(t, err)
	require.NoError(t, r.Create(context.Background(), s))
	return s
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer second.Close()

	version, err := second.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)
	assert.NoError(t, second.Ping(context.Background()))
}

func TestStudentRepository_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	r := NewStudentRepository(openStore(t))

	a := mustCreate(t, r, "a")
	b := mustCreate(t, r, "b")
	assert.Less(t, a.Seq, b.Seq)

	dup, err := student.NewStudent(student.NewStudentParams{ID: "c", AccountID: "acc-a", DisplayName: "dup"}, now)
	require.NoError(t, err)
	assert.ErrorIs(t, r.Create(ctx, dup), shared.ErrStudentAlreadyExists)

	_, err = r.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)

	got, err := r.GetByAccountID(ctx, "acc-b")
	require.NoError(t, err)
	assert.Equal(t, "b", got.ID)
	assert.Equal(t, "Student b", got.DisplayName)
	assert.True(t, got.CreatedAt.Equal(now))
}

func TestStudentRepository_SaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := NewStudentRepository(openStore(t))
	mustCreate(t, r, "s1")

	s, err := r.GetByID(ctx, "s1")
	require.NoError(t, err)

	_, err = s.CompleteLesson(env(), "lesson-1", 60)
	require.NoError(t, err)

	q := &quiz.Quiz{
		ID:           "quiz-1",
		PassingScore: 50,
		RewardPoints: 50,
		Questions: []quiz.Question{
			{ID: "q1", Options: []string{"a", "b"}, CorrectIndex: 1, Points: 1},
		},
	}
	result, err := quiz.Grade(q, quiz.Submission{
		AttemptID:   "att-1",
		StudentID:   "s1",
		Answers:     []quiz.Answer{quiz.Choice(1)},
		SubmittedAt: now,
	})
	require.NoError(t, err)
	_, err = s.RecordQuizAttempt(env(), result, 50)
	require.NoError(t, err)
	_, err = s.RewardChallenge(env(), "clean-park", 400)
	require.NoError(t, err)

	require.NoError(t, r.Save(ctx, s))
	assert.True(t, s.PendingChanges().IsEmpty())

	got, err := r.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 510, got.EcoPoints.Int())
	assert.Equal(t, 2, got.Level().Int())
	assert.Equal(t, s.Version, got.Version)
	assert.True(t, got.HasCompletedLesson("lesson-1"))
	require.Len(t, got.QuizAttempts, 1)
	assert.Equal(t, "att-1", got.QuizAttempts[0].ID)
	assert.True(t, got.QuizAttempts[0].Passed)
	assert.Equal(t, []quiz.Answer{quiz.Choice(1)}, got.QuizAttempts[0].Answers)
	assert.Contains(t, got.ChallengeRewards, "clean-park")
	assert.True(t, got.HasBadge("first_lesson"))
	assert.True(t, got.HasBadge("eco_warrior"))

	entries, total, err := r.ListLedger(ctx, "s1", shared.NewPagination(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, entries, 2)
	assert.Equal(t, student.PointsSource("challenge_completion"), entries[0].Source)
	assert.Equal(t, 510, entries[0].BalanceAfter.Int())

	audits, err := r.AuditBalances(ctx)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.False(t, audits[0].Drift())
}

func TestStudentRepository_SaveRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	r := NewStudentRepository(openStore(t))
	mustCreate(t, r, "s1")

	first, err := r.GetByID(ctx, "s1")
	require.NoError(t, err)
	second, err := r.GetByID(ctx, "s1")
	require.NoError(t, err)

	_, err = first.CompleteLesson(env(), "lesson-1", 10)
	require.NoError(t, err)
	require.NoError(t, r.Save(ctx, first))

	_, err = second.CompleteLesson(env(), "lesson-2", 10)
	require.NoError(t, err)
	err = r.Save(ctx, second)
	assert.True(t, shared.IsConcurrentModification(err))

	got, err := r.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.EcoPoints.Int())
	assert.False(t, got.HasCompletedLesson("lesson-2"))

	missing := &student.Student{ID: "ghost"}
	assert.ErrorIs(t, r.Save(ctx, missing), shared.ErrStudentNotFound)
}

func TestStudentRepository_Standings(t *testing.T) {
	ctx := context.Background()
	r := NewStudentRepository(openStore(t))
	mustCreate(t, r, "a")
	mustCreate(t, r, "b")

	s, err := r.GetByID(ctx, "b")
	require.NoError(t, err)
	_, err = s.CompleteLesson(env(), "lesson-1", 120)
	require.NoError(t, err)
	require.NoError(t, r.Save(ctx, s))

	standings, err := r.Standings(ctx)
	require.NoError(t, err)
	require.Len(t, standings, 2)
	assert.Equal(t, "a", standings[0].StudentID)
	assert.Equal(t, 120, standings[1].EcoPoints)
	assert.Equal(t, 1, standings[1].Level)

	_, _, err = r.ListLedger(ctx, "missing", shared.NewPagination(1, 10))
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}

func TestParticipationRepository_JoinOnceCompleteOnce(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	mustCreate(t, NewStudentRepository(store), "s1")

	tracker := challenge.NewTracker(NewParticipationRepository(store), func() time.Time { return now })

	p, err := tracker.Join(ctx, "s1", "clean-park")
	require.NoError(t, err)
	assert.False(t, p.Completed)

	_, err = tracker.Join(ctx, "s1", "clean-park")
	assert.ErrorIs(t, err, shared.ErrAlreadyJoined)

	_, _, err = tracker.MarkCompleted(ctx, "s1", "plant-trees")
	assert.ErrorIs(t, err, shared.ErrNotJoined)

	p, first, err := tracker.MarkCompleted(ctx, "s1", "clean-park")
	require.NoError(t, err)
	assert.True(t, first)
	require.NotNil(t, p.CompletedAt)
	assert.True(t, p.CompletedAt.Equal(now))

	_, first, err = tracker.MarkCompleted(ctx, "s1", "clean-park")
	require.NoError(t, err)
	assert.False(t, first)

	list, err := tracker.ListParticipants(ctx, "clean-park")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Completed)
}

func TestQuizRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	r := NewQuizRepository(openStore(t))

	q := &quiz.Quiz{
		ID:               "recycling",
		Title:            "Recycling basics",
		PassingScore:     70,
		TimeLimitMinutes: 10,
		RewardPoints:     50,
		Questions: []quiz.Question{
			{ID: "q1", Prompt: "Glass?", Options: []string{"green bin", "blue bin"}, CorrectIndex: 0, Points: 2},
		},
	}
	require.NoError(t, r.Save(ctx, q))

	q.Title = "Recycling 101"
	require.NoError(t, r.Save(ctx, q))

	got, err := r.GetByID(ctx, "recycling")
	require.NoError(t, err)
	assert.Equal(t, q, got)

	_, err = r.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, shared.ErrQuizNotFound)

	err = r.Save(ctx, &quiz.Quiz{ID: "empty", PassingScore: 50})
	assert.ErrorIs(t, err, shared.ErrInvalidQuizDefinition)

	all, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
