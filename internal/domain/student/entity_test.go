package student

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoquest/ecoquest-progression/internal/domain/badge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/quiz"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func testEnv() Env {
	n := 0
	return Env{
		Catalog: badge.DefaultCatalog(),
		Now:     testNow,
		NewID: func() string {
			n++
			return fmt.Sprintf("entry-%d", n)
		},
	}
}

func newTestStudent(t *testing.T) *Student {
	t.Helper()
	s, err := NewStudent(NewStudentParams{ID: "s-1", AccountID: "acc-1", DisplayName: "Aigerim"}, testNow)
	require.NoError(t, err)
	return s
}

func badgeIDs(badges []EarnedBadge) []string {
	ids := make([]string, 0, len(badges))
	for _, b := range badges {
		ids = append(ids, b.BadgeID)
	}
	return ids
}

func TestNewStudent_Validation(t *testing.T) {
	tests := []struct {
		name   string
		params NewStudentParams
	}{
		{"missing id", NewStudentParams{AccountID: "a", DisplayName: "n"}},
		{"blank account", NewStudentParams{ID: "x", AccountID: "  ", DisplayName: "n"}},
		{"blank name", NewStudentParams{ID: "x", AccountID: "a", DisplayName: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStudent(tt.params, testNow)
			assert.True(t, shared.IsValidation(err))
		})
	}

	s := newTestStudent(t)
	assert.Equal(t, EcoPoints(0), s.EcoPoints)
	assert.Equal(t, Level(1), s.Level())
}

func TestCompleteLesson_FirstLessonBadge(t *testing.T) {
	s := newTestStudent(t)

	out, err := s.CompleteLesson(testEnv(), "lesson1", 10)
	require.NoError(t, err)

	assert.False(t, out.Duplicate)
	assert.Equal(t, EcoPoints(10), s.EcoPoints)
	assert.Equal(t, Level(1), s.Level())
	assert.Equal(t, EcoPoints(10), out.PointsAwarded)
	assert.Equal(t, []string{"first_lesson"}, badgeIDs(out.NewBadges))
	assert.Equal(t, testNow, out.NewBadges[0].EarnedAt)

	require.NotNil(t, out.Entry)
	assert.Equal(t, SourceLessonCompletion, out.Entry.Source)
	assert.Equal(t, "lesson1", out.Entry.Reference)
	assert.Equal(t, EcoPoints(10), out.Entry.BalanceAfter)

	changes := s.PendingChanges()
	assert.Len(t, changes.Lessons, 1)
	assert.Len(t, changes.Ledger, 1)
	assert.Len(t, changes.Badges, 1)
}

func TestCompleteLesson_Idempotent(t *testing.T) {
	s := newTestStudent(t)
	env := testEnv()

	_, err := s.CompleteLesson(env, "lesson1", 10)
	require.NoError(t, err)
	s.CommitChanges()
	before := s.Stats()

	out, err := s.CompleteLesson(env, "lesson1", 10)
	require.NoError(t, err)

	assert.True(t, out.Duplicate)
	assert.Empty(t, out.NewBadges)
	assert.Nil(t, out.Entry)
	assert.Equal(t, before, s.Stats())
	assert.True(t, s.PendingChanges().IsEmpty())
}

func TestCompleteLesson_ZeroRewardWritesNoLedgerEntry(t *testing.T) {
	s := newTestStudent(t)

	out, err := s.CompleteLesson(testEnv(), "intro", 0)
	require.NoError(t, err)

	assert.Nil(t, out.Entry)
	assert.Empty(t, s.PendingChanges().Ledger)
	assert.True(t, s.HasCompletedLesson("intro"))
}

func TestCompleteLesson_InvalidInput(t *testing.T) {
	s := newTestStudent(t)

	_, err := s.CompleteLesson(testEnv(), "", 10)
	assert.True(t, shared.IsValidation(err))

	_, err = s.CompleteLesson(testEnv(), "lesson1", -1)
	assert.True(t, shared.IsValidation(err))

	assert.True(t, s.PendingChanges().IsEmpty())
}

func TestCompleteLesson_LevelUp(t *testing.T) {
	s := newTestStudent(t)
	s.EcoPoints = 490

	out, err := s.CompleteLesson(testEnv(), "lesson1", 20)
	require.NoError(t, err)

	assert.Equal(t, Level(1), out.LevelBefore)
	assert.Equal(t, Level(2), out.LevelAfter)
	assert.True(t, out.LeveledUp())
}

func gradedAttempt(id string, score int, passed bool) quiz.AttemptResult {
	return quiz.AttemptResult{
		ID:             id,
		QuizID:         "recycling-101",
		ScorePercent:   score,
		Passed:         passed,
		TotalQuestions: 4,
		Answers:        []quiz.Answer{1, 1, 1, 0},
	}
}

func TestRecordQuizAttempt_PassAwardsPoints(t *testing.T) {
	s := newTestStudent(t)

	out, err := s.RecordQuizAttempt(testEnv(), gradedAttempt("att-1", 75, true), 50)
	require.NoError(t, err)

	assert.Equal(t, EcoPoints(50), s.EcoPoints)
	require.NotNil(t, out.Entry)
	assert.Equal(t, SourceQuizPass, out.Entry.Source)
	assert.Equal(t, "att-1", out.Entry.Reference)
	assert.Equal(t, []string{"first_quiz"}, badgeIDs(out.NewBadges))
	assert.Equal(t, "s-1", s.QuizAttempts[0].StudentID)
}

func TestRecordQuizAttempt_FailAwardsNothing(t *testing.T) {
	s := newTestStudent(t)
	_, err := s.RecordQuizAttempt(testEnv(), gradedAttempt("att-0", 100, true), 0)
	require.NoError(t, err)
	s.CommitChanges()

	out, err := s.RecordQuizAttempt(testEnv(), gradedAttempt("att-1", 25, false), 50)
	require.NoError(t, err)

	assert.Equal(t, EcoPoints(0), s.EcoPoints)
	assert.Nil(t, out.Entry)
	assert.Empty(t, out.NewBadges)
	assert.Len(t, s.QuizAttempts, 2)
}

func TestRecordQuizAttempt_AppendOnly(t *testing.T) {
	s := newTestStudent(t)
	env := testEnv()

	for i := 0; i < 3; i++ {
		before := len(s.QuizAttempts)
		_, err := s.RecordQuizAttempt(env, gradedAttempt(fmt.Sprintf("att-%d", i), 50, false), 10)
		require.NoError(t, err)
		assert.Equal(t, before+1, len(s.QuizAttempts))
	}
	assert.Equal(t, "att-0", s.QuizAttempts[0].ID)
	assert.Equal(t, "att-2", s.QuizAttempts[2].ID)
}

func TestRecordQuizAttempt_ForeignStudent(t *testing.T) {
	s := newTestStudent(t)
	a := gradedAttempt("att-1", 100, true)
	a.StudentID = "someone-else"

	_, err := s.RecordQuizAttempt(testEnv(), a, 10)
	assert.True(t, shared.IsValidation(err))
	assert.Empty(t, s.QuizAttempts)
}

func TestAwardBadges(t *testing.T) {
	s := newTestStudent(t)
	env := testEnv()

	out, err := s.AwardBadges(env, []string{"eco_warrior", "first_lesson"})
	require.NoError(t, err)
	assert.Equal(t, []string{"eco_warrior", "first_lesson"}, badgeIDs(out.NewBadges))

	out, err = s.AwardBadges(env, []string{"first_lesson", "seedling"})
	require.NoError(t, err)
	assert.Equal(t, []string{"seedling"}, badgeIDs(out.NewBadges))

	out, err = s.AwardBadges(env, []string{"seedling"})
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Len(t, s.Badges, 3)
}

func TestAwardBadges_UnknownRejectsWholeRequest(t *testing.T) {
	s := newTestStudent(t)

	_, err := s.AwardBadges(testEnv(), []string{"first_lesson", "no_such_badge"})
	assert.ErrorIs(t, err, shared.ErrUnknownBadge)
	assert.True(t, shared.IsValidation(err))
	assert.Empty(t, s.Badges)
}

func TestBadgesAreNeverRevoked(t *testing.T) {
	s := newTestStudent(t)
	env := testEnv()

	_, err := s.AwardBadges(env, []string{"planet_guardian"})
	require.NoError(t, err)

	_, err = s.CompleteLesson(env, "lesson1", 5)
	require.NoError(t, err)
	_, err = s.RecordQuizAttempt(env, gradedAttempt("att-1", 10, false), 5)
	require.NoError(t, err)

	assert.True(t, s.HasBadge("planet_guardian"))
	assert.Equal(t, "planet_guardian", s.Badges[0].BadgeID)
}

func TestRewardChallenge_PaidOnce(t *testing.T) {
	s := newTestStudent(t)
	env := testEnv()

	out, err := s.RewardChallenge(env, "clean-park", 120)
	require.NoError(t, err)
	require.NotNil(t, out.Entry)
	assert.Equal(t, SourceChallengeCompletion, out.Entry.Source)
	assert.Equal(t, []string{"seedling"}, badgeIDs(out.NewBadges))

	out, err = s.RewardChallenge(env, "clean-park", 120)
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Equal(t, EcoPoints(120), s.EcoPoints)
}

func TestLedgerSumMatchesBalance(t *testing.T) {
	s := newTestStudent(t)
	env := testEnv()

	_, _ = s.CompleteLesson(env, "l1", 10)
	_, _ = s.CompleteLesson(env, "l2", 0)
	_, _ = s.RecordQuizAttempt(env, gradedAttempt("a1", 90, true), 40)
	_, _ = s.RecordQuizAttempt(env, gradedAttempt("a2", 10, false), 40)
	_, _ = s.RewardChallenge(env, "c1", 25)

	var sum EcoPoints
	for _, e := range s.PendingChanges().Ledger {
		sum += e.Points
	}
	assert.Equal(t, s.EcoPoints, sum)
	assert.Equal(t, EcoPoints(75), sum)
}

func TestCommitChanges(t *testing.T) {
	s := newTestStudent(t)
	_, err := s.CompleteLesson(testEnv(), "l1", 10)
	require.NoError(t, err)

	s.CommitChanges()

	assert.True(t, s.PendingChanges().IsEmpty())
	assert.Equal(t, int64(1), s.Version)
}

func TestClone_IsDeep(t *testing.T) {
	s := newTestStudent(t)
	_, err := s.CompleteLesson(testEnv(), "l1", 10)
	require.NoError(t, err)

	c := s.Clone()
	c.CompletedLessons["l2"] = testNow
	c.Badges[0].BadgeID = "changed"

	assert.False(t, s.HasCompletedLesson("l2"))
	assert.Equal(t, "first_lesson", s.Badges[0].BadgeID)
}
