package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoquest/ecoquest-progression/internal/domain/badge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/leaderboard"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
	"github.com/ecoquest/ecoquest-progression/internal/infrastructure/persistence/memory"
	"github.com/ecoquest/ecoquest-progression/pkg/circuitbreaker"
	"github.com/ecoquest/ecoquest-progression/pkg/timeutil"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type staticSource struct {
	standings []leaderboard.Standing
	calls     int
}

func (s *staticSource) Standings(context.Context) ([]leaderboard.Standing, error) {
	s.calls++
	return s.standings, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries []leaderboard.Entry
	ttl     time.Duration
	gen     int64
	err     error
}

func (c *fakeCache) Get(context.Context) ([]leaderboard.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if c.entries == nil {
		return nil, leaderboard.ErrCacheMiss
	}
	return c.entries, nil
}

func (c *fakeCache) Generation(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	return c.gen, nil
}

func (c *fakeCache) Set(_ context.Context, gen int64, entries []leaderboard.Entry, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if gen != c.gen {
		return false, nil
	}
	c.entries, c.ttl = entries, ttl
	return true, nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = nil
	return nil
}

// committingSource отдаёт снимок, после чего "коммитит" начисление
// и инвалидирует кеш, как это делает обработчик points_awarded.
type committingSource struct {
	cache  *fakeCache
	points int
	commit bool
}

func (s *committingSource) Standings(ctx context.Context) ([]leaderboard.Standing, error) {
	snapshot := []leaderboard.Standing{{StudentID: "s-1", DisplayName: "Dana", EcoPoints: s.points, Seq: 1}}
	if s.commit {
		s.commit = false
		s.points = 600
		if err := s.cache.Invalidate(ctx); err != nil {
			return nil, err
		}
	}
	return snapshot, nil
}

func population(n int) []leaderboard.Standing {
	out := make([]leaderboard.Standing, n)
	for i := range out {
		out[i] = leaderboard.Standing{
			StudentID: fmt.Sprintf("s-%03d", i),
			EcoPoints: i * 10,
			Seq:       int64(i + 1),
		}
	}
	return out
}

func TestGetLeaderboard_TieBreakByCreation(t *testing.T) {
	source := &staticSource{standings: []leaderboard.Standing{
		{StudentID: "first", EcoPoints: 300, Seq: 1},
		{StudentID: "second", EcoPoints: 300, Seq: 2},
		{StudentID: "third", EcoPoints: 500, Seq: 3},
	}}
	h := NewGetLeaderboardHandler(source, nil, nil, GetLeaderboardConfig{Clock: timeutil.Fixed(now)})

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{})
	require.NoError(t, err)

	require.Len(t, res.Entries, 3)
	assert.Equal(t, "third", res.Entries[0].StudentID)
	assert.Equal(t, "first", res.Entries[1].StudentID)
	assert.Equal(t, "second", res.Entries[2].StudentID)
	assert.Equal(t, leaderboard.Rank(3), res.Entries[2].Rank)
	assert.Equal(t, now, res.GeneratedAt)
}

func TestGetLeaderboard_Limits(t *testing.T) {
	h := NewGetLeaderboardHandler(&staticSource{standings: population(150)}, nil, nil, GetLeaderboardConfig{})
	ctx := context.Background()

	tests := []struct {
		limit int
		want  int
	}{
		{0, 20},
		{5, 5},
		{100, 100},
		{500, 100},
	}
	for _, tt := range tests {
		res, err := h.Handle(ctx, GetLeaderboardQuery{Limit: tt.limit})
		require.NoError(t, err)
		assert.Len(t, res.Entries, tt.want, "limit=%d", tt.limit)
	}

	_, err := h.Handle(ctx, GetLeaderboardQuery{Limit: -1})
	assert.True(t, shared.IsValidation(err))
}

func TestGetLeaderboard_CacheMissThenHit(t *testing.T) {
	source := &staticSource{standings: population(150)}
	cache := &fakeCache{}
	h := NewGetLeaderboardHandler(source, cache, circuitbreaker.CacheBreaker(nil), GetLeaderboardConfig{CacheTTL: time.Minute})
	ctx := context.Background()

	first, err := h.Handle(ctx, GetLeaderboardQuery{Limit: 10})
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Len(t, cache.entries, 100)
	assert.Equal(t, time.Minute, cache.ttl)

	second, err := h.Handle(ctx, GetLeaderboardQuery{Limit: 10})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Entries, second.Entries)
	assert.Equal(t, 1, source.calls)

	require.NoError(t, cache.Invalidate(ctx))
	_, err = h.Handle(ctx, GetLeaderboardQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestGetLeaderboard_InvalidationDuringRefreshIsNotOverwritten(t *testing.T) {
	cache := &fakeCache{}
	source := &committingSource{cache: cache, commit: true}
	h := NewGetLeaderboardHandler(source, cache, nil, GetLeaderboardConfig{})
	ctx := context.Background()

	first, err := h.Handle(ctx, GetLeaderboardQuery{})
	require.NoError(t, err)
	require.Len(t, first.Entries, 1)
	assert.Equal(t, 0, first.Entries[0].EcoPoints)
	assert.Nil(t, cache.entries, "snapshot taken before the commit must not be cached")

	second, err := h.Handle(ctx, GetLeaderboardQuery{})
	require.NoError(t, err)
	assert.False(t, second.FromCache)
	require.Len(t, second.Entries, 1)
	assert.Equal(t, 600, second.Entries[0].EcoPoints)

	third, err := h.Handle(ctx, GetLeaderboardQuery{})
	require.NoError(t, err)
	assert.True(t, third.FromCache)
	assert.Equal(t, 600, third.Entries[0].EcoPoints)
}

func TestGetLeaderboard_CacheFailureFallsBackAndOpensBreaker(t *testing.T) {
	source := &staticSource{standings: population(3)}
	cache := &fakeCache{err: errors.New("connection refused")}
	breaker := circuitbreaker.CacheBreaker(nil)
	h := NewGetLeaderboardHandler(source, cache, breaker, GetLeaderboardConfig{})

	for i := 0; i < 3; i++ {
		res, err := h.Handle(context.Background(), GetLeaderboardQuery{})
		require.NoError(t, err)
		assert.Len(t, res.Entries, 3)
	}
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())
}

func registerWithPoints(t *testing.T, repo *memory.StudentRepository, id string, points int) {
	t.Helper()
	ctx := context.Background()
	s, err := student.NewStudent(student.NewStudentParams{ID: id, AccountID: "acc-" + id, DisplayName: "Name " + id}, now)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, s))

	env := student.Env{Catalog: badge.DefaultCatalog(), Now: now, NewID: func() string { return id + "-entry" }}
	if points > 0 {
		_, err = s.CompleteLesson(env, "lesson1", student.EcoPoints(points))
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, s))
	}
}

func TestGetStudentStats(t *testing.T) {
	repo := memory.NewStudentRepository()
	registerWithPoints(t, repo, "s-1", 750)
	h := NewGetStudentStatsHandler(repo, nil)

	dto, err := h.Handle(context.Background(), GetStudentStatsQuery{StudentID: "s-1"})
	require.NoError(t, err)
	assert.Equal(t, 750, dto.EcoPoints)
	assert.Equal(t, 2, dto.Level)
	assert.Equal(t, 1000, dto.NextLevelAt)
	assert.InDelta(t, 50.0, dto.ProgressPercent, 0.001)
	assert.Equal(t, 1, dto.CompletedLessons)

	names := make([]string, 0, len(dto.Badges))
	for _, b := range dto.Badges {
		names = append(names, b.ID)
		assert.NotEqual(t, b.ID, b.Name)
	}
	assert.Equal(t, []string{"first_lesson", "seedling", "eco_warrior"}, names)

	byAccount, err := h.Handle(context.Background(), GetStudentStatsQuery{AccountID: "acc-s-1"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", byAccount.StudentID)

	_, err = h.Handle(context.Background(), GetStudentStatsQuery{StudentID: "nope"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(context.Background(), GetStudentStatsQuery{})
	assert.True(t, shared.IsValidation(err))
}

func TestGetPointsHistory(t *testing.T) {
	repo := memory.NewStudentRepository()
	registerWithPoints(t, repo, "s-1", 40)
	h := NewGetPointsHistoryHandler(repo)

	res, err := h.Handle(context.Background(), GetPointsHistoryQuery{StudentID: "s-1"})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, 1, res.Total)
	assert.False(t, res.HasMore)
	assert.Equal(t, "lesson_completion", res.Entries[0].Source)
	assert.Equal(t, 40, res.Entries[0].BalanceAfter)
	assert.Equal(t, "2026-05-01T12:00:00Z", res.Entries[0].CreatedAt)
}

func TestListBadges_CatalogOrder(t *testing.T) {
	defs := NewListBadgesHandler(nil).Handle()

	require.Len(t, defs, badge.DefaultCatalog().Len())
	assert.Equal(t, "first_lesson", defs[0].ID)
	assert.Equal(t, "lessons_completed", defs[0].Rule)
}
