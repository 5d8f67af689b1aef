package eventhandler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoquest/ecoquest-progression/internal/domain/leaderboard"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/infrastructure/messaging"
)

var at = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type countingCache struct {
	mu          sync.Mutex
	invalidated int
	err         error
}

func (c *countingCache) Get(context.Context) ([]leaderboard.Entry, error) {
	return nil, leaderboard.ErrCacheMiss
}

func (c *countingCache) Generation(context.Context) (int64, error) { return 0, nil }

func (c *countingCache) Set(context.Context, int64, []leaderboard.Entry, time.Duration) (bool, error) {
	return true, nil
}

func (c *countingCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	return c.err
}

func TestLeaderboardInvalidator_OnRankingEvents(t *testing.T) {
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	cache := &countingCache{}
	require.NoError(t, NewLeaderboardInvalidator(cache, nil).Register(bus))

	require.NoError(t, bus.Publish(shared.NewStudentRegisteredEvent("s-1", "acc-1", "Dana", at)))
	require.NoError(t, bus.Publish(shared.NewPointsAwardedEvent("s-1", 10, 10, "lesson_completion", "l1", at)))
	require.NoError(t, bus.Publish(shared.NewBadgeEarnedEvent("s-1", "first_lesson", at)))
	require.NoError(t, bus.Publish(shared.NewLessonCompletedEvent("s-1", "l1", 10, at)))

	assert.Equal(t, 2, cache.invalidated)
}

func TestLeaderboardInvalidator_CacheErrorIsSwallowed(t *testing.T) {
	cache := &countingCache{err: errors.New("redis down")}
	h := NewLeaderboardInvalidator(cache, nil)

	err := h.Handle(shared.NewPointsAwardedEvent("s-1", 10, 10, "lesson_completion", "l1", at))
	assert.NoError(t, err)
	assert.Equal(t, 1, cache.invalidated)
}

func TestProgressLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()
	require.NoError(t, NewProgressLogger(logger).Register(bus))

	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("s-1", 1, 2, at)))
	require.NoError(t, bus.Publish(shared.NewBadgeEarnedEvent("s-1", "eco_warrior", at)))

	out := buf.String()
	assert.Contains(t, out, "student leveled up")
	assert.Contains(t, out, "new_level=2")
	assert.Contains(t, out, "badge_id=eco_warrior")
}
