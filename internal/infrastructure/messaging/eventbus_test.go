package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

var at = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventPointsAwarded, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewPointsAwardedEvent("s-1", 10, 10, "lesson_completion", "l1", at)))
	require.NoError(t, bus.Publish(shared.NewBadgeEarnedEvent("s-1", "first_lesson", at)))

	assert.Equal(t, []shared.EventType{shared.EventPointsAwarded}, typed)
	assert.Equal(t, []shared.EventType{shared.EventPointsAwarded, shared.EventBadgeEarned}, all)
	assert.Equal(t, int64(2), bus.Metrics().Snapshot().TotalPublished)
}

func TestInMemoryEventBus_AsyncDeliveryAndWait(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})
	defer bus.Close()

	var calls atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventLessonCompleted, func(shared.Event) error {
		calls.Add(1)
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(shared.NewLessonCompletedEvent("s-1", "l1", 10, at)))
	}
	bus.Wait()

	assert.Equal(t, int32(10), calls.Load())
}

func TestInMemoryEventBus_HandlerPanicIsContained(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: false})
	defer bus.Close()

	reached := false
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		reached = true
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("s-1", 1, 2, at)))
	assert.True(t, reached)
	assert.Equal(t, int64(1), bus.Metrics().Snapshot().HandlerFailures)
}

func TestInMemoryEventBus_Closed(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(shared.NewLevelUpEvent("s-1", 1, 2, at)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

// fakeRedis delivers published messages to every subscriber, like a single
// Redis channel shared by several instances.
type fakeRedis struct {
	mu        sync.Mutex
	subs      []chan RedisMessage
	published []string
}

func (f *fakeRedis) Publish(_ context.Context, channel, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, message)
	for _, ch := range f.subs {
		ch <- RedisMessage{Channel: channel, Payload: message}
	}
	return nil
}

func (f *fakeRedis) Subscribe(_ context.Context, _ ...string) (<-chan RedisMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan RedisMessage, 16)
	f.subs = append(f.subs, ch)
	return ch, nil
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisEventBus_ReplaysRemoteEventsOnce(t *testing.T) {
	redis := &fakeRedis{}
	syncLocal := InMemoryEventBusConfig{AsyncMode: false}

	a, err := NewRedisEventBus(RedisEventBusConfig{Client: redis, InstanceID: "a", LocalBusConfig: syncLocal})
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedisEventBus(RedisEventBusConfig{Client: redis, InstanceID: "b", LocalBusConfig: syncLocal})
	require.NoError(t, err)
	defer b.Close()

	var onA, onB atomic.Int32
	require.NoError(t, a.Subscribe(shared.EventPointsAwarded, func(shared.Event) error { onA.Add(1); return nil }))
	received := make(chan shared.Event, 1)
	require.NoError(t, b.Subscribe(shared.EventPointsAwarded, func(e shared.Event) error {
		onB.Add(1)
		received <- e
		return nil
	}))

	require.NoError(t, a.Publish(shared.NewPointsAwardedEvent("s-9", 25, 125, "quiz_pass", "att-1", at)))

	select {
	case e := <-received:
		assert.Equal(t, "s-9", e.AggregateID())
		assert.Equal(t, at, e.OccurredAt().UTC())
	case <-time.After(2 * time.Second):
		t.Fatal("remote event was not delivered")
	}

	assert.Eventually(t, func() bool { return onA.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), onB.Load())

	var env eventEnvelope
	require.Len(t, redis.published, 1)
	require.NoError(t, json.Unmarshal([]byte(redis.published[0]), &env))
	assert.Equal(t, "a", env.InstanceID)
	assert.Equal(t, shared.EventPointsAwarded, env.EventType)
}

func TestNewRedisEventBus_RequiresClient(t *testing.T) {
	_, err := NewRedisEventBus(RedisEventBusConfig{})
	assert.Error(t, err)
}
