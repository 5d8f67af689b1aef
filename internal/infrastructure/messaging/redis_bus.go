package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "ecoquest:progress-events"

// RedisEventBus forwards every local event to a Redis channel and replays
// events published by other instances to local handlers. Events from this
// instance are delivered locally exactly once.
type RedisEventBus struct {
	client      RedisClient
	localBus    *InMemoryEventBus
	channelName string
	instanceID  string
	logger      *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
}

// RedisClient is the subset of pub/sub operations the bridge needs.
// The go-redis adapter lives in persistence/redis.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
	Close() error
}

// RedisMessage represents a message received from Redis pub/sub.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	Client         RedisClient
	ChannelName    string
	InstanceID     string
	LocalBusConfig InMemoryEventBusConfig
	Logger         *slog.Logger
}

// NewRedisEventBus creates the bridge and starts the subscriber.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = DefaultChannel
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	bus := &RedisEventBus{
		client:      config.Client,
		localBus:    NewInMemoryEventBus(config.LocalBusConfig),
		channelName: config.ChannelName,
		instanceID:  config.InstanceID,
		logger:      config.Logger.With("component", "redis_event_bus", "instance_id", config.InstanceID),
		ctx:         ctx,
		cancel:      cancel,
	}

	messages, err := bus.client.Subscribe(ctx, bus.channelName)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start subscriber: %w", err)
	}

	bus.wg.Add(1)
	go func() {
		defer bus.wg.Done()
		bus.subscriptionLoop(messages)
	}()

	return bus, nil
}

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.localBus.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.localBus.SubscribeAll(handler)
}

// Publish delivers the event locally and forwards it to Redis.
// A Redis failure is logged; local delivery still happens.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrEventBusClosed
	}

	data, err := json.Marshal(eventEnvelope{
		InstanceID:  b.instanceID,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.client.Publish(b.ctx, b.channelName, string(data)); err != nil {
		b.logger.Error("failed to publish to redis", "event_type", event.EventType(), "error", err)
	}

	return b.localBus.Publish(event)
}

func (b *RedisEventBus) subscriptionLoop(messages <-chan RedisMessage) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Err != nil {
				b.logger.Error("redis subscription error", "error", msg.Err)
				continue
			}
			b.handleRedisMessage(msg)
		}
	}
}

func (b *RedisEventBus) handleRedisMessage(msg RedisMessage) {
	var envelope eventEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
		b.logger.Error("failed to unmarshal event", "error", err)
		return
	}

	if envelope.InstanceID == b.instanceID {
		return
	}

	event := &RemoteEvent{
		eventType:   envelope.EventType,
		aggregateID: envelope.AggregateID,
		occurredAt:  envelope.OccurredAt,
		payload:     envelope.Payload,
	}
	if err := b.localBus.Publish(event); err != nil {
		b.logger.Error("failed to process remote event", "error", err)
	}
}

// Wait blocks until local async handlers have finished.
func (b *RedisEventBus) Wait() {
	b.localBus.Wait()
}

// Close stops the subscriber and the local bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	if err := b.localBus.Close(); err != nil {
		b.logger.Error("failed to close local bus", "error", err)
	}
	return b.client.Close()
}

// Metrics returns the local bus metrics.
func (b *RedisEventBus) Metrics() *EventBusMetrics {
	return b.localBus.Metrics()
}

// ══════════════════════════════════════════════════════════════════════════════
// ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

type eventEnvelope struct {
	InstanceID  string                 `json:"instance_id"`
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

// RemoteEvent is an event received from another instance.
type RemoteEvent struct {
	eventType   shared.EventType
	aggregateID string
	occurredAt  time.Time
	payload     map[string]interface{}
}

func (e *RemoteEvent) EventType() shared.EventType     { return e.eventType }
func (e *RemoteEvent) AggregateID() string             { return e.aggregateID }
func (e *RemoteEvent) OccurredAt() time.Time           { return e.occurredAt }
func (e *RemoteEvent) Payload() map[string]interface{} { return e.payload }
