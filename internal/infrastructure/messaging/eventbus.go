// Package messaging implements the notification channel the progression
// ledger publishes to after every committed mutation. It provides an
// in-memory bus and a Redis pub/sub bridge for multi-instance deployments.
package messaging

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus is an in-process implementation of shared.EventBus.
// In async mode handlers run on a bounded worker pool and never block the
// publisher; in sync mode Publish returns after every handler has run.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	workerPool  chan struct{}
	logger      *slog.Logger
	metrics     *EventBusMetrics
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode enables asynchronous event processing.
	AsyncMode bool

	// WorkerPoolSize is the number of concurrent handler executions.
	WorkerPoolSize int

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 8,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 8
	}

	return &InMemoryEventBus{
		handlers:   make(map[shared.EventType][]shared.EventHandler),
		asyncMode:  config.AsyncMode,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		logger:     config.Logger.With("component", "event_bus"),
		metrics:    NewEventBusMetrics(),
		closeCh:    make(chan struct{}),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.logger.Debug("subscribed handler", "event_type", eventType)
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish sends an event to all subscribed handlers.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	if b.asyncMode {
		b.wg.Add(len(handlers))
	}
	b.mu.RUnlock()

	b.metrics.RecordPublish(event.EventType())

	for _, handler := range handlers {
		if b.asyncMode {
			go b.executeAsync(event, handler)
			continue
		}
		if err := b.execute(event, handler); err != nil {
			b.logger.Error("handler error", "event_type", event.EventType(), "error", err)
		}
	}

	return nil
}

// executeAsync runs a handler on the worker pool.
func (b *InMemoryEventBus) executeAsync(event shared.Event, handler shared.EventHandler) {
	defer b.wg.Done()

	select {
	case b.workerPool <- struct{}{}:
		defer func() { <-b.workerPool }()
	case <-b.closeCh:
		return
	}

	if err := b.execute(event, handler); err != nil {
		b.logger.Error("async handler error", "event_type", event.EventType(), "error", err)
	}
}

// execute runs a handler, converting a panic into ErrHandlerPanic.
func (b *InMemoryEventBus) execute(event shared.Event, handler shared.EventHandler) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				"event_type", event.EventType(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
		b.metrics.RecordHandlerExecution(time.Since(start), err == nil)
	}()

	return handler(event)
}

// Wait blocks until every async handler dispatched so far has finished.
func (b *InMemoryEventBus) Wait() {
	b.wg.Wait()
}

// Close stops accepting events and waits for in-flight handlers.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	close(b.closeCh)

	b.logger.Info("event bus closed")
	return nil
}

// Metrics returns the bus metrics.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics tracks event bus counters.
type EventBusMetrics struct {
	mu sync.RWMutex

	publishedByType      map[shared.EventType]int64
	handlerExecutions    int64
	handlerFailures      int64
	handlerTotalDuration time.Duration
}

// NewEventBusMetrics creates a metrics tracker.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{publishedByType: make(map[shared.EventType]int64)}
}

// RecordPublish records a published event.
func (m *EventBusMetrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedByType[eventType]++
}

// RecordHandlerExecution records a handler run.
func (m *EventBusMetrics) RecordHandlerExecution(duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlerExecutions++
	m.handlerTotalDuration += duration
	if !success {
		m.handlerFailures++
	}
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := EventBusMetricsSnapshot{
		PublishedByType:   make(map[shared.EventType]int64, len(m.publishedByType)),
		HandlerExecutions: m.handlerExecutions,
		HandlerFailures:   m.handlerFailures,
	}
	for k, v := range m.publishedByType {
		snap.PublishedByType[k] = v
		snap.TotalPublished += v
	}
	if m.handlerExecutions > 0 {
		snap.AverageHandlerDuration = m.handlerTotalDuration / time.Duration(m.handlerExecutions)
	}
	return snap
}

// EventBusMetricsSnapshot is a point-in-time snapshot of metrics.
type EventBusMetricsSnapshot struct {
	TotalPublished         int64                      `json:"total_published"`
	PublishedByType        map[shared.EventType]int64 `json:"published_by_type"`
	HandlerExecutions      int64                      `json:"handler_executions"`
	HandlerFailures        int64                      `json:"handler_failures"`
	AverageHandlerDuration time.Duration              `json:"average_handler_duration_ns"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic is returned when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")
)
