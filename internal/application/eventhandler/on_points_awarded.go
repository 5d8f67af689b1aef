// Package eventhandler содержит обработчики доменных событий.
// Обработчики реагируют на уже зафиксированные изменения прогресса
// и выполняют побочные эффекты: сброс кешей и журналирование.
//
// События могут прийти как из локальной шины, так и с другого инстанса
// через Redis, поэтому обработчики опираются на EventType и Payload,
// а не на конкретный Go-тип события.
package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/leaderboard"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// LEADERBOARD INVALIDATION HANDLER
// Сбрасывает закешированный рейтинг после начисления очков или
// регистрации нового студента.
// ═══════════════════════════════════════════════════════════════════════════

// LeaderboardInvalidator удаляет устаревший рейтинг из кеша.
type LeaderboardInvalidator struct {
	cache   leaderboard.Cache
	timeout time.Duration
	logger  *slog.Logger
}

// NewLeaderboardInvalidator создаёт обработчик.
func NewLeaderboardInvalidator(cache leaderboard.Cache, logger *slog.Logger) *LeaderboardInvalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaderboardInvalidator{
		cache:   cache,
		timeout: 2 * time.Second,
		logger:  logger.With("handler", "leaderboard_invalidator"),
	}
}

// Register подписывает обработчик на события, меняющие рейтинг.
func (h *LeaderboardInvalidator) Register(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{shared.EventPointsAwarded, shared.EventStudentRegistered} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle реализует shared.EventHandler.
// Ошибка кеша только логируется: рейтинг истечёт по TTL.
func (h *LeaderboardInvalidator) Handle(event shared.Event) error {
	switch event.EventType() {
	case shared.EventPointsAwarded, shared.EventStudentRegistered:
	default:
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.cache.Invalidate(ctx); err != nil {
		h.logger.Warn("failed to invalidate leaderboard cache",
			"event_type", event.EventType(),
			"student_id", event.AggregateID(),
			"error", err,
		)
		return nil
	}

	h.logger.Debug("leaderboard cache invalidated",
		"event_type", event.EventType(),
		"student_id", event.AggregateID(),
	)
	return nil
}
