package eventhandler

import (
	"log/slog"

	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// PROGRESS LOGGING HANDLER
// Пишет в журнал заметные моменты прогресса: новый уровень и новый значок.
// ═══════════════════════════════════════════════════════════════════════════

// ProgressLogger журналирует события прогресса.
type ProgressLogger struct {
	logger *slog.Logger
}

// NewProgressLogger создаёт обработчик.
func NewProgressLogger(logger *slog.Logger) *ProgressLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressLogger{logger: logger.With("handler", "progress_logger")}
}

// Register подписывает обработчик на события уровня и значков.
func (h *ProgressLogger) Register(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{shared.EventLevelUp, shared.EventBadgeEarned} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle реализует shared.EventHandler.
func (h *ProgressLogger) Handle(event shared.Event) error {
	payload := event.Payload()

	switch event.EventType() {
	case shared.EventLevelUp:
		h.logger.Info("student leveled up",
			"student_id", event.AggregateID(),
			"old_level", payload["old_level"],
			"new_level", payload["new_level"],
		)
	case shared.EventBadgeEarned:
		h.logger.Info("badge earned",
			"student_id", event.AggregateID(),
			"badge_id", payload["badge_id"],
		)
	}
	return nil
}
