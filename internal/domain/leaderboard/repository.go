package leaderboard

import (
	"context"
	"errors"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// StandingsSource отдаёт всех студентов для пересчёта рейтинга.
// Реализуется хранилищем студентов.
type StandingsSource interface {
	// Standings возвращает всех студентов в порядке создания.
	Standings(ctx context.Context) ([]Standing, error)
}

// Cache хранит уже ранжированный список. Реализация находится
// в infrastructure (Redis).
//
// Каждая инвалидация увеличивает поколение кеша. Пересчёт запоминает
// поколение до чтения Standings и сохраняет результат только при том же
// поколении, поэтому снимок, снятый до коммита, не переживает инвалидацию.
type Cache interface {
	// Get возвращает закешированный рейтинг или ErrCacheMiss.
	Get(ctx context.Context) ([]Entry, error)

	// Generation возвращает текущее поколение кеша.
	Generation(ctx context.Context) (int64, error)

	// Set сохраняет рейтинг на ttl, если поколение всё ещё равно gen.
	// false - рейтинг устарел и не сохранён.
	Set(ctx context.Context, gen int64, entries []Entry, ttl time.Duration) (bool, error)

	// Invalidate увеличивает поколение и удаляет закешированный рейтинг.
	Invalidate(ctx context.Context) error
}

// ErrCacheMiss - в кеше нет рейтинга.
var ErrCacheMiss = errors.New("leaderboard cache miss")
