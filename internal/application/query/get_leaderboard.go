// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/leaderboard"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/pkg/circuitbreaker"
	"github.com/ecoquest/ecoquest-progression/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Возвращает топ-N студентов по eco-points.
// Сначала читает кеш через circuit breaker, при промахе пересчитывает
// рейтинг по всем студентам и кладёт в кеш топ-100.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery содержит параметры запроса рейтинга.
type GetLeaderboardQuery struct {
	// Limit - количество записей (по умолчанию 20, максимум 100).
	Limit int
}

// GetLeaderboardResult содержит результат запроса рейтинга.
type GetLeaderboardResult struct {
	// Entries - строки рейтинга, ранги начинаются с 1.
	Entries []leaderboard.Entry `json:"entries"`

	// FromCache - результат взят из кеша.
	FromCache bool `json:"from_cache"`

	// GeneratedAt - время формирования ответа.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetLeaderboardConfig содержит настройки обработчика.
type GetLeaderboardConfig struct {
	// DefaultLimit и MaxLimit ограничивают запрошенный лимит.
	DefaultLimit int
	MaxLimit     int

	// CacheTTL - время жизни закешированного рейтинга.
	CacheTTL time.Duration

	Clock  timeutil.Clock
	Logger *slog.Logger
}

// DefaultGetLeaderboardConfig возвращает настройки по умолчанию.
func DefaultGetLeaderboardConfig() GetLeaderboardConfig {
	return GetLeaderboardConfig{
		DefaultLimit: leaderboard.DefaultLimit,
		MaxLimit:     leaderboard.MaxLimit,
		CacheTTL:     5 * time.Minute,
	}
}

// GetLeaderboardHandler обрабатывает запросы рейтинга.
type GetLeaderboardHandler struct {
	source  leaderboard.StandingsSource
	cache   leaderboard.Cache
	breaker *circuitbreaker.CircuitBreaker
	config  GetLeaderboardConfig
	clock   timeutil.Clock
	logger  *slog.Logger
}

// NewGetLeaderboardHandler создаёт обработчик. cache и breaker могут быть nil:
// тогда рейтинг всегда пересчитывается.
func NewGetLeaderboardHandler(
	source leaderboard.StandingsSource,
	cache leaderboard.Cache,
	breaker *circuitbreaker.CircuitBreaker,
	config GetLeaderboardConfig,
) *GetLeaderboardHandler {
	defaults := DefaultGetLeaderboardConfig()
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = defaults.DefaultLimit
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = defaults.MaxLimit
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = defaults.CacheTTL
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &GetLeaderboardHandler{
		source:  source,
		cache:   cache,
		breaker: breaker,
		config:  config,
		clock:   timeutil.OrDefault(config.Clock),
		logger:  config.Logger.With("handler", "get_leaderboard"),
	}
}

// Handle выполняет запрос рейтинга.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, query GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if query.Limit < 0 {
		return nil, shared.Validationf("leaderboard", "Get", "limit must not be negative")
	}
	limit := leaderboard.NormalizeLimit(query.Limit, h.config.DefaultLimit, h.config.MaxLimit)

	if cached, ok := h.fromCache(ctx); ok {
		return &GetLeaderboardResult{
			Entries:     leaderboard.Top(cached, limit),
			FromCache:   true,
			GeneratedAt: timeutil.Normalize(h.clock()),
		}, nil
	}

	entries, err := h.Refresh(ctx)
	if err != nil {
		return nil, err
	}

	return &GetLeaderboardResult{
		Entries:     leaderboard.Top(entries, limit),
		GeneratedAt: timeutil.Normalize(h.clock()),
	}, nil
}

// Refresh пересчитывает рейтинг по всем студентам и обновляет кеш.
// Используется также задачей прогрева кеша.
// Поколение кеша читается до Standings: если за время пересчёта
// рейтинг инвалидировали, результат отдаётся вызывающему, но не кешируется.
func (h *GetLeaderboardHandler) Refresh(ctx context.Context) ([]leaderboard.Entry, error) {
	gen, cacheable := h.generation(ctx)

	standings, err := h.source.Standings(ctx)
	if err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrServiceUnavailable, "failed to load standings", err)
	}

	entries := leaderboard.RankStandings(standings, h.config.MaxLimit)
	if cacheable {
		h.storeInCache(ctx, gen, entries)
	}
	return entries, nil
}

// fromCache читает кеш. Промах не считается отказом кеша.
func (h *GetLeaderboardHandler) fromCache(ctx context.Context) ([]leaderboard.Entry, bool) {
	if h.cache == nil {
		return nil, false
	}

	var (
		entries []leaderboard.Entry
		hit     bool
	)
	err := h.guard(ctx, func(ctx context.Context) error {
		cached, err := h.cache.Get(ctx)
		if errors.Is(err, leaderboard.ErrCacheMiss) {
			return nil
		}
		if err != nil {
			return err
		}
		entries, hit = cached, true
		return nil
	})
	if err != nil {
		h.logger.Warn("leaderboard cache read failed", "error", err)
		return nil, false
	}
	return entries, hit
}

// generation возвращает поколение кеша. false - кеш недоступен
// или не настроен, и пересчитанный рейтинг не сохраняется.
func (h *GetLeaderboardHandler) generation(ctx context.Context) (int64, bool) {
	if h.cache == nil {
		return 0, false
	}

	var gen int64
	err := h.guard(ctx, func(ctx context.Context) error {
		var err error
		gen, err = h.cache.Generation(ctx)
		return err
	})
	if err != nil {
		h.logger.Warn("leaderboard cache generation read failed", "error", err)
		return 0, false
	}
	return gen, true
}

func (h *GetLeaderboardHandler) storeInCache(ctx context.Context, gen int64, entries []leaderboard.Entry) {
	var stored bool
	err := h.guard(ctx, func(ctx context.Context) error {
		var err error
		stored, err = h.cache.Set(ctx, gen, entries, h.config.CacheTTL)
		return err
	})
	if err != nil {
		h.logger.Warn("leaderboard cache write failed", "error", err)
		return
	}
	if !stored {
		h.logger.Debug("leaderboard changed during refresh, result not cached", "generation", gen)
	}
}

func (h *GetLeaderboardHandler) guard(ctx context.Context, fn func(context.Context) error) error {
	if h.breaker == nil {
		return fn(ctx)
	}
	return h.breaker.Execute(ctx, fn)
}
