// Package app собирает зависимости сервиса из конфигурации.
// Используется всеми точками входа: API, воркером и progressctl.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ecoquest/ecoquest-progression/config"
	"github.com/ecoquest/ecoquest-progression/internal/application/command"
	"github.com/ecoquest/ecoquest-progression/internal/application/eventhandler"
	"github.com/ecoquest/ecoquest-progression/internal/application/query"
	"github.com/ecoquest/ecoquest-progression/internal/domain/badge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/challenge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/leaderboard"
	"github.com/ecoquest/ecoquest-progression/internal/domain/quiz"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
	"github.com/ecoquest/ecoquest-progression/internal/infrastructure/catalog"
	"github.com/ecoquest/ecoquest-progression/internal/infrastructure/messaging"
	"github.com/ecoquest/ecoquest-progression/internal/infrastructure/persistence/memory"
	"github.com/ecoquest/ecoquest-progression/internal/infrastructure/persistence/postgres"
	"github.com/ecoquest/ecoquest-progression/internal/infrastructure/persistence/redis"
	"github.com/ecoquest/ecoquest-progression/internal/infrastructure/persistence/sqlite"
	"github.com/ecoquest/ecoquest-progression/internal/interface/http/handlers"
	"github.com/ecoquest/ecoquest-progression/pkg/circuitbreaker"
	"github.com/ecoquest/ecoquest-progression/pkg/keylock"
)

// StudentStore - хранилище студентов, которое также отдаёт таблицу
// для рейтинга.
type StudentStore interface {
	student.Repository
	leaderboard.StandingsSource
}

// EventBus - шина событий с закрытием.
type EventBus interface {
	shared.EventBus
	Close() error
}

// Container содержит собранные зависимости.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Хранилище
	Students       StudentStore
	Quizzes        quiz.Repository
	Participations challenge.Repository
	Catalog        *badge.Catalog

	// Инфраструктура
	Bus              EventBus
	LeaderboardCache leaderboard.Cache
	Health           *handlers.CompositeHealthChecker

	// Application layer
	Ledger  *command.Ledger
	Tracker *challenge.Tracker

	RegisterStudent   *command.RegisterStudentHandler
	CompleteLesson    *command.CompleteLessonHandler
	SubmitQuizAttempt *command.SubmitQuizAttemptHandler
	AwardBadges       *command.AwardBadgesHandler
	JoinChallenge     *command.JoinChallengeHandler
	CompleteChallenge *command.CompleteChallengeHandler

	GetStudentStats  *query.GetStudentStatsHandler
	GetPointsHistory *query.GetPointsHistoryHandler
	GetLeaderboard   *query.GetLeaderboardHandler
	ListBadges       *query.ListBadgesHandler
	ListParticipants *query.ListParticipantsHandler

	closers []func() error
}

// Options управляют сборкой.
type Options struct {
	// AsyncEvents включает асинхронную доставку событий.
	// CLI работает синхронно, чтобы все обработчики отработали до выхода.
	AsyncEvents bool
}

// Build собирает контейнер. При ошибке уже открытые ресурсы закрываются.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) (c *Container, err error) {
	if log == nil {
		log = slog.Default()
	}
	c = &Container{
		Config: cfg,
		Logger: log,
		Health: handlers.NewCompositeHealthChecker(cfg.App.Version),
	}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. КАТАЛОГ ЗНАЧКОВ
	// ─────────────────────────────────────────────────────────────────────────
	c.Catalog = badge.DefaultCatalog()
	if cfg.Catalog.BadgesPath != "" {
		c.Catalog, err = catalog.LoadBadgeCatalog(cfg.Catalog.BadgesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load badge catalog: %w", err)
		}
	}
	log.Info("badge catalog loaded", "badges", len(c.Catalog.Definitions()))

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	if err = c.openStorage(ctx); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisCache *redis.Cache
		locks      = []command.Locker{keylock.New()}
	)
	if cfg.Redis.Enabled {
		redisCache, err = redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, redisCache.Close)
		c.Health.AddCheck("redis", handlers.PingCheck(redisCache))
		log.Info("redis connection established", "addr", redisConfig(cfg.Redis).Addr())

		if cfg.Features.Enabled(config.FeatureLeaderboardCache) {
			c.LeaderboardCache = redis.NewLeaderboardCache(redisCache)
		}
		if cfg.UseRedisLock() {
			locks = append(locks, redis.NewLocker(redisCache, redis.LockerOptions{
				TTL:     cfg.Ledger.LockTTL,
				MaxWait: cfg.Ledger.LockMaxWait,
				Logger:  log,
			}))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.AsyncMode = opts.AsyncEvents
	busConfig.Logger = log

	if redisCache != nil && cfg.Features.Enabled(config.FeatureDistributedEvents) {
		c.Bus, err = messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         redis.NewPubSub(redisCache.Client()),
			LocalBusConfig: busConfig,
			Logger:         log,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start distributed event bus: %w", err)
		}
	} else {
		c.Bus = messaging.NewInMemoryEventBus(busConfig)
	}
	// Шина закрывается первой: обработчики ещё могут писать в кеш.
	c.closers = append([]func() error{c.Bus.Close}, c.closers...)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	c.Ledger = command.NewLedger(c.Students, c.Catalog, c.Bus, command.LedgerConfig{
		MaxAttempts:  cfg.Ledger.MaxAttempts,
		InitialDelay: cfg.Ledger.InitialDelay,
		Logger:       log,
	}, locks...)
	c.Tracker = challenge.NewTracker(c.Participations, nil)

	c.RegisterStudent = command.NewRegisterStudentHandler(c.Ledger, c.Students, log)
	c.CompleteLesson = command.NewCompleteLessonHandler(c.Ledger)
	c.SubmitQuizAttempt = command.NewSubmitQuizAttemptHandler(c.Ledger, c.Quizzes)
	c.AwardBadges = command.NewAwardBadgesHandler(c.Ledger)
	c.JoinChallenge = command.NewJoinChallengeHandler(c.Ledger, c.Students, c.Tracker, log)
	c.CompleteChallenge = command.NewCompleteChallengeHandler(c.Ledger, c.Tracker)

	var breaker *circuitbreaker.CircuitBreaker
	if c.LeaderboardCache != nil {
		breaker = circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		})
	}

	c.GetStudentStats = query.NewGetStudentStatsHandler(c.Students, c.Catalog)
	c.GetPointsHistory = query.NewGetPointsHistoryHandler(c.Students)
	c.GetLeaderboard = query.NewGetLeaderboardHandler(c.Students, c.LeaderboardCache, breaker, query.GetLeaderboardConfig{
		DefaultLimit: cfg.Leaderboard.DefaultLimit,
		MaxLimit:     cfg.Leaderboard.MaxLimit,
		CacheTTL:     cfg.Leaderboard.CacheTTL,
		Logger:       log,
	})
	c.ListBadges = query.NewListBadgesHandler(c.Catalog)
	c.ListParticipants = query.NewListParticipantsHandler(c.Tracker)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EVENT HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	if err = eventhandler.NewProgressLogger(log).Register(c.Bus); err != nil {
		return nil, fmt.Errorf("failed to register progress logger: %w", err)
	}
	if c.LeaderboardCache != nil {
		if err = eventhandler.NewLeaderboardInvalidator(c.LeaderboardCache, log).Register(c.Bus); err != nil {
			return nil, fmt.Errorf("failed to register leaderboard invalidator: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ФИКСТУРЫ КВИЗОВ
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Catalog.QuizFixturesPath != "" {
		quizzes, loadErr := catalog.LoadQuizzes(cfg.Catalog.QuizFixturesPath)
		if loadErr != nil {
			return nil, fmt.Errorf("failed to load quiz fixtures: %w", loadErr)
		}
		n, importErr := catalog.ImportQuizzes(ctx, c.Quizzes, quizzes)
		if importErr != nil {
			return nil, fmt.Errorf("failed to import quiz fixtures: %w", importErr)
		}
		log.Info("quiz fixtures imported", "quizzes", n, "path", cfg.Catalog.QuizFixturesPath)
	}

	return c, nil
}

// openStorage открывает хранилище выбранного драйвера.
func (c *Container) openStorage(ctx context.Context) error {
	cfg := c.Config

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		conn, err := postgres.NewConnection(ctx, postgresConfig(cfg.Database))
		if err != nil {
			return err
		}
		c.closers = append(c.closers, func() error { conn.Close(); return nil })

		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		c.Logger.Info("database migrations completed", "applied", applied)

		c.Students = postgres.NewStudentRepository(conn)
		c.Quizzes = postgres.NewQuizRepository(conn)
		c.Participations = postgres.NewParticipationRepository(conn)
		c.Health.AddCheck("postgres", handlers.PingCheck(conn))

	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, store.Close)

		c.Students = sqlite.NewStudentRepository(store)
		c.Quizzes = sqlite.NewQuizRepository(store)
		c.Participations = sqlite.NewParticipationRepository(store)
		c.Health.AddCheck("sqlite", handlers.PingCheck(store))

	case config.DriverMemory:
		students := memory.NewStudentRepository()
		c.Students = students
		c.Quizzes = memory.NewQuizRepository()
		c.Participations = memory.NewParticipationRepository()
		c.Health.AddCheck("memory", handlers.PingCheck(students))

	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	c.Logger.Info("storage opened", "driver", cfg.Storage.Driver)
	return nil
}

// Close освобождает ресурсы в порядке регистрации.
func (c *Container) Close() error {
	var errs []error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func postgresConfig(db config.DatabaseConfig) postgres.Config {
	pg := postgres.DefaultConfig()
	pg.URL = db.URL
	pg.MaxConns = int32(db.MaxConns)
	pg.MinConns = int32(db.MinConns)
	pg.MaxConnLifetime = db.ConnMaxLifetime
	pg.MaxConnIdleTime = db.ConnMaxIdleTime
	pg.ConnectTimeout = db.ConnectTimeout
	return pg
}

func redisConfig(r config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = r.Host
	rc.Port = r.Port
	rc.Password = r.Password
	rc.DB = r.DB
	rc.PoolSize = r.PoolSize
	rc.MinIdleConns = r.MinIdleConns
	rc.DialTimeout = r.DialTimeout
	rc.ReadTimeout = r.ReadTimeout
	rc.WriteTimeout = r.WriteTimeout
	return rc
}
