// Package main - точка входа фонового воркера EcoQuest.
//
// Воркер прогревает кэш рейтинга и сверяет балансы eco-points с журналом.
// Он использует то же хранилище, что и API, но не принимает запросы.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ecoquest/ecoquest-progression/config"
	"github.com/ecoquest/ecoquest-progression/internal/app"
	"github.com/ecoquest/ecoquest-progression/internal/infrastructure/scheduler"
	"github.com/ecoquest/ecoquest-progression/internal/infrastructure/scheduler/jobs"
	"github.com/ecoquest/ecoquest-progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := app.SetupLogger(cfg.Log, cfg.App.Debug, nil)
	log.Info("starting EcoQuest progression worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("timezone", cfg.App.Location.String()),
	)

	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler is disabled (SCHEDULER_ENABLED=false), nothing to do")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. СБОРКА ЗАВИСИМОСТЕЙ
	// ─────────────────────────────────────────────────────────────────────────
	c, err := app.Build(ctx, cfg, log.Slog(), app.Options{AsyncEvents: true})
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing resources...")
		if err := c.Close(); err != nil {
			log.Error("failed to close resources", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. РЕГИСТРАЦИЯ ЗАДАЧ
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:       log.Slog(),
		TickInterval: cfg.Scheduler.TickInterval,
	})

	// Прогрев имеет смысл только при наличии кэша
	if c.LeaderboardCache != nil {
		schedule, err := scheduler.ParseSchedule(cfg.Scheduler.WarmLeaderboardSchedule, cfg.App.Location)
		if err != nil {
			return fmt.Errorf("SCHEDULER_WARM_LEADERBOARD: %w", err)
		}
		job := jobs.NewWarmLeaderboardJob(c.GetLeaderboard, cfg.Scheduler.JobTimeout, log)
		if err := sched.Register(job, schedule); err != nil {
			return err
		}
	} else {
		log.Info("leaderboard cache is off, warm_leaderboard job skipped")
	}

	if cfg.Features.Enabled(config.FeatureLedgerAuditJob) {
		schedule, err := scheduler.ParseSchedule(cfg.Scheduler.AuditLedgerSchedule, cfg.App.Location)
		if err != nil {
			return fmt.Errorf("SCHEDULER_AUDIT_LEDGER: %w", err)
		}
		if err := sched.Register(jobs.NewAuditLedgerJob(c.Students, log), schedule); err != nil {
			return err
		}
	}

	sched.OnJobComplete(func(r scheduler.JobResult) {
		if r.Error != nil {
			log.Error("job failed",
				logger.String("job", r.JobName),
				logger.Latency(r.Duration),
				logger.Err(r.Error),
			)
		}
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	for _, info := range sched.ListJobs() {
		log.Info("job scheduled",
			logger.String("job", info.Name),
			logger.String("schedule", info.Schedule),
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal, stopping scheduler...")

	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler", logger.Err(err))
		return err
	}

	snap := sched.Metrics().Snapshot()
	log.Info("shutdown completed successfully",
		logger.Int("executions", int(snap.TotalExecutions)),
		logger.Int("failures", int(snap.TotalFailures)),
	)
	return nil
}
