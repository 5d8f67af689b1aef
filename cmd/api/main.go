// Package main - точка входа HTTP API движка прогресса EcoQuest.
//
// API принимает события обучения (уроки, квизы, челленджи), начисляет
// eco-points через журнал прогресса и отдаёт статистику и рейтинг.
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
	httpserver "github.com/ecoquest/ecoquest-progression/internal/interface/http"
	"github.com/ecoquest/ecoquest-progression/internal/interface/http/handlers"
	"github.com/ecoquest/ecoquest-progression/pkg/logger"
)

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
	// .env необязателен
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := app.SetupLogger(cfg.Log, cfg.App.Debug, nil)
	log.Info("starting EcoQuest progression API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("storage", cfg.Storage.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
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
	// 4. ADMIN AUTH
	// ─────────────────────────────────────────────────────────────────────────
	var adminAuth *handlers.AdminAuth
	switch {
	case !cfg.Features.Enabled(config.FeatureAdminEndpoints):
		log.Info("admin endpoints disabled by feature flag")
	case cfg.Admin.TokenHash == "":
		log.Warn("ADMIN_TOKEN_HASH is not set, admin endpoints are disabled")
	default:
		adminAuth, err = handlers.NewAdminAuth(cfg.Admin.TokenHash, httpserver.UnauthorizedHandler())
		if err != nil {
			return fmt.Errorf("invalid admin token hash: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpConfig.ShutdownTimeout = cfg.App.ShutdownTimeout
	httpConfig.Version = cfg.App.Version

	server := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		RegisterStudent:   c.RegisterStudent,
		CompleteLesson:    c.CompleteLesson,
		SubmitQuizAttempt: c.SubmitQuizAttempt,
		AwardBadges:       c.AwardBadges,
		JoinChallenge:     c.JoinChallenge,
		CompleteChallenge: c.CompleteChallenge,
		GetStudentStats:   c.GetStudentStats,
		GetPointsHistory:  c.GetPointsHistory,
		GetLeaderboard:    c.GetLeaderboard,
		ListBadges:        c.ListBadges,
		ListParticipants:  c.ListParticipants,
		Quizzes:           c.Quizzes,
		Catalog:           c.Catalog,
		HealthChecker:     c.Health,
		AdminAuth:         adminAuth,
		Logger:            log,
	})

	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-errCh:
		if ok && err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed successfully")
	return nil
}
