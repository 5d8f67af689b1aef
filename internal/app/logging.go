package app

import (
	"io"
	"log/slog"
	"os"

	"github.com/ecoquest/ecoquest-progression/config"
	"github.com/ecoquest/ecoquest-progression/pkg/logger"
)

// SetupLogger настраивает структурированное логирование и делает его
// логгером по умолчанию. w == nil означает stdout.
func SetupLogger(cfg config.LogConfig, debug bool, w io.Writer) *logger.Logger {
	if w == nil {
		w = os.Stdout
	}

	level := logger.ParseLevel(cfg.Level)
	if debug {
		level = logger.LevelDebug
	}

	log := logger.New(logger.Options{
		Output: w,
		Level:  level,
		Format: logger.Format(cfg.Format),
	})
	slog.SetDefault(log.Slog())
	return log
}
