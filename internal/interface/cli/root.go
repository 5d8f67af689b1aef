// Package cli implements progressctl, the admin command line for the
// progression engine. Commands run directly against the configured store.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ecoquest/ecoquest-progression/config"
	"github.com/ecoquest/ecoquest-progression/internal/app"
	"github.com/ecoquest/ecoquest-progression/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// OpenFunc opens the container a command runs against. The returned
// function releases it.
type OpenFunc func(ctx context.Context, opts *RootOptions, stderr io.Writer) (*app.Container, func() error, error)

// NewRootCommand creates the root command. A nil open uses OpenFromEnv.
func NewRootCommand(open OpenFunc) *cobra.Command {
	if open == nil {
		open = OpenFromEnv
	}
	opts := &RootOptions{}
	r := &runner{opts: opts, open: open}

	cmd := &cobra.Command{
		Use:   "progressctl",
		Short: "EcoQuest progression admin tool",
		Long: `Administer the EcoQuest progression store: run migrations, record
learning activity, import quizzes and inspect ledgers and the leaderboard.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newMigrateCommand(r))
	cmd.AddCommand(newStudentCommand(r))
	cmd.AddCommand(newLessonCommand(r))
	cmd.AddCommand(newQuizCommand(r))
	cmd.AddCommand(newBadgesCommand(r))
	cmd.AddCommand(newChallengeCommand(r))
	cmd.AddCommand(newLeaderboardCommand(r))
	cmd.AddCommand(newTokenCommand(r))

	return cmd
}

// OpenFromEnv loads configuration from the environment and builds a
// container with synchronous event delivery, so every handler has run
// before the command exits. Logs go to stderr.
func OpenFromEnv(ctx context.Context, opts *RootOptions, stderr io.Writer) (*app.Container, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logCfg := cfg.Log
	logCfg.Format = string(logger.FormatText)
	logCfg.Level = "warn"
	if opts.Verbose {
		logCfg.Level = "debug"
	}
	log := app.SetupLogger(logCfg, false, stderr)

	c, err := app.Build(ctx, cfg, log.Slog(), app.Options{})
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// runner binds commands to the global options and the store.
type runner struct {
	opts *RootOptions
	open OpenFunc
}

func (r *runner) formatter(cmd *cobra.Command) *outputFormatter {
	return &outputFormatter{
		Format:    r.opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   r.opts.Verbose,
	}
}

// withContainer opens the store, runs fn and reports its error in the
// selected format.
func (r *runner) withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *app.Container, out *outputFormatter) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := r.formatter(cmd)

	c, release, err := r.open(ctx, r.opts, cmd.ErrOrStderr())
	if err != nil {
		return out.Fail(ExitCommandError, err)
	}
	defer func() {
		if err := release(); err != nil {
			out.VerboseLog("release store: %v", err)
		}
	}()

	out.VerboseLog("using %s storage", c.Config.Storage.Driver)
	if err := fn(ctx, c, out); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr
		}
		return out.Fail(ExitFailure, err)
	}
	return nil
}
