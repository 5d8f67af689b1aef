package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/application/command"
	"github.com/ecoquest/ecoquest-progression/internal/application/query"
	"github.com/ecoquest/ecoquest-progression/internal/domain/badge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The store rejected the operation
	ExitCommandError = 2 // Bad configuration, unreadable input file, store unavailable
)

// ExitError carries the exit code of a failed command. Its message has
// already been written by the formatter.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// IsReported reports whether err was already written to the output.
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}

// Error codes shared with the HTTP API.
const (
	codeNotFound               = "NOT_FOUND"
	codeAlreadyExists          = "ALREADY_EXISTS"
	codeNotJoined              = "NOT_JOINED"
	codeValidation             = "VALIDATION_ERROR"
	codeInvalidQuizDefinition  = "INVALID_QUIZ_DEFINITION"
	codeConcurrentModification = "CONCURRENT_MODIFICATION"
	codeInternal               = "INTERNAL_ERROR"
)

// errorCode maps a domain error to its code and the message to show.
func errorCode(err error) (string, string) {
	message := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) && error(de) == err {
		message = de.Message
	}

	switch {
	case errors.Is(err, shared.ErrNotJoined):
		return codeNotJoined, message
	case shared.IsAlreadyExists(err):
		return codeAlreadyExists, message
	case shared.IsNotFound(err):
		return codeNotFound, message
	case errors.Is(err, shared.ErrInvalidDefinition):
		return codeInvalidQuizDefinition, message
	case shared.IsValidation(err):
		return codeValidation, message
	case shared.IsConcurrentModification(err):
		return codeConcurrentModification, message
	default:
		return codeInternal, message
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// FORMATTER
// ══════════════════════════════════════════════════════════════════════════════

// outputFormatter handles JSON vs text output for CLI commands.
type outputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose output, kept off Writer so JSON stays parseable
	Verbose   bool
}

// cliResponse is the JSON envelope of every command.
type cliResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *cliError `json:"error,omitempty"`
}

type cliError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success writes data as a JSON envelope, or calls text for the
// human-readable form.
func (f *outputFormatter) Success(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return f.encode(cliResponse{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Fail writes err in the selected format and returns it as an ExitError.
func (f *outputFormatter) Fail(exitCode int, err error) error {
	code, message := errorCode(err)
	if exitCode == ExitCommandError {
		message = err.Error()
	}

	if f.Format == "json" {
		_ = f.encode(cliResponse{Status: "error", Error: &cliError{Code: code, Message: message}})
	} else {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
		if f.Verbose && message != err.Error() {
			fmt.Fprintf(f.Writer, "Details: %v\n", err)
		}
	}
	return &ExitError{Code: exitCode, Message: message, Err: err}
}

// VerboseLog outputs a message only if verbose mode is enabled.
func (f *outputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, "[verbose] "+format+"\n", args...)
}

func (f *outputFormatter) encode(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ══════════════════════════════════════════════════════════════════════════════
// TEXT RENDERING
// ══════════════════════════════════════════════════════════════════════════════

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func writeStats(w io.Writer, s *query.StudentStatsDTO) {
	tw := newTable(w)
	fmt.Fprintf(tw, "student\t%s\n", s.StudentID)
	if s.AccountID != "" {
		fmt.Fprintf(tw, "account\t%s\n", s.AccountID)
	}
	fmt.Fprintf(tw, "name\t%s\n", s.DisplayName)
	fmt.Fprintf(tw, "eco-points\t%d\n", s.EcoPoints)
	fmt.Fprintf(tw, "level\t%d (%.0f%% to %d)\n", s.Level, s.ProgressPercent, s.NextLevelAt)
	fmt.Fprintf(tw, "lessons\t%d\n", s.CompletedLessons)
	fmt.Fprintf(tw, "quiz attempts\t%d\n", s.QuizAttempts)
	fmt.Fprintf(tw, "badges\t%s\n", badgeNames(s.Badges))
	_ = tw.Flush()
}

func badgeNames(badges []query.EarnedBadgeDTO) string {
	if len(badges) == 0 {
		return "-"
	}
	names := make([]string, len(badges))
	for i, b := range badges {
		names[i] = b.Name
	}
	return strings.Join(names, ", ")
}

// progressView is the JSON shape of a ledger operation.
type progressView struct {
	Stats         *query.StudentStatsDTO `json:"stats"`
	NewBadges     []query.EarnedBadgeDTO `json:"new_badges"`
	PointsAwarded int                    `json:"points_awarded"`
	LeveledUp     bool                   `json:"leveled_up"`
}

func newProgressView(p command.ProgressResult, catalog *badge.Catalog) progressView {
	badges := make([]query.EarnedBadgeDTO, 0, len(p.NewBadges))
	for _, b := range p.NewBadges {
		badges = append(badges, query.BadgeDTO(catalog, b))
	}
	return progressView{
		Stats:         query.StudentStatsFrom(p.Stats, catalog, "", time.Time{}),
		NewBadges:     badges,
		PointsAwarded: p.PointsAwarded,
		LeveledUp:     p.LeveledUp,
	}
}

func writeProgress(w io.Writer, p progressView) {
	fmt.Fprintf(w, "+%d eco-points, %s now has %d (level %d)\n",
		p.PointsAwarded, p.Stats.DisplayName, p.Stats.EcoPoints, p.Stats.Level)
	if p.LeveledUp {
		fmt.Fprintf(w, "level up! reached level %d\n", p.Stats.Level)
	}
	for _, b := range p.NewBadges {
		fmt.Fprintf(w, "new badge: %s\n", b.Name)
	}
}
