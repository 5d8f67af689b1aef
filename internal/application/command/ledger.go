// Package command contains write operations (CQRS - Commands).
// Every operation that changes a student's progression goes through Ledger,
// which serializes work per student and persists each change atomically.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ecoquest/ecoquest-progression/internal/domain/badge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
	"github.com/ecoquest/ecoquest-progression/pkg/retry"
	"github.com/ecoquest/ecoquest-progression/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESSION LEDGER
// Lock -> load -> mutate -> save with version check -> publish.
// A lost optimistic race is retried with backoff; nothing else is.
// ══════════════════════════════════════════════════════════════════════════════

// Locker serializes work on a key. Both pkg/keylock and the Redis lock
// implement it.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Mutation applies one aggregate operation to a freshly loaded student.
type Mutation func(s *student.Student, env student.Env) (student.Outcome, error)

// EventsFunc returns operation specific events for a committed outcome.
type EventsFunc func(s *student.Student, out student.Outcome, at time.Time) []shared.Event

// LedgerConfig contains configuration for the Ledger.
type LedgerConfig struct {
	// MaxAttempts bounds read-modify-write attempts on concurrent modification.
	MaxAttempts int

	// InitialDelay is the first backoff delay between attempts.
	InitialDelay time.Duration

	// Clock returns the current time (defaults to UTC now).
	Clock timeutil.Clock

	// NewID generates ledger entry and attempt identifiers.
	NewID func() string

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultLedgerConfig returns default configuration.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Millisecond,
	}
}

// Ledger is the only writer of eco-points, levels, lessons, attempts,
// badges and challenge rewards.
type Ledger struct {
	students  student.Repository
	catalog   *badge.Catalog
	publisher shared.EventPublisher
	locks     []Locker
	retrier   *retry.Retrier
	clock     timeutil.Clock
	newID     func() string
	logger    *slog.Logger
}

// NewLedger creates a Ledger. Locks are acquired in the given order.
func NewLedger(
	students student.Repository,
	catalog *badge.Catalog,
	publisher shared.EventPublisher,
	config LedgerConfig,
	locks ...Locker,
) *Ledger {
	defaults := DefaultLedgerConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = defaults.InitialDelay
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if catalog == nil {
		catalog = badge.DefaultCatalog()
	}

	log := config.Logger.With("component", "ledger")
	onRetry := func(attempt int, err error, delay time.Duration) {
		log.Debug("ledger contention, retrying", "attempt", attempt, "delay", delay, "error", err)
	}

	return &Ledger{
		students:  students,
		catalog:   catalog,
		publisher: publisher,
		locks:     locks,
		retrier:   retry.ForLedger(config.MaxAttempts, config.InitialDelay, shared.IsConcurrentModification, onRetry),
		clock:     timeutil.OrDefault(config.Clock),
		newID:     config.NewID,
		logger:    log,
	}
}

// Catalog returns the badge catalog injected at startup.
func (l *Ledger) Catalog() *badge.Catalog {
	return l.catalog
}

// NewID returns a fresh identifier from the configured generator.
func (l *Ledger) NewID() string {
	return l.newID()
}

// Now returns the ledger clock reading.
func (l *Ledger) Now() time.Time {
	return timeutil.Normalize(l.clock())
}

// Applied is the committed state of one ledger operation.
type Applied struct {
	Student  *student.Student
	Outcome  student.Outcome
	Attempts int
}

// Apply runs mutate against studentID under the per-student lock and
// persists the result. A duplicate outcome with nothing to write returns
// without saving or publishing.
func (l *Ledger) Apply(ctx context.Context, op, studentID string, mutate Mutation, events EventsFunc) (*Applied, error) {
	start := time.Now()
	var (
		applied  Applied
		attempts int
		at       time.Time
	)

	err := l.retrier.Do(ctx, func(ctx context.Context) error {
		attempts++
		release, err := l.lock(ctx, studentID)
		if err != nil {
			return err
		}
		defer release()

		s, err := l.students.GetByID(ctx, studentID)
		if err != nil {
			return err
		}

		at = l.Now()
		out, err := mutate(s, student.Env{Catalog: l.catalog, Now: at, NewID: l.newID})
		if err != nil {
			return err
		}

		if !s.PendingChanges().IsEmpty() {
			if err := l.students.Save(ctx, s); err != nil {
				return err
			}
		}

		applied = Applied{Student: s, Outcome: out}
		return nil
	})

	log := l.logger.With("operation", op, "student_id", studentID, "attempts", attempts)
	if err != nil {
		if shared.IsConcurrentModification(err) {
			log.Warn("ledger contention, giving up", "error", err)
			return nil, fmt.Errorf("%w: %v", shared.ErrLedgerContention, err)
		}
		log.Debug("ledger operation rejected", "error", err)
		return nil, err
	}
	applied.Attempts = attempts

	out := applied.Outcome
	log.Info("ledger operation applied",
		"duplicate", out.Duplicate,
		"points_awarded", out.PointsAwarded.Int(),
		"eco_points", applied.Student.EcoPoints.Int(),
		"level", applied.Student.Level().Int(),
		"new_badges", len(out.NewBadges),
		"duration", time.Since(start),
	)

	if !out.Duplicate || len(out.NewBadges) > 0 {
		var opEvents []shared.Event
		if events != nil {
			opEvents = events(applied.Student, out, at)
		}
		l.publish(append(opEvents, outcomeEvents(studentID, out, at)...))
	}

	return &applied, nil
}

// lock acquires every configured lock for key, releasing in reverse order.
func (l *Ledger) lock(ctx context.Context, key string) (func(), error) {
	releases := make([]func(), 0, len(l.locks))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, lk := range l.locks {
		release, err := lk.Lock(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

// Publish sends events after a commit. Failures are logged, never returned:
// the mutation is already durable.
func (l *Ledger) Publish(events ...shared.Event) {
	l.publish(events)
}

func (l *Ledger) publish(events []shared.Event) {
	if l.publisher == nil {
		return
	}
	for _, e := range events {
		if err := l.publisher.Publish(e); err != nil {
			l.logger.Error("failed to publish event", "event_type", e.EventType(), "error", err)
		}
	}
}

// outcomeEvents builds the events every ledger operation shares.
func outcomeEvents(studentID string, out student.Outcome, at time.Time) []shared.Event {
	var events []shared.Event
	if out.Entry != nil {
		events = append(events, shared.NewPointsAwardedEvent(
			studentID,
			out.Entry.Points.Int(),
			out.Entry.BalanceAfter.Int(),
			string(out.Entry.Source),
			out.Entry.Reference,
			at,
		))
	}
	if out.LeveledUp() {
		events = append(events, shared.NewLevelUpEvent(studentID, out.LevelBefore.Int(), out.LevelAfter.Int(), at))
	}
	for _, b := range out.NewBadges {
		events = append(events, shared.NewBadgeEarnedEvent(studentID, b.BadgeID, b.EarnedAt))
	}
	return events
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED RESULT
// ══════════════════════════════════════════════════════════════════════════════

// ProgressResult is the {stats, newBadges} shape every ledger operation returns.
type ProgressResult struct {
	Stats         student.Stats
	NewBadges     []student.EarnedBadge
	PointsAwarded int
	LeveledUp     bool
}

func progressResult(a *Applied) ProgressResult {
	badges := a.Outcome.NewBadges
	if badges == nil {
		badges = []student.EarnedBadge{}
	}
	return ProgressResult{
		Stats:         a.Student.Stats(),
		NewBadges:     badges,
		PointsAwarded: a.Outcome.PointsAwarded.Int(),
		LeveledUp:     a.Outcome.LeveledUp(),
	}
}
