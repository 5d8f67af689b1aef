// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. The progression ledger publishes them after every
// committed mutation; observers (cache invalidation, logging, the
// cross-instance bridge) subscribe by type.
const (
	// Student events
	EventStudentRegistered EventType = "student.registered"

	// Progress events
	EventLessonCompleted EventType = "progress.lesson_completed"
	EventQuizAttempted   EventType = "progress.quiz_attempted"
	EventPointsAwarded   EventType = "progress.points_awarded"
	EventLevelUp         EventType = "progress.level_up"
	EventBadgeEarned     EventType = "progress.badge_earned"

	// Challenge events
	EventChallengeJoined    EventType = "challenge.joined"
	EventChallengeCompleted EventType = "challenge.completed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Student Events
// ═══════════════════════════════════════════════════════════════════════════

// StudentRegisteredEvent is emitted when a student profile is provisioned.
type StudentRegisteredEvent struct {
	BaseEvent
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
}

// Payload implements Event interface.
func (e StudentRegisteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"account_id":   e.AccountID,
		"display_name": e.DisplayName,
	}
}

// NewStudentRegisteredEvent creates a new StudentRegisteredEvent.
func NewStudentRegisteredEvent(studentID, accountID, displayName string, at time.Time) StudentRegisteredEvent {
	return StudentRegisteredEvent{
		BaseEvent:   NewBaseEvent(EventStudentRegistered, studentID, at),
		AccountID:   accountID,
		DisplayName: displayName,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// LessonCompletedEvent is emitted the first time a lesson is completed.
type LessonCompletedEvent struct {
	BaseEvent
	LessonID     string `json:"lesson_id"`
	PointsReward int    `json:"points_reward"`
}

// Payload implements Event interface.
func (e LessonCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"lesson_id":     e.LessonID,
		"points_reward": e.PointsReward,
	}
}

// NewLessonCompletedEvent creates a new LessonCompletedEvent.
func NewLessonCompletedEvent(studentID, lessonID string, reward int, at time.Time) LessonCompletedEvent {
	return LessonCompletedEvent{
		BaseEvent:    NewBaseEvent(EventLessonCompleted, studentID, at),
		LessonID:     lessonID,
		PointsReward: reward,
	}
}

// QuizAttemptedEvent is emitted for every graded quiz attempt.
type QuizAttemptedEvent struct {
	BaseEvent
	AttemptID    string `json:"attempt_id"`
	QuizID       string `json:"quiz_id"`
	ScorePercent int    `json:"score_percent"`
	Passed       bool   `json:"passed"`
	Late         bool   `json:"late"`
}

// Payload implements Event interface.
func (e QuizAttemptedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"attempt_id":    e.AttemptID,
		"quiz_id":       e.QuizID,
		"score_percent": e.ScorePercent,
		"passed":        e.Passed,
		"late":          e.Late,
	}
}

// NewQuizAttemptedEvent creates a new QuizAttemptedEvent.
func NewQuizAttemptedEvent(studentID, attemptID, quizID string, score int, passed, late bool, at time.Time) QuizAttemptedEvent {
	return QuizAttemptedEvent{
		BaseEvent:    NewBaseEvent(EventQuizAttempted, studentID, at),
		AttemptID:    attemptID,
		QuizID:       quizID,
		ScorePercent: score,
		Passed:       passed,
		Late:         late,
	}
}

// PointsAwardedEvent is emitted whenever eco-points increase.
type PointsAwardedEvent struct {
	BaseEvent
	Amount    int    `json:"amount"`
	NewTotal  int    `json:"new_total"`
	Source    string `json:"source"` // lesson_completion, quiz_pass, challenge_completion
	Reference string `json:"reference"`
}

// Payload implements Event interface.
func (e PointsAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"amount":    e.Amount,
		"new_total": e.NewTotal,
		"source":    e.Source,
		"reference": e.Reference,
	}
}

// NewPointsAwardedEvent creates a new PointsAwardedEvent.
func NewPointsAwardedEvent(studentID string, amount, newTotal int, source, reference string, at time.Time) PointsAwardedEvent {
	return PointsAwardedEvent{
		BaseEvent: NewBaseEvent(EventPointsAwarded, studentID, at),
		Amount:    amount,
		NewTotal:  newTotal,
		Source:    source,
		Reference: reference,
	}
}

// LevelUpEvent is emitted when a points award crosses a level boundary.
type LevelUpEvent struct {
	BaseEvent
	OldLevel int `json:"old_level"`
	NewLevel int `json:"new_level"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(studentID string, oldLevel, newLevel int, at time.Time) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, studentID, at),
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
	}
}

// BadgeEarnedEvent is emitted once per newly earned badge.
type BadgeEarnedEvent struct {
	BaseEvent
	BadgeID string `json:"badge_id"`
}

// Payload implements Event interface.
func (e BadgeEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"badge_id": e.BadgeID,
	}
}

// NewBadgeEarnedEvent creates a new BadgeEarnedEvent.
func NewBadgeEarnedEvent(studentID, badgeID string, at time.Time) BadgeEarnedEvent {
	return BadgeEarnedEvent{
		BaseEvent: NewBaseEvent(EventBadgeEarned, studentID, at),
		BadgeID:   badgeID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Challenge Events
// ═══════════════════════════════════════════════════════════════════════════

// ChallengeJoinedEvent is emitted when a participation record is created.
type ChallengeJoinedEvent struct {
	BaseEvent
	ChallengeID string `json:"challenge_id"`
}

// Payload implements Event interface.
func (e ChallengeJoinedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"challenge_id": e.ChallengeID,
	}
}

// NewChallengeJoinedEvent creates a new ChallengeJoinedEvent.
func NewChallengeJoinedEvent(studentID, challengeID string, at time.Time) ChallengeJoinedEvent {
	return ChallengeJoinedEvent{
		BaseEvent:   NewBaseEvent(EventChallengeJoined, studentID, at),
		ChallengeID: challengeID,
	}
}

// ChallengeCompletedEvent is emitted the first time a participation is
// marked completed.
type ChallengeCompletedEvent struct {
	BaseEvent
	ChallengeID  string `json:"challenge_id"`
	PointsReward int    `json:"points_reward"`
}

// Payload implements Event interface.
func (e ChallengeCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"challenge_id":  e.ChallengeID,
		"points_reward": e.PointsReward,
	}
}

// NewChallengeCompletedEvent creates a new ChallengeCompletedEvent.
func NewChallengeCompletedEvent(studentID, challengeID string, reward int, at time.Time) ChallengeCompletedEvent {
	return ChallengeCompletedEvent{
		BaseEvent:    NewBaseEvent(EventChallengeCompleted, studentID, at),
		ChallengeID:  challengeID,
		PointsReward: reward,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
