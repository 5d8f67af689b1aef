// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation        = errors.New("validation error")
	ErrInvalidID         = errors.New("invalid ID")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNegativeValue     = errors.New("value cannot be negative")
	ErrValueOutOfRange   = errors.New("value out of range")
	ErrInvalidDefinition = errors.New("invalid definition")

	// State errors
	ErrInvalidState = errors.New("invalid state")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Infrastructure errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "student", "quiz", "challenge"
	Op      string // Operation that failed, e.g., "Grade", "Join"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Student domain errors
var (
	ErrStudentNotFound      = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrStudentAlreadyExists = NewDomainError("student", "Create", ErrAlreadyExists, "student already registered for this account")
	ErrUnknownBadge         = NewDomainError("student", "AwardBadges", ErrInvalidInput, "badge is not defined in the catalog")
)

// Quiz domain errors
var (
	ErrQuizNotFound          = NewDomainError("quiz", "Find", ErrNotFound, "quiz not found")
	ErrInvalidQuizDefinition = NewDomainError("quiz", "Validate", ErrInvalidDefinition, "invalid quiz definition")
	ErrInvalidAnswers        = NewDomainError("quiz", "Grade", ErrInvalidInput, "answers do not match the quiz")
)

// Challenge domain errors
var (
	ErrParticipationNotFound = NewDomainError("challenge", "Find", ErrNotFound, "participation not found")
	ErrAlreadyJoined         = NewDomainError("challenge", "Join", ErrAlreadyExists, "student already joined this challenge")
	ErrNotJoined             = NewDomainError("challenge", "MarkCompleted", ErrInvalidState, "student has not joined this challenge")
)

// Ledger errors
var (
	// ErrLedgerContention is surfaced after the bounded retry of a
	// read-modify-write cycle gives up.
	ErrLedgerContention = NewDomainError("ledger", "Mutate", ErrConcurrentModification, "student record is being modified concurrently, try again")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsConcurrentModification checks if the error signals a lost optimistic
// concurrency race.
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}

// Validationf builds a validation error for the given domain operation.
func Validationf(domain, op, format string, args ...any) *DomainError {
	return NewDomainError(domain, op, ErrValidation, fmt.Sprintf(format, args...))
}
