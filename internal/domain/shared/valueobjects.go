// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsUUID reports whether s looks like a canonical UUID.
func IsUUID(s string) bool {
	return uuidRegex.MatchString(s)
}

// ContentID identifies content owned by external collaborators: lessons,
// quizzes, challenges and badges. The engine never interprets it beyond
// equality.
type ContentID string

// MaxContentIDLength bounds identifiers accepted from clients.
const MaxContentIDLength = 128

// IsValid checks that the id is non-empty, bounded and free of whitespace.
func (c ContentID) IsValid() bool {
	s := string(c)
	return len(s) > 0 && len(s) <= MaxContentIDLength && !strings.ContainsAny(s, " \t\n\r")
}

// String returns the string representation.
func (c ContentID) String() string {
	return string(c)
}

// NewContentID trims and validates an identifier.
func NewContentID(raw string) (ContentID, error) {
	id := ContentID(strings.TrimSpace(raw))
	if !id.IsValid() {
		return "", ErrInvalidID
	}
	return id, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination
// ═══════════════════════════════════════════════════════════════════════════

// Pagination contains paging parameters for list reads.
type Pagination struct {
	Page     int
	PageSize int
}

// Offset returns the row offset for the page.
func (p Pagination) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the page size clamped to [1, 200].
func (p Pagination) Limit() int {
	switch {
	case p.PageSize <= 0:
		return 50
	case p.PageSize > 200:
		return 200
	default:
		return p.PageSize
	}
}

// NewPagination creates normalized pagination parameters.
func NewPagination(page, pageSize int) Pagination {
	if page < 1 {
		page = 1
	}
	p := Pagination{Page: page, PageSize: pageSize}
	p.PageSize = p.Limit()
	return p
}

// DefaultPagination returns the first page with the default size.
func DefaultPagination() Pagination {
	return NewPagination(1, 50)
}
