// Package memory implements in-process stores used by tests, the CLI
// dry runs and STORAGE_DRIVER=memory. All stores are safe for concurrent use
// and hand out deep copies, so callers never share state with the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ecoquest/ecoquest-progression/internal/domain/leaderboard"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository and
// leaderboard.StandingsSource in memory.
type StudentRepository struct {
	mu        sync.RWMutex
	students  map[string]*student.Student
	byAccount map[string]string
	ledger    map[string][]student.LedgerEntry
	seq       int64
}

// NewStudentRepository creates an empty store.
func NewStudentRepository() *StudentRepository {
	return &StudentRepository{
		students:  make(map[string]*student.Student),
		byAccount: make(map[string]string),
		ledger:    make(map[string][]student.LedgerEntry),
	}
}

// Create stores a new student and assigns its Seq.
func (r *StudentRepository) Create(_ context.Context, s *student.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byAccount[s.AccountID]; ok {
		return shared.ErrStudentAlreadyExists
	}
	if _, ok := r.students[s.ID]; ok {
		return shared.ErrStudentAlreadyExists
	}

	r.seq++
	s.Seq = r.seq

	stored := s.Clone()
	r.persistLedger(stored)
	stored.CommitChanges()
	stored.Version = s.Version

	r.students[s.ID] = stored
	r.byAccount[s.AccountID] = s.ID
	return nil
}

// GetByID returns a copy of the stored student.
func (r *StudentRepository) GetByID(_ context.Context, id string) (*student.Student, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.students[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return s.Clone(), nil
}

// GetByAccountID returns a copy of the student linked to the account.
func (r *StudentRepository) GetByAccountID(ctx context.Context, accountID string) (*student.Student, error) {
	r.mu.RLock()
	id, ok := r.byAccount[accountID]
	r.mu.RUnlock()
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return r.GetByID(ctx, id)
}

// Save applies pending changes if the stored version matches.
func (r *StudentRepository) Save(_ context.Context, s *student.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.students[s.ID]
	if !ok {
		return shared.ErrStudentNotFound
	}
	if current.Version != s.Version {
		return fmt.Errorf("%w: student %s has version %d, expected %d",
			shared.ErrConcurrentModification, s.ID, current.Version, s.Version)
	}

	stored := s.Clone()
	r.persistLedger(stored)
	stored.CommitChanges()
	r.students[s.ID] = stored

	s.CommitChanges()
	return nil
}

func (r *StudentRepository) persistLedger(s *student.Student) {
	entries := s.PendingChanges().Ledger
	if len(entries) > 0 {
		r.ledger[s.ID] = append(r.ledger[s.ID], entries...)
	}
}

// ListLedger returns audit entries, newest first.
func (r *StudentRepository) ListLedger(_ context.Context, studentID string, page shared.Pagination) ([]student.LedgerEntry, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.students[studentID]; !ok {
		return nil, 0, shared.ErrStudentNotFound
	}

	all := r.ledger[studentID]
	total := len(all)

	out := make([]student.LedgerEntry, 0, page.Limit())
	for i := total - 1 - page.Offset(); i >= 0 && len(out) < page.Limit(); i-- {
		out = append(out, all[i])
	}
	return out, total, nil
}

// AuditBalances compares every balance with its ledger.
func (r *StudentRepository) AuditBalances(_ context.Context) ([]student.BalanceAudit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]student.BalanceAudit, 0, len(r.students))
	for _, s := range r.sortedLocked() {
		var sum student.EcoPoints
		for _, e := range r.ledger[s.ID] {
			sum += e.Points
		}
		out = append(out, student.BalanceAudit{
			StudentID:   s.ID,
			EcoPoints:   s.EcoPoints,
			LedgerSum:   sum,
			StoredLevel: s.Level(),
		})
	}
	return out, nil
}

// Standings returns every student in creation order.
func (r *StudentRepository) Standings(_ context.Context) ([]leaderboard.Standing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := r.sortedLocked()
	out := make([]leaderboard.Standing, 0, len(sorted))
	for _, s := range sorted {
		out = append(out, leaderboard.Standing{
			StudentID:   s.ID,
			DisplayName: s.DisplayName,
			EcoPoints:   s.EcoPoints.Int(),
			Level:       s.Level().Int(),
			Seq:         s.Seq,
		})
	}
	return out, nil
}

// Len returns the number of stored students.
func (r *StudentRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.students)
}

// Ping always succeeds.
func (r *StudentRepository) Ping(context.Context) error {
	return nil
}

func (r *StudentRepository) sortedLocked() []*student.Student {
	out := make([]*student.Student, 0, len(r.students))
	for _, s := range r.students {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
