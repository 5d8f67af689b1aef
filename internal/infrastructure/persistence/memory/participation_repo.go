package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/challenge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

type participationKey struct {
	challengeID string
	studentID   string
}

// ParticipationRepository implements challenge.Repository in memory.
type ParticipationRepository struct {
	mu    sync.RWMutex
	items map[participationKey]*challenge.Participation
	order map[string][]string
}

// NewParticipationRepository creates an empty store.
func NewParticipationRepository() *ParticipationRepository {
	return &ParticipationRepository{
		items: make(map[participationKey]*challenge.Participation),
		order: make(map[string][]string),
	}
}

// Create stores a participation unless the pair already exists.
func (r *ParticipationRepository) Create(_ context.Context, p *challenge.Participation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := participationKey{p.ChallengeID, p.StudentID}
	if _, ok := r.items[key]; ok {
		return shared.ErrAlreadyJoined
	}

	r.items[key] = copyParticipation(p)
	r.order[p.ChallengeID] = append(r.order[p.ChallengeID], p.StudentID)
	return nil
}

// Get returns a copy of the participation.
func (r *ParticipationRepository) Get(_ context.Context, challengeID, studentID string) (*challenge.Participation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[participationKey{challengeID, studentID}]
	if !ok {
		return nil, shared.ErrParticipationNotFound
	}
	return copyParticipation(p), nil
}

// MarkCompleted flips completed once.
func (r *ParticipationRepository) MarkCompleted(_ context.Context, challengeID, studentID string, at time.Time) (*challenge.Participation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[participationKey{challengeID, studentID}]
	if !ok {
		return nil, false, shared.ErrParticipationNotFound
	}
	if p.Completed {
		return copyParticipation(p), false, nil
	}

	p.Completed = true
	p.CompletedAt = &at
	return copyParticipation(p), true, nil
}

// ListByChallenge returns participants in join order.
func (r *ParticipationRepository) ListByChallenge(_ context.Context, challengeID string) ([]*challenge.Participation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.order[challengeID]
	out := make([]*challenge.Participation, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyParticipation(r.items[participationKey{challengeID, id}]))
	}
	return out, nil
}

func copyParticipation(p *challenge.Participation) *challenge.Participation {
	c := *p
	if p.CompletedAt != nil {
		at := *p.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}
