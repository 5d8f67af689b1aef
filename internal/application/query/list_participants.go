package query

import (
	"context"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/challenge"
)

// ParticipationDTO - участие студента в челлендже.
type ParticipationDTO struct {
	ChallengeID string     `json:"challenge_id"`
	StudentID   string     `json:"student_id"`
	JoinedAt    time.Time  `json:"joined_at"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ParticipationFrom строит DTO из сущности.
func ParticipationFrom(p *challenge.Participation) ParticipationDTO {
	return ParticipationDTO{
		ChallengeID: p.ChallengeID,
		StudentID:   p.StudentID,
		JoinedAt:    p.JoinedAt,
		Completed:   p.Completed,
		CompletedAt: p.CompletedAt,
	}
}

// ListParticipantsHandler отдаёт участников челленджа в порядке вступления.
type ListParticipantsHandler struct {
	tracker *challenge.Tracker
}

// NewListParticipantsHandler создаёт обработчик.
func NewListParticipantsHandler(tracker *challenge.Tracker) *ListParticipantsHandler {
	return &ListParticipantsHandler{tracker: tracker}
}

// Handle выполняет запрос.
func (h *ListParticipantsHandler) Handle(ctx context.Context, challengeID string) ([]ParticipationDTO, error) {
	participants, err := h.tracker.ListParticipants(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	out := make([]ParticipationDTO, 0, len(participants))
	for _, p := range participants {
		out = append(out, ParticipationFrom(p))
	}
	return out, nil
}
