package query

import (
	"context"

	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
	"github.com/ecoquest/ecoquest-progression/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET POINTS HISTORY QUERY
// Журнал начислений eco-points, новые записи первыми.
// ══════════════════════════════════════════════════════════════════════════════

// GetPointsHistoryQuery содержит параметры запроса.
type GetPointsHistoryQuery struct {
	StudentID string
	Page      int
	PageSize  int
}

// LedgerEntryDTO - запись журнала.
type LedgerEntryDTO struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Reference    string `json:"reference"`
	Points       int    `json:"points"`
	BalanceAfter int    `json:"balance_after"`
	CreatedAt    string `json:"created_at"`
}

// GetPointsHistoryResult - страница журнала.
type GetPointsHistoryResult struct {
	Entries  []LedgerEntryDTO `json:"entries"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	HasMore  bool             `json:"has_more"`
}

// GetPointsHistoryHandler обрабатывает запрос журнала.
type GetPointsHistoryHandler struct {
	students student.Repository
}

// NewGetPointsHistoryHandler создаёт обработчик.
func NewGetPointsHistoryHandler(students student.Repository) *GetPointsHistoryHandler {
	return &GetPointsHistoryHandler{students: students}
}

// Handle выполняет запрос.
func (h *GetPointsHistoryHandler) Handle(ctx context.Context, query GetPointsHistoryQuery) (*GetPointsHistoryResult, error) {
	if query.StudentID == "" {
		return nil, shared.Validationf("query", "GetPointsHistory", "student id is required")
	}

	page := shared.NewPagination(query.Page, query.PageSize)
	entries, total, err := h.students.ListLedger(ctx, query.StudentID, page)
	if err != nil {
		return nil, err
	}

	dtos := make([]LedgerEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, LedgerEntryDTO{
			ID:           e.ID,
			Source:       string(e.Source),
			Reference:    e.Reference,
			Points:       e.Points.Int(),
			BalanceAfter: e.BalanceAfter.Int(),
			CreatedAt:    timeutil.FormatRFC3339(e.CreatedAt),
		})
	}

	return &GetPointsHistoryResult{
		Entries:  dtos,
		Total:    total,
		Page:     page.Page,
		PageSize: page.PageSize,
		HasMore:  page.Offset()+len(entries) < total,
	}, nil
}
