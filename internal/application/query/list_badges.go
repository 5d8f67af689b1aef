package query

import (
	"github.com/ecoquest/ecoquest-progression/internal/domain/badge"
)

// BadgeDefinitionDTO - определение значка из каталога.
type BadgeDefinitionDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
	Rule        string `json:"rule"`
	Threshold   int    `json:"threshold"`
	MinScore    int    `json:"min_score,omitempty"`
}

// ListBadgesHandler отдаёт каталог значков в порядке выдачи.
type ListBadgesHandler struct {
	catalog *badge.Catalog
}

// NewListBadgesHandler создаёт обработчик.
func NewListBadgesHandler(catalog *badge.Catalog) *ListBadgesHandler {
	if catalog == nil {
		catalog = badge.DefaultCatalog()
	}
	return &ListBadgesHandler{catalog: catalog}
}

// Handle возвращает все определения.
func (h *ListBadgesHandler) Handle() []BadgeDefinitionDTO {
	defs := h.catalog.Definitions()
	out := make([]BadgeDefinitionDTO, 0, len(defs))
	for _, d := range defs {
		out = append(out, BadgeDefinitionDTO{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Icon:        d.Icon,
			Rule:        string(d.Rule.Kind),
			Threshold:   d.Rule.Threshold,
			MinScore:    d.Rule.MinScore,
		})
	}
	return out
}
