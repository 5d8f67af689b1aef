package query

import (
	"context"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/badge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT STATS QUERY
// Снимок прогресса студента: очки, уровень, прогресс до следующего уровня,
// значки с описаниями из каталога.
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentStatsQuery содержит параметры запроса.
type GetStudentStatsQuery struct {
	// StudentID - внутренний ID студента.
	StudentID string

	// AccountID - альтернативный поиск по аккаунту. Используется, если
	// StudentID пуст.
	AccountID string
}

// EarnedBadgeDTO - полученный значок вместе с данными каталога.
type EarnedBadgeDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
	EarnedAt    time.Time `json:"earned_at"`
}

// StudentStatsDTO - ответ запроса.
type StudentStatsDTO struct {
	StudentID        string           `json:"student_id"`
	AccountID        string           `json:"account_id,omitempty"`
	DisplayName      string           `json:"name"`
	EcoPoints        int              `json:"eco_points"`
	Level            int              `json:"level"`
	NextLevelAt      int              `json:"next_level_at"`
	ProgressPercent  float64          `json:"progress_percent"`
	CompletedLessons int              `json:"completed_lessons"`
	QuizAttempts     int              `json:"quiz_attempts"`
	Badges           []EarnedBadgeDTO `json:"badges"`
	CreatedAt        *time.Time       `json:"created_at,omitempty"`
}

// GetStudentStatsHandler обрабатывает запрос статистики.
type GetStudentStatsHandler struct {
	students student.Repository
	catalog  *badge.Catalog
}

// NewGetStudentStatsHandler создаёт обработчик.
func NewGetStudentStatsHandler(students student.Repository, catalog *badge.Catalog) *GetStudentStatsHandler {
	if catalog == nil {
		catalog = badge.DefaultCatalog()
	}
	return &GetStudentStatsHandler{students: students, catalog: catalog}
}

// Handle выполняет запрос.
func (h *GetStudentStatsHandler) Handle(ctx context.Context, query GetStudentStatsQuery) (*StudentStatsDTO, error) {
	var (
		s   *student.Student
		err error
	)
	switch {
	case query.StudentID != "":
		s, err = h.students.GetByID(ctx, query.StudentID)
	case query.AccountID != "":
		s, err = h.students.GetByAccountID(ctx, query.AccountID)
	default:
		return nil, shared.Validationf("query", "GetStudentStats", "student id or account id is required")
	}
	if err != nil {
		return nil, err
	}

	return StudentStatsFrom(s.Stats(), h.catalog, s.AccountID, s.CreatedAt), nil
}

// StudentStatsFrom строит DTO из снимка агрегата. Пустые accountID и
// createdAt не попадают в JSON.
func StudentStatsFrom(stats student.Stats, catalog *badge.Catalog, accountID string, createdAt time.Time) *StudentStatsDTO {
	badges := make([]EarnedBadgeDTO, 0, len(stats.Badges))
	for _, b := range stats.Badges {
		badges = append(badges, BadgeDTO(catalog, b))
	}

	dto := &StudentStatsDTO{
		StudentID:        stats.StudentID,
		AccountID:        accountID,
		DisplayName:      stats.DisplayName,
		EcoPoints:        stats.EcoPoints.Int(),
		Level:            stats.Level.Int(),
		NextLevelAt:      stats.Progress.NextTierAt.Int(),
		ProgressPercent:  stats.Progress.ProgressPercent,
		CompletedLessons: stats.CompletedLessons,
		QuizAttempts:     stats.QuizAttempts,
		Badges:           badges,
	}
	if !createdAt.IsZero() {
		dto.CreatedAt = &createdAt
	}
	return dto
}

// BadgeDTO дополняет полученный значок данными каталога. Значок, которого
// уже нет в каталоге, отдаётся с ID вместо имени.
func BadgeDTO(catalog *badge.Catalog, b student.EarnedBadge) EarnedBadgeDTO {
	dto := EarnedBadgeDTO{ID: b.BadgeID, Name: b.BadgeID, EarnedAt: b.EarnedAt}
	if def, ok := catalog.Lookup(b.BadgeID); ok {
		dto.Name = def.Name
		dto.Description = def.Description
		dto.Icon = def.Icon
	}
	return dto
}
