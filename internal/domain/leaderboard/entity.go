// Package leaderboard содержит проекцию рейтинга EcoQuest.
// Рейтинг только читается: он пересчитывается из eco-points студентов
// и никогда не изменяется напрямую.
package leaderboard

import (
	"fmt"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Rank представляет позицию студента в лидерборде.
// Rank начинается с 1 (первое место).
type Rank int

// IsValid проверяет, что ранг положительный.
func (r Rank) IsValid() bool {
	return r > 0
}

// String возвращает строковое представление ранга.
func (r Rank) String() string {
	return fmt.Sprintf("#%d", r)
}

const (
	// DefaultLimit - размер рейтинга, если лимит не указан.
	DefaultLimit = 20

	// MaxLimit - максимальный размер рейтинга в одном ответе.
	MaxLimit = 100
)

// NormalizeLimit приводит запрошенный лимит к диапазону 1..max.
// Значение <= 0 означает лимит по умолчанию.
func NormalizeLimit(limit, def, max int) int {
	if def <= 0 {
		def = DefaultLimit
	}
	if max <= 0 {
		max = MaxLimit
	}
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Standing - исходные данные студента для ранжирования.
type Standing struct {
	StudentID   string
	DisplayName string
	EcoPoints   int
	Level       int

	// Seq - порядок создания студента. Меньше - создан раньше.
	Seq int64
}

// Entry - строка рейтинга.
type Entry struct {
	Rank        Rank   `json:"rank"`
	StudentID   string `json:"student_id"`
	DisplayName string `json:"name"`
	EcoPoints   int    `json:"eco_points"`
	Level       int    `json:"level"`
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

// RankStandings упорядочивает студентов по eco-points по убыванию. При равенстве
// раньше созданный студент стоит выше. limit <= 0 возвращает всех.
// Вход не изменяется.
func RankStandings(standings []Standing, limit int) []Entry {
	sorted := make([]Standing, len(standings))
	copy(sorted, standings)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].EcoPoints != sorted[j].EcoPoints {
			return sorted[i].EcoPoints > sorted[j].EcoPoints
		}
		return sorted[i].Seq < sorted[j].Seq
	})

	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	entries := make([]Entry, len(sorted))
	for i, s := range sorted {
		entries[i] = Entry{
			Rank:        Rank(i + 1),
			StudentID:   s.StudentID,
			DisplayName: s.DisplayName,
			EcoPoints:   s.EcoPoints,
			Level:       s.Level,
		}
	}
	return entries
}

// Top возвращает первые limit строк уже ранжированного списка.
func Top(entries []Entry, limit int) []Entry {
	if limit <= 0 || limit >= len(entries) {
		out := make([]Entry, len(entries))
		copy(out, entries)
		return out
	}
	out := make([]Entry, limit)
	copy(out, entries[:limit])
	return out
}
