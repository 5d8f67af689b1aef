// Package badge содержит каталог значков и правила их получения.
// Каталог неизменяем после создания: он загружается один раз при старте
// процесса и передаётся в леджер прогресса.
package badge

import (
	"errors"
	"fmt"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// RULES
// ══════════════════════════════════════════════════════════════════════════════

// RuleKind определяет, над какой статистикой вычисляется предикат.
type RuleKind string

const (
	// RuleEcoPoints - eco_points >= Threshold.
	RuleEcoPoints RuleKind = "eco_points"
	// RuleLessonsCompleted - количество пройденных уроков >= Threshold.
	RuleLessonsCompleted RuleKind = "lessons_completed"
	// RuleQuizAttempts - количество попыток (любых, включая проваленные) >= Threshold.
	RuleQuizAttempts RuleKind = "quiz_attempts"
	// RuleQuizzesPassed - количество успешных попыток >= Threshold.
	RuleQuizzesPassed RuleKind = "quizzes_passed"
	// RuleQuizScore - не меньше Threshold попыток с результатом >= MinScore.
	RuleQuizScore RuleKind = "quiz_score"
)

// IsValid проверяет, что тип правила известен.
func (k RuleKind) IsValid() bool {
	switch k {
	case RuleEcoPoints, RuleLessonsCompleted, RuleQuizAttempts, RuleQuizzesPassed, RuleQuizScore:
		return true
	default:
		return false
	}
}

// Rule - предикат получения значка.
type Rule struct {
	Kind      RuleKind
	Threshold int

	// MinScore используется только для RuleQuizScore (0-100).
	MinScore int
}

// Validate проверяет корректность правила.
func (r Rule) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	if r.Threshold < 1 {
		return fmt.Errorf("threshold must be at least 1, got %d", r.Threshold)
	}
	if r.Kind == RuleQuizScore && (r.MinScore < 0 || r.MinScore > 100) {
		return fmt.Errorf("min_score must be within 0-100, got %d", r.MinScore)
	}
	return nil
}

// Satisfied вычисляет предикат. Чистая функция без побочных эффектов.
func (r Rule) Satisfied(s Stats) bool {
	switch r.Kind {
	case RuleEcoPoints:
		return s.EcoPoints >= r.Threshold
	case RuleLessonsCompleted:
		return s.CompletedLessons >= r.Threshold
	case RuleQuizAttempts:
		return len(s.Attempts) >= r.Threshold
	case RuleQuizzesPassed:
		return s.countAttempts(func(a AttemptStat) bool { return a.Passed }) >= r.Threshold
	case RuleQuizScore:
		return s.countAttempts(func(a AttemptStat) bool { return a.ScorePercent >= r.MinScore }) >= r.Threshold
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

// AttemptStat - проекция попытки прохождения квиза, нужная правилам.
type AttemptStat struct {
	ScorePercent int
	Passed       bool
}

// Stats - снимок агрегированной статистики студента после обновления.
type Stats struct {
	EcoPoints        int
	CompletedLessons int
	Attempts         []AttemptStat
}

func (s Stats) countAttempts(match func(AttemptStat) bool) int {
	n := 0
	for _, a := range s.Attempts {
		if match(a) {
			n++
		}
	}
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Definition - запись каталога.
type Definition struct {
	ID          string
	Name        string
	Description string
	Icon        string
	Rule        Rule
}

// Catalog - упорядоченная таблица значков.
// Порядок определений задаёт порядок выдачи при одновременном получении.
type Catalog struct {
	defs  []Definition
	index map[string]int
}

// ErrInvalidCatalog возвращается при некорректном определении каталога.
var ErrInvalidCatalog = errors.New("invalid badge catalog")

// NewCatalog создаёт каталог с валидацией всех записей.
func NewCatalog(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		defs:  make([]Definition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}

	for i, d := range defs {
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return nil, fmt.Errorf("%w: entry %d has empty id", ErrInvalidCatalog, i)
		}
		if _, dup := c.index[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidCatalog, d.ID)
		}
		if err := d.Rule.Validate(); err != nil {
			return nil, fmt.Errorf("%w: badge %q: %v", ErrInvalidCatalog, d.ID, err)
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		c.index[d.ID] = len(c.defs)
		c.defs = append(c.defs, d)
	}

	return c, nil
}

// MustCatalog - как NewCatalog, но паникует. Только для статических таблиц.
func MustCatalog(defs []Definition) *Catalog {
	c, err := NewCatalog(defs)
	if err != nil {
		panic(err)
	}
	return c
}

// Definitions возвращает копию определений в порядке каталога.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Len возвращает количество значков.
func (c *Catalog) Len() int {
	return len(c.defs)
}

// Lookup возвращает определение по идентификатору.
func (c *Catalog) Lookup(id string) (Definition, bool) {
	i, ok := c.index[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Has проверяет, что значок определён в каталоге.
func (c *Catalog) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}

// NewlyEligible возвращает значки, условия которых выполнены для stats
// и которых ещё нет среди earned. Порядок - порядок каталога.
func (c *Catalog) NewlyEligible(stats Stats, earned map[string]bool) []string {
	var out []string
	for _, d := range c.defs {
		if earned[d.ID] {
			continue
		}
		if d.Rule.Satisfied(stats) {
			out = append(out, d.ID)
		}
	}
	return out
}
