// Package catalog loads the static configuration of the progression engine
// from YAML: the badge catalog and quiz fixtures. Files are read once at
// startup; unknown fields are rejected so typos fail loudly.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ecoquest/ecoquest-progression/internal/domain/badge"
	"github.com/ecoquest/ecoquest-progression/internal/domain/quiz"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

type badgeFile struct {
	Badges []badgeDoc `yaml:"badges"`
}

type badgeDoc struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Icon        string  `yaml:"icon"`
	Rule        ruleDoc `yaml:"rule"`
}

type ruleDoc struct {
	Kind      string `yaml:"kind"`
	Threshold int    `yaml:"threshold"`
	MinScore  int    `yaml:"min_score,omitempty"`
}

// LoadBadgeCatalog reads a badge catalog file. An empty path returns the
// built-in catalog.
func LoadBadgeCatalog(path string) (*badge.Catalog, error) {
	if path == "" {
		return badge.DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read badge catalog: %w", err)
	}

	c, err := ParseBadgeCatalog(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseBadgeCatalog decodes and validates a badge catalog document.
func ParseBadgeCatalog(r io.Reader) (*badge.Catalog, error) {
	var file badgeFile
	if err := decodeStrict(r, &file); err != nil {
		return nil, fmt.Errorf("decode badge catalog: %w", err)
	}
	if len(file.Badges) == 0 {
		return nil, fmt.Errorf("%w: no badges defined", badge.ErrInvalidCatalog)
	}

	defs := make([]badge.Definition, 0, len(file.Badges))
	for _, d := range file.Badges {
		defs = append(defs, badge.Definition{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Icon:        d.Icon,
			Rule: badge.Rule{
				Kind:      badge.RuleKind(d.Rule.Kind),
				Threshold: d.Rule.Threshold,
				MinScore:  d.Rule.MinScore,
			},
		})
	}

	return badge.NewCatalog(defs)
}

// EncodeBadgeCatalog writes c in the same format ParseBadgeCatalog reads.
func EncodeBadgeCatalog(w io.Writer, c *badge.Catalog) error {
	file := badgeFile{}
	for _, d := range c.Definitions() {
		file.Badges = append(file.Badges, badgeDoc{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Icon:        d.Icon,
			Rule: ruleDoc{
				Kind:      string(d.Rule.Kind),
				Threshold: d.Rule.Threshold,
				MinScore:  d.Rule.MinScore,
			},
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(file); err != nil {
		return err
	}
	return enc.Close()
}

// ══════════════════════════════════════════════════════════════════════════════
// QUIZZES
// ══════════════════════════════════════════════════════════════════════════════

type quizFile struct {
	Quizzes []quizDoc `yaml:"quizzes"`
}

type quizDoc struct {
	ID               string        `yaml:"id"`
	Title            string        `yaml:"title"`
	PassingScore     int           `yaml:"passing_score"`
	TimeLimitMinutes int           `yaml:"time_limit_minutes"`
	RewardPoints     int           `yaml:"reward_points"`
	Questions        []questionDoc `yaml:"questions"`
}

type questionDoc struct {
	ID           string   `yaml:"id"`
	Prompt       string   `yaml:"prompt"`
	Options      []string `yaml:"options"`
	CorrectIndex int      `yaml:"correct_index"`
	Points       int      `yaml:"points"`
}

// LoadQuizzes reads a quiz fixture file.
func LoadQuizzes(path string) ([]*quiz.Quiz, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quiz fixtures: %w", err)
	}

	quizzes, err := ParseQuizzes(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return quizzes, nil
}

// ParseQuizzes decodes quiz definitions and validates every one of them.
func ParseQuizzes(r io.Reader) ([]*quiz.Quiz, error) {
	var file quizFile
	if err := decodeStrict(r, &file); err != nil {
		return nil, fmt.Errorf("decode quizzes: %w", err)
	}

	seen := make(map[string]bool, len(file.Quizzes))
	out := make([]*quiz.Quiz, 0, len(file.Quizzes))
	for i, d := range file.Quizzes {
		if d.ID == "" {
			return nil, fmt.Errorf("quiz %d: id is required", i)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("quiz %q is defined twice", d.ID)
		}
		seen[d.ID] = true

		q := &quiz.Quiz{
			ID:               d.ID,
			Title:            d.Title,
			PassingScore:     d.PassingScore,
			TimeLimitMinutes: d.TimeLimitMinutes,
			RewardPoints:     d.RewardPoints,
		}
		for _, qd := range d.Questions {
			q.Questions = append(q.Questions, quiz.Question{
				ID:           qd.ID,
				Prompt:       qd.Prompt,
				Options:      qd.Options,
				CorrectIndex: qd.CorrectIndex,
				Points:       qd.Points,
			})
		}
		if err := q.Validate(); err != nil {
			return nil, err
		}
		out = append(out, q)
	}

	return out, nil
}

// ImportQuizzes saves quizzes into repo and returns how many were written.
func ImportQuizzes(ctx context.Context, repo quiz.Repository, quizzes []*quiz.Quiz) (int, error) {
	for i, q := range quizzes {
		if err := repo.Save(ctx, q); err != nil {
			return i, fmt.Errorf("save quiz %q: %w", q.ID, err)
		}
	}
	return len(quizzes), nil
}

func decodeStrict(r io.Reader, dest interface{}) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("document is empty")
		}
		return err
	}
	return nil
}
