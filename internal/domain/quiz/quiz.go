// Package quiz содержит определение квиза и движок оценки попыток.
// Содержимое квизов принадлежит внешней системе; здесь только то,
// что нужно для проверки ответов.
package quiz

import (
	"context"
	"fmt"

	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// Question - вопрос с вариантами ответа.
type Question struct {
	ID      string
	Prompt  string
	Options []string

	// CorrectIndex - индекс правильного варианта (с нуля).
	CorrectIndex int

	// Points - вес вопроса. Информационный, на eco-points не влияет.
	Points int
}

// Quiz - определение квиза.
type Quiz struct {
	ID        string
	Title     string
	Questions []Question

	// PassingScore - проходной балл в процентах (0-100).
	PassingScore int

	// TimeLimitMinutes - ограничение по времени. 0 - без ограничения.
	TimeLimitMinutes int

	// RewardPoints - eco-points за успешную попытку.
	RewardPoints int
}

// Validate проверяет определение квиза.
// Любая ошибка оборачивает shared.ErrInvalidQuizDefinition.
func (q *Quiz) Validate() error {
	if q == nil {
		return fmt.Errorf("%w: quiz is nil", shared.ErrInvalidQuizDefinition)
	}
	if len(q.Questions) == 0 {
		return fmt.Errorf("%w: quiz %q has no questions", shared.ErrInvalidQuizDefinition, q.ID)
	}
	if q.PassingScore < 0 || q.PassingScore > 100 {
		return fmt.Errorf("%w: passing score %d is outside 0-100", shared.ErrInvalidQuizDefinition, q.PassingScore)
	}
	if q.TimeLimitMinutes < 0 {
		return fmt.Errorf("%w: negative time limit", shared.ErrInvalidQuizDefinition)
	}
	if q.RewardPoints < 0 {
		return fmt.Errorf("%w: negative reward", shared.ErrInvalidQuizDefinition)
	}

	for i, question := range q.Questions {
		if len(question.Options) < 2 {
			return fmt.Errorf("%w: question %d has %d options, need at least 2",
				shared.ErrInvalidQuizDefinition, i, len(question.Options))
		}
		if question.CorrectIndex < 0 || question.CorrectIndex >= len(question.Options) {
			return fmt.Errorf("%w: question %d correct index %d is out of range",
				shared.ErrInvalidQuizDefinition, i, question.CorrectIndex)
		}
		if question.Points < 0 {
			return fmt.Errorf("%w: question %d has negative points", shared.ErrInvalidQuizDefinition, i)
		}
	}

	return nil
}

// TimeLimitSeconds возвращает ограничение по времени в секундах.
func (q *Quiz) TimeLimitSeconds() int {
	return q.TimeLimitMinutes * 60
}

// MaxPoints возвращает сумму весов всех вопросов.
func (q *Quiz) MaxPoints() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return total
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository - источник определений квизов.
type Repository interface {
	// GetByID возвращает квиз. Возвращает shared.ErrQuizNotFound, если квиза нет.
	GetByID(ctx context.Context, id string) (*Quiz, error)

	// Save создаёт или заменяет определение квиза.
	Save(ctx context.Context, q *Quiz) error

	// List возвращает все квизы, упорядоченные по ID.
	List(ctx context.Context) ([]*Quiz, error)
}
