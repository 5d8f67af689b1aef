package quiz

import (
	"fmt"
	"time"

	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANSWERS
// ══════════════════════════════════════════════════════════════════════════════

// Answer - выбранный вариант ответа или Unanswered.
type Answer int

// Unanswered - вопрос оставлен без ответа. Любое отрицательное значение
// трактуется так же.
const Unanswered Answer = -1

// Choice создаёт ответ с выбранным вариантом.
func Choice(index int) Answer {
	if index < 0 {
		return Unanswered
	}
	return Answer(index)
}

// IsAnswered возвращает true, если вариант выбран.
func (a Answer) IsAnswered() bool {
	return a >= 0
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADING
// ══════════════════════════════════════════════════════════════════════════════

// Submission - отправленная попытка.
type Submission struct {
	AttemptID        string
	StudentID        string
	Answers          []Answer
	TimeTakenSeconds int
	SubmittedAt      time.Time
}

// AttemptResult - результат оценки. После создания не изменяется.
type AttemptResult struct {
	ID        string
	QuizID    string
	StudentID string

	// Answers - ответы, дополненные Unanswered до числа вопросов.
	Answers []Answer

	CorrectCount   int
	TotalQuestions int
	ScorePercent   int

	EarnedQuestionPoints int
	MaxQuestionPoints    int

	Passed bool
	Late   bool

	TimeTakenSeconds int
	CompletedAt      time.Time
}

// Grade оценивает попытку. Чистая функция: не меняет ни квиз, ни студента.
//
// Ответ верен, только если совпадает с CorrectIndex; пропущенный ответ или
// индекс вне диапазона считаются неверными. Процент округляется по правилу
// "половина вверх". Опоздание только помечается и на оценку не влияет.
func Grade(q *Quiz, sub Submission) (AttemptResult, error) {
	if err := q.Validate(); err != nil {
		return AttemptResult{}, err
	}

	total := len(q.Questions)
	if len(sub.Answers) > total {
		return AttemptResult{}, fmt.Errorf("%w: got %d answers for %d questions",
			shared.ErrInvalidAnswers, len(sub.Answers), total)
	}
	if sub.TimeTakenSeconds < 0 {
		return AttemptResult{}, fmt.Errorf("%w: negative time taken", shared.ErrInvalidAnswers)
	}

	answers := make([]Answer, total)
	for i := range answers {
		answers[i] = Unanswered
	}
	for i, a := range sub.Answers {
		if a.IsAnswered() {
			answers[i] = a
		}
	}

	correct := 0
	earned := 0
	for i, question := range q.Questions {
		if answers[i].IsAnswered() && int(answers[i]) == question.CorrectIndex {
			correct++
			earned += question.Points
		}
	}

	score := ScorePercent(correct, total)
	limit := q.TimeLimitSeconds()

	return AttemptResult{
		ID:                   sub.AttemptID,
		QuizID:               q.ID,
		StudentID:            sub.StudentID,
		Answers:              answers,
		CorrectCount:         correct,
		TotalQuestions:       total,
		ScorePercent:         score,
		EarnedQuestionPoints: earned,
		MaxQuestionPoints:    q.MaxPoints(),
		Passed:               score >= q.PassingScore,
		Late:                 limit > 0 && sub.TimeTakenSeconds > limit,
		TimeTakenSeconds:     sub.TimeTakenSeconds,
		CompletedAt:          sub.SubmittedAt,
	}, nil
}

// ScorePercent возвращает round(correct/total*100) с округлением половины
// вверх, в целых числах. total должен быть положительным.
func ScorePercent(correct, total int) int {
	return (correct*200 + total) / (2 * total)
}
