package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ecoquest/ecoquest-progression/internal/domain/quiz"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

// QuizRepository implements quiz.Repository in memory.
type QuizRepository struct {
	mu      sync.RWMutex
	quizzes map[string]*quiz.Quiz
}

// NewQuizRepository creates a store pre-populated with the given quizzes.
func NewQuizRepository(quizzes ...*quiz.Quiz) *QuizRepository {
	r := &QuizRepository{quizzes: make(map[string]*quiz.Quiz, len(quizzes))}
	for _, q := range quizzes {
		r.quizzes[q.ID] = copyQuiz(q)
	}
	return r
}

// GetByID returns a copy of the quiz.
func (r *QuizRepository) GetByID(_ context.Context, id string) (*quiz.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.quizzes[id]
	if !ok {
		return nil, shared.ErrQuizNotFound
	}
	return copyQuiz(q), nil
}

// Save creates or replaces a quiz.
func (r *QuizRepository) Save(_ context.Context, q *quiz.Quiz) error {
	if err := q.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.quizzes[q.ID] = copyQuiz(q)
	return nil
}

// List returns all quizzes ordered by id.
func (r *QuizRepository) List(_ context.Context) ([]*quiz.Quiz, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*quiz.Quiz, 0, len(r.quizzes))
	for _, q := range r.quizzes {
		out = append(out, copyQuiz(q))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func copyQuiz(q *quiz.Quiz) *quiz.Quiz {
	c := *q
	c.Questions = make([]quiz.Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		c.Questions[i] = question
	}
	return &c
}
