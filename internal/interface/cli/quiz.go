package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecoquest/ecoquest-progression/internal/app"
	"github.com/ecoquest/ecoquest-progression/internal/application/command"
	"github.com/ecoquest/ecoquest-progression/internal/domain/quiz"
	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
	"github.com/ecoquest/ecoquest-progression/internal/infrastructure/catalog"
)

func newQuizCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Import quizzes and submit attempts",
	}
	cmd.AddCommand(newQuizImportCommand(r))
	cmd.AddCommand(newQuizSubmitCommand(r))
	return cmd
}

type importView struct {
	File     string   `json:"file"`
	Imported int      `json:"imported"`
	QuizIDs  []string `json:"quiz_ids"`
}

func newQuizImportCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Validate and store quiz definitions from a YAML file",
		Long: `Import quiz definitions. Every quiz in the file is validated before
anything is written; an existing quiz with the same id is replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container, out *outputFormatter) error {
				quizzes, err := catalog.LoadQuizzes(args[0])
				if err != nil {
					if errors.Is(err, shared.ErrInvalidDefinition) {
						return err
					}
					return out.Fail(ExitCommandError, err)
				}

				n, err := catalog.ImportQuizzes(ctx, c.Quizzes, quizzes)
				if err != nil {
					return err
				}

				view := importView{File: args[0], Imported: n, QuizIDs: make([]string, 0, n)}
				for _, q := range quizzes {
					view.QuizIDs = append(view.QuizIDs, q.ID)
				}
				out.VerboseLog("imported %v", view.QuizIDs)
				return out.Success(view, func(w io.Writer) {
					fmt.Fprintf(w, "imported %d quiz(zes) from %s\n", n, args[0])
				})
			})
		},
	}
}

// attemptView is the graded attempt; a null answer is a skipped question.
type attemptView struct {
	ID                   string    `json:"id"`
	QuizID               string    `json:"quiz_id"`
	Answers              []*int    `json:"answers"`
	CorrectCount         int       `json:"correct_count"`
	TotalQuestions       int       `json:"total_questions"`
	ScorePercent         int       `json:"score_percent"`
	EarnedQuestionPoints int       `json:"earned_question_points"`
	MaxQuestionPoints    int       `json:"max_question_points"`
	Passed               bool      `json:"passed"`
	Late                 bool      `json:"late"`
	TimeTakenSeconds     int       `json:"time_taken_seconds"`
	CompletedAt          time.Time `json:"completed_at"`
}

type submitView struct {
	progressView
	Attempt attemptView `json:"attempt"`
}

func newAttemptView(a quiz.AttemptResult) attemptView {
	answers := make([]*int, len(a.Answers))
	for i, ans := range a.Answers {
		if ans.IsAnswered() {
			v := int(ans)
			answers[i] = &v
		}
	}
	return attemptView{
		ID:                   a.ID,
		QuizID:               a.QuizID,
		Answers:              answers,
		CorrectCount:         a.CorrectCount,
		TotalQuestions:       a.TotalQuestions,
		ScorePercent:         a.ScorePercent,
		EarnedQuestionPoints: a.EarnedQuestionPoints,
		MaxQuestionPoints:    a.MaxQuestionPoints,
		Passed:               a.Passed,
		Late:                 a.Late,
		TimeTakenSeconds:     a.TimeTakenSeconds,
		CompletedAt:          a.CompletedAt,
	}
}

// parseAnswers reads chosen option indexes. "-" or an empty item skips a
// question.
func parseAnswers(items []string) ([]int, error) {
	answers := make([]int, len(items))
	for i, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || item == "-" {
			answers[i] = int(quiz.Unanswered)
			continue
		}
		n, err := strconv.Atoi(item)
		if err != nil || n < 0 {
			return nil, shared.Validationf("quiz", "Submit", "answer %d: %q is not an option index", i+1, item)
		}
		answers[i] = n
	}
	return answers, nil
}

func newQuizSubmitCommand(r *runner) *cobra.Command {
	var (
		rawAnswers []string
		timeTaken  int
	)

	cmd := &cobra.Command{
		Use:   "submit <student-id> <quiz-id> --answers 1,0,-,2",
		Short: "Grade and record a quiz attempt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container, out *outputFormatter) error {
				answers, err := parseAnswers(rawAnswers)
				if err != nil {
					return err
				}

				res, err := c.SubmitQuizAttempt.Handle(ctx, command.SubmitQuizAttemptCommand{
					StudentID:        args[0],
					QuizID:           args[1],
					Answers:          answers,
					TimeTakenSeconds: timeTaken,
				})
				if err != nil {
					return err
				}

				view := submitView{
					progressView: newProgressView(res.ProgressResult, c.Catalog),
					Attempt:      newAttemptView(res.Attempt),
				}
				return out.Success(view, func(w io.Writer) {
					a := view.Attempt
					verdict := "failed"
					if a.Passed {
						verdict = "passed"
					}
					fmt.Fprintf(w, "%s: %d/%d correct, %d%% (%s)\n", a.QuizID, a.CorrectCount, a.TotalQuestions, a.ScorePercent, verdict)
					if a.Late {
						fmt.Fprintln(w, "submitted after the time limit")
					}
					writeProgress(w, view.progressView)
				})
			})
		},
	}

	cmd.Flags().StringSliceVar(&rawAnswers, "answers", nil, "chosen option per question, '-' skips")
	cmd.Flags().IntVar(&timeTaken, "time", 0, "time taken in seconds")
	return cmd
}
