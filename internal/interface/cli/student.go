package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecoquest/ecoquest-progression/internal/app"
	"github.com/ecoquest/ecoquest-progression/internal/application/command"
	"github.com/ecoquest/ecoquest-progression/internal/application/query"
)

// newStudentCommand groups student registration and inspection.
func newStudentCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "student",
		Short: "Register and inspect students",
	}
	cmd.AddCommand(newStudentRegisterCommand(r))
	cmd.AddCommand(newStudentStatsCommand(r))
	cmd.AddCommand(newStudentLedgerCommand(r))
	return cmd
}

func newStudentRegisterCommand(r *runner) *cobra.Command {
	var account, name string

	cmd := &cobra.Command{
		Use:   "register --account <id> --name <display name>",
		Short: "Register a student with a zero balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container, out *outputFormatter) error {
				res, err := c.RegisterStudent.Handle(ctx, command.RegisterStudentCommand{
					AccountID:   account,
					DisplayName: name,
				})
				if err != nil {
					return err
				}
				stats := query.StudentStatsFrom(res.Stats, c.Catalog, account, time.Time{})
				return out.Success(stats, func(w io.Writer) { writeStats(w, stats) })
			})
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "external account id (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name (required)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newStudentStatsCommand(r *runner) *cobra.Command {
	var byAccount bool

	cmd := &cobra.Command{
		Use:   "stats <student-id>",
		Short: "Show balance, level, progress and badges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container, out *outputFormatter) error {
				q := query.GetStudentStatsQuery{StudentID: args[0]}
				if byAccount {
					q = query.GetStudentStatsQuery{AccountID: args[0]}
				}
				stats, err := c.GetStudentStats.Handle(ctx, q)
				if err != nil {
					return err
				}
				return out.Success(stats, func(w io.Writer) { writeStats(w, stats) })
			})
		},
	}

	cmd.Flags().BoolVar(&byAccount, "by-account", false, "treat the argument as an account id")
	return cmd
}

func newStudentLedgerCommand(r *runner) *cobra.Command {
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "ledger <student-id>",
		Short: "List ledger entries, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container, out *outputFormatter) error {
				res, err := c.GetPointsHistory.Handle(ctx, query.GetPointsHistoryQuery{
					StudentID: args[0],
					Page:      page,
					PageSize:  pageSize,
				})
				if err != nil {
					return err
				}
				return out.Success(res, func(w io.Writer) {
					tw := newTable(w)
					fmt.Fprintln(tw, "SOURCE\tREFERENCE\tPOINTS\tBALANCE\tCREATED")
					for _, e := range res.Entries {
						fmt.Fprintf(tw, "%s\t%s\t%+d\t%d\t%s\n", e.Source, e.Reference, e.Points, e.BalanceAfter, e.CreatedAt)
					}
					_ = tw.Flush()
					fmt.Fprintf(w, "page %d, %d of %d entries\n", res.Page, len(res.Entries), res.Total)
				})
			})
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "entries per page")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// LESSONS
// ══════════════════════════════════════════════════════════════════════════════

func newLessonCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lesson",
		Short: "Record lesson activity",
	}
	cmd.AddCommand(newLessonCompleteCommand(r))
	return cmd
}

// lessonView adds the duplicate marker to the progress shape.
type lessonView struct {
	progressView
	AlreadyCompleted bool `json:"already_completed,omitempty"`
}

func newLessonCompleteCommand(r *runner) *cobra.Command {
	var points int

	cmd := &cobra.Command{
		Use:   "complete <student-id> <lesson-id>",
		Short: "Complete a lesson and award its reward once",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container, out *outputFormatter) error {
				res, err := c.CompleteLesson.Handle(ctx, command.CompleteLessonCommand{
					StudentID:    args[0],
					LessonID:     args[1],
					PointsReward: points,
				})
				if err != nil {
					return err
				}
				view := lessonView{
					progressView:     newProgressView(res.ProgressResult, c.Catalog),
					AlreadyCompleted: res.AlreadyCompleted,
				}
				return out.Success(view, func(w io.Writer) {
					if view.AlreadyCompleted {
						fmt.Fprintf(w, "lesson %s was already completed, nothing awarded\n", args[1])
						return
					}
					writeProgress(w, view.progressView)
				})
			})
		},
	}

	cmd.Flags().IntVar(&points, "points", 0, "eco-points reward")
	return cmd
}
