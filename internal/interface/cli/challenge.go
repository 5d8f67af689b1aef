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

func newChallengeCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "challenge",
		Short: "Manage challenge participation",
	}
	cmd.AddCommand(newChallengeJoinCommand(r))
	cmd.AddCommand(newChallengeCompleteCommand(r))
	cmd.AddCommand(newChallengeParticipantsCommand(r))
	return cmd
}

func newChallengeJoinCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "join <challenge-id> <student-id>",
		Short: "Join a student to a challenge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container, out *outputFormatter) error {
				p, err := c.JoinChallenge.Handle(ctx, command.JoinChallengeCommand{
					ChallengeID: args[0],
					StudentID:   args[1],
				})
				if err != nil {
					return err
				}
				view := query.ParticipationFrom(p)
				return out.Success(view, func(w io.Writer) {
					fmt.Fprintf(w, "%s joined %s at %s\n", view.StudentID, view.ChallengeID, view.JoinedAt.Format(time.RFC3339))
				})
			})
		},
	}
}

type challengeCompletionView struct {
	progressView
	Participation   query.ParticipationDTO `json:"participation"`
	AlreadyRewarded bool                   `json:"already_rewarded,omitempty"`
}

func newChallengeCompleteCommand(r *runner) *cobra.Command {
	var points int

	cmd := &cobra.Command{
		Use:   "complete <challenge-id> <student-id>",
		Short: "Mark a joined challenge completed and pay its reward once",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container, out *outputFormatter) error {
				res, err := c.CompleteChallenge.Handle(ctx, command.CompleteChallengeCommand{
					ChallengeID:  args[0],
					StudentID:    args[1],
					PointsReward: points,
				})
				if err != nil {
					return err
				}
				view := challengeCompletionView{
					progressView:    newProgressView(res.ProgressResult, c.Catalog),
					Participation:   query.ParticipationFrom(res.Participation),
					AlreadyRewarded: res.AlreadyRewarded,
				}
				return out.Success(view, func(w io.Writer) {
					if view.AlreadyRewarded {
						fmt.Fprintf(w, "challenge %s was already rewarded, nothing awarded\n", args[0])
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

func newChallengeParticipantsCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "participants <challenge-id>",
		Short: "List participants in join order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container, out *outputFormatter) error {
				list, err := c.ListParticipants.Handle(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Success(list, func(w io.Writer) {
					tw := newTable(w)
					fmt.Fprintln(tw, "STUDENT\tJOINED\tCOMPLETED")
					for _, p := range list {
						completed := "-"
						if p.CompletedAt != nil {
							completed = p.CompletedAt.Format(time.RFC3339)
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\n", p.StudentID, p.JoinedAt.Format(time.RFC3339), completed)
					}
					_ = tw.Flush()
				})
			})
		},
	}
}
