package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ecoquest/ecoquest-progression/internal/app"
	"github.com/ecoquest/ecoquest-progression/internal/application/command"
)

func newBadgesCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "badges",
		Short: "Inspect the badge catalog and award badges",
	}
	cmd.AddCommand(newBadgesListCommand(r))
	cmd.AddCommand(newBadgesAwardCommand(r))
	return cmd
}

func newBadgesListCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List badge definitions in award order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(_ context.Context, c *app.Container, out *outputFormatter) error {
				defs := c.ListBadges.Handle()
				return out.Success(defs, func(w io.Writer) {
					tw := newTable(w)
					fmt.Fprintln(tw, "ID\tNAME\tRULE\tTHRESHOLD")
					for _, d := range defs {
						threshold := fmt.Sprintf("%d", d.Threshold)
						if d.MinScore > 0 {
							threshold = fmt.Sprintf("%d (score >= %d%%)", d.Threshold, d.MinScore)
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Rule, threshold)
					}
					_ = tw.Flush()
				})
			})
		},
	}
}

func newBadgesAwardCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "award <student-id> <badge-id>...",
		Short: "Award catalog badges manually",
		Long: `Award badges from the catalog. Badges the student already holds are
skipped; an unknown badge id rejects the whole request.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container, out *outputFormatter) error {
				res, err := c.AwardBadges.Handle(ctx, command.AwardBadgesCommand{
					StudentID: args[0],
					BadgeIDs:  args[1:],
				})
				if err != nil {
					return err
				}
				view := newProgressView(*res, c.Catalog)
				return out.Success(view, func(w io.Writer) {
					if len(view.NewBadges) == 0 {
						fmt.Fprintln(w, "no new badges, the student already holds them")
						return
					}
					writeProgress(w, view)
				})
			})
		},
	}
}
