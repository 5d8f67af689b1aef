package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ecoquest/ecoquest-progression/internal/app"
	"github.com/ecoquest/ecoquest-progression/internal/application/query"
	"github.com/ecoquest/ecoquest-progression/internal/interface/http/handlers"
)

func newLeaderboardCommand(r *runner) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the eco-points ranking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(ctx context.Context, c *app.Container, out *outputFormatter) error {
				res, err := c.GetLeaderboard.Handle(ctx, query.GetLeaderboardQuery{Limit: limit})
				if err != nil {
					return err
				}
				out.VerboseLog("from cache: %t", res.FromCache)
				return out.Success(res.Entries, func(w io.Writer) {
					if len(res.Entries) == 0 {
						fmt.Fprintln(w, "no students yet")
						return
					}
					tw := newTable(w)
					fmt.Fprintln(tw, "RANK\tNAME\tECO-POINTS\tLEVEL")
					for _, e := range res.Entries {
						fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", int(e.Rank), e.DisplayName, e.EcoPoints, e.Level)
					}
					_ = tw.Flush()
				})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "number of entries (0 uses the configured default)")
	return cmd
}

func newMigrateCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Open the configured store and apply pending migrations. Opening the
store migrates it, so this command only reports the result.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withContainer(cmd, func(_ context.Context, c *app.Container, out *outputFormatter) error {
				view := map[string]string{"driver": c.Config.Storage.Driver, "status": "up to date"}
				return out.Success(view, func(w io.Writer) {
					fmt.Fprintf(w, "%s schema is up to date\n", view["driver"])
				})
			})
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TOKEN
// ══════════════════════════════════════════════════════════════════════════════

func newTokenCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Admin token helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "hash [token]",
		Short: "Print the bcrypt hash for ADMIN_TOKEN_HASH",
		Long:  "Hash an admin token. Without an argument the token is read from the first line of stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := r.formatter(cmd)

			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return out.Fail(ExitCommandError, fmt.Errorf("read token: %w", err))
				}
				token = strings.TrimSpace(line)
			}

			hash, err := handlers.HashToken(token)
			if err != nil {
				return out.Fail(ExitCommandError, err)
			}
			return out.Success(map[string]string{"hash": hash}, func(w io.Writer) {
				fmt.Fprintln(w, hash)
			})
		},
	})
	return cmd
}
