package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jrsteele09/climate-crusade/challenges"
	"github.com/spf13/cobra"
)

func newChallengesCmd() *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "challenges",
		Short: "List climate challenges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *App) error {
				list, err := a.Challenges.List(ctx)
				if err != nil {
					return err
				}
				now := time.Now()
				if activeOnly {
					list = challenges.Active(list, now)
					challenges.SortByEnd(list)
				}
				printChallenges(cmd.OutOrStdout(), list, now)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only challenges running now, soonest-ending first")
	return cmd
}

func printChallenges(out io.Writer, list []*challenges.Challenge, now time.Time) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No challenges found.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TITLE\tPOINTS\tENDS")
	for _, c := range list {
		ends := "-"
		if !c.EndDate.IsZero() {
			ends = humanize.RelTime(c.EndDate.Time, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", c.Title, c.PointsReward, ends)
	}
	tw.Flush()
}
