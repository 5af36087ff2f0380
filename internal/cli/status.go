package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jrsteele09/climate-crusade/session"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show who is signed in and when the session expires",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *App) error {
				printSnapshot(cmd.OutOrStdout(), a.Controller.Snapshot(), time.Now())
				return nil
			})
		},
	}
}

func printSnapshot(out io.Writer, snap session.Snapshot, now time.Time) {
	fmt.Fprintf(out, "State:    %s\n", snap.State)
	if snap.Expired {
		fmt.Fprintln(out, "          (the session expired)")
	}
	if snap.Session == nil {
		return
	}
	user := snap.Session.User
	fmt.Fprintf(out, "User:     %s\n", user.ID)
	if user.Email != "" {
		fmt.Fprintf(out, "Email:    %s\n", user.Email)
	}
	if !user.CreatedAt.IsZero() {
		fmt.Fprintf(out, "Joined:   %s\n", humanize.RelTime(user.CreatedAt, now, "ago", "from now"))
	}
	fmt.Fprintf(out, "Expires:  %s\n", humanize.RelTime(snap.Session.Expiry(), now, "ago", "from now"))
}
