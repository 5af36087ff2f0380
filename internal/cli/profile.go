package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jrsteele09/climate-crusade/blobstore"
	"github.com/jrsteele09/climate-crusade/profiles"
	"github.com/spf13/cobra"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show your profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *App) error {
				userID, err := requireUser(a)
				if err != nil {
					return err
				}
				p, err := a.Profiles.Get(ctx, userID)
				if err != nil {
					return err
				}
				printProfile(cmd.OutOrStdout(), p, a.Avatars.PublicURL(blobstore.AvatarKey(userID)))
				return nil
			})
		},
	}
	cmd.AddCommand(newSetUsernameCmd())
	return cmd
}

func newSetUsernameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-username <name>",
		Short: "Change your username",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *App) error {
				userID, err := requireUser(a)
				if err != nil {
					return err
				}
				changed, err := a.Profiles.UpdateUsername(ctx, userID, args[0])
				if err != nil {
					return err
				}
				if changed {
					fmt.Fprintln(cmd.OutOrStdout(), "Username updated")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Username unchanged")
				}
				return nil
			})
		},
	}
}

func printProfile(out io.Writer, p *profiles.Profile, avatarURL string) {
	fmt.Fprintf(out, "Username:             %s\n", p.Username)
	fmt.Fprintf(out, "Points:               %s\n", humanize.Comma(int64(p.PointsOrZero())))
	fmt.Fprintf(out, "Challenges completed: %d\n", p.ChallengesCompletedOrZero())
	fmt.Fprintf(out, "Avatar:               %s\n", avatarURL)
}
