package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jrsteele09/climate-crusade/blobstore"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newAvatarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "avatar",
		Short: "Manage your avatar",
	}

	var keepExisting bool
	upload := &cobra.Command{
		Use:   "upload <file.jpg>",
		Short: "Upload a JPEG as your avatar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "read avatar")
			}
			return withApp(cmd, func(ctx context.Context, a *App) error {
				userID, err := requireUser(a)
				if err != nil {
					return err
				}
				url, err := a.Avatars.Upload(ctx, blobstore.AvatarKey(userID), data, blobstore.AvatarContentType, !keepExisting)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s\n%s\n", humanize.Bytes(uint64(len(data))), blobstore.CacheBusted(url, time.Now()))
				return nil
			})
		},
	}
	upload.Flags().BoolVar(&keepExisting, "no-overwrite", false, "Fail instead of replacing an existing avatar")

	cmd.AddCommand(upload)
	return cmd
}
