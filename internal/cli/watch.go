package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/climate-crusade/deeplink"
	"github.com/jrsteele09/climate-crusade/session"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var launchURL string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session alive and accept deep links on stdin",
		Long: "Runs in the foreground, refreshing the session on schedule. Each line read from stdin " +
			"is handled as an inbound deep link. Stops on interrupt or end of input.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), banner(cfg.GetAppName()))
			return withApp(cmd, func(ctx context.Context, a *App) error {
				return watch(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a, launchURL)
			})
		},
	}
	cmd.Flags().StringVar(&launchURL, "url", "", "Deep link the process was launched with")
	return cmd
}

func watch(ctx context.Context, in io.Reader, out io.Writer, a *App, launchURL string) error {
	var mu sync.Mutex
	show := func(snap session.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "-- session v%d\n", snap.Version)
		printSnapshot(out, snap, time.Now())
	}
	unsubscribe := a.Controller.Subscribe(show)
	defer unsubscribe()
	show(a.Controller.Snapshot())

	source := deeplink.NewChanSource(launchURL, 8)
	go func() {
		defer source.Close()
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := source.Deliver(ctx, line); err != nil {
				return
			}
		}
	}()

	listener := deeplink.NewListener(source, a.Controller.HandleDeepLink, deeplink.WithLogger(logger))
	if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
