package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/climate-crusade/internal/config"
	"github.com/jrsteele09/climate-crusade/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagEnvFile   string
	flagLogLevel  string
	flagLogFormat string
	flagNoBrowser bool

	cfg    config.Config = config.New()
	logger               = zerolog.Nop()

	// appFactory builds the App for a command; tests replace it.
	appFactory = func(cmd *cobra.Command) (*App, error) {
		return NewApp(cmd.Context(), cfg, logger, cmd.OutOrStdout(), flagNoBrowser)
	}
)

// NewRootCmd creates the root cobra command for the crusade CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "crusade",
		Short: "Climate Crusade: weather challenges from the terminal",
		Long:  banner(config.New().GetAppName()) + "\nSign in, check the weather and take on climate challenges.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(flagEnvFile)
			if err != nil {
				return err
			}
			cfg = loaded
			level, format := cfg.GetLogLevel(), cfg.GetLogFormat()
			if cmd.Flags().Changed("log-level") {
				level = flagLogLevel
			}
			if cmd.Flags().Changed("log-format") {
				format = flagLogFormat
			}
			logger = logging.New(level, format, cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "dotenv file to load (default .env when present)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "console", "Log format (console, json)")
	root.PersistentFlags().BoolVar(&flagNoBrowser, "no-browser", false, "Print sign-in links instead of opening a browser")

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newWeatherCmd(),
		newChallengesCmd(),
		newProfileCmd(),
		newAvatarCmd(),
	)

	return root
}

// withApp runs fn with a freshly wired App that is closed afterwards. The context is
// cancelled on interrupt.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *App) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	a, err := appFactory(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func requireUser(a *App) (string, error) {
	id := a.UserID()
	if id == "" {
		return "", fmt.Errorf("not signed in, run `crusade login` first")
	}
	return id, nil
}

func banner(appName string) string {
	return figure.NewFigure(appName, "cybermedium", true).String()
}
