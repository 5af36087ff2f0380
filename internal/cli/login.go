package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"

	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/jrsteele09/climate-crusade/login"
	"github.com/jrsteele09/climate-crusade/session"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var (
		email    string
		provider string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password, or with a social provider",
		Long: "Sign in with --email (the password is read from stdin, one attempt per line) " +
			"or with --provider to sign in through the provider's page in a browser.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" && email == "" {
				return errors.New("one of --email or --provider is required")
			}
			return withApp(cmd, func(ctx context.Context, a *App) error {
				if provider != "" {
					return socialLogin(ctx, cmd.OutOrStdout(), a, provider)
				}
				return passwordLogin(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a, email)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&provider, "provider", "", "Social provider, e.g. google or github")
	cmd.MarkFlagsMutuallyExclusive("email", "provider")
	return cmd
}

func passwordLogin(ctx context.Context, in io.Reader, out io.Writer, a *App, email string) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "Password: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return errors.New("no password entered")
		}

		err := a.Login.Submit(ctx, email, scanner.Text())
		var locked *login.LockedOutError
		switch {
		case err == nil:
			fmt.Fprintf(out, "Signed in as %s\n", signedInAs(a))
			return nil
		case errors.As(err, &locked):
			return fmt.Errorf("too many failed login attempts, try again in %d minute(s)", locked.MinutesRemaining())
		case apperrors.IsAuth(err):
			fmt.Fprintf(out, "Login failed: %s (%d attempt(s) left)\n", authMessage(err), a.Login.Tracker().Remaining())
		default:
			return err
		}
	}
}

func socialLogin(ctx context.Context, out io.Writer, a *App, provider string) error {
	outcome, err := a.Login.Social(ctx, provider)
	if err != nil {
		return err
	}
	switch outcome {
	case session.SocialSignedIn:
		fmt.Fprintf(out, "Signed in as %s\n", signedInAs(a))
	default:
		fmt.Fprintf(out, "Sign-in with %s %s\n", provider, outcome)
	}
	return nil
}

func signedInAs(a *App) string {
	s := a.Controller.Session()
	if s == nil {
		return "(unknown)"
	}
	if s.User.Email != "" {
		return s.User.Email
	}
	return s.User.ID
}

func authMessage(err error) string {
	var authErr *apperrors.AuthError
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	return err.Error()
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *App) error {
				if err := a.Controller.SignOut(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}
