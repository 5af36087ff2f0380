package browser

import (
	"fmt"
	"io"

	pkgbrowser "github.com/pkg/browser"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func init() {
	// Keep the launcher's output off the terminal.
	pkgbrowser.Stdout = io.Discard
	pkgbrowser.Stderr = io.Discard
}

// SystemOpener launches the platform's default browser.
func SystemOpener(authURL string) error {
	if err := pkgbrowser.OpenURL(authURL); err != nil {
		return errors.Wrap(err, "[SystemOpener]")
	}
	return nil
}

// PrintOpener writes authURL to w so the user can open it by hand, then hands it to
// launch when one is given. A launch failure is logged; the printed link still works.
func PrintOpener(w io.Writer, launch Opener, logger zerolog.Logger) Opener {
	return func(authURL string) error {
		fmt.Fprintf(w, "Continue signing in at:\n  %s\n", authURL)
		if launch == nil {
			return nil
		}
		if err := launch(authURL); err != nil {
			logger.Warn().Err(err).Msg("could not open a browser, use the printed link")
		}
		return nil
	}
}
