package browser_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jrsteele09/climate-crusade/browser"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPrintOpener(t *testing.T) {
	const authURL = "https://issuer.example.com/authorize?state=s1"

	t.Run("print only", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, browser.PrintOpener(&out, nil, zerolog.Nop())(authURL))
		require.Contains(t, out.String(), authURL)
	})

	t.Run("launches after printing", func(t *testing.T) {
		var out bytes.Buffer
		var launched string
		launch := func(u string) error {
			require.Contains(t, out.String(), u)
			launched = u
			return nil
		}
		require.NoError(t, browser.PrintOpener(&out, launch, zerolog.Nop())(authURL))
		require.Equal(t, authURL, launched)
	})

	t.Run("launch failure leaves the printed link", func(t *testing.T) {
		var out bytes.Buffer
		launch := func(string) error { return errors.New("no display") }
		require.NoError(t, browser.PrintOpener(&out, launch, zerolog.Nop())(authURL))
		require.Contains(t, out.String(), authURL)
	})
}
