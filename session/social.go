package session

import (
	"context"
	"fmt"

	"github.com/jrsteele09/climate-crusade/deeplink"
	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/pkg/errors"
)

// SocialOutcome is how a social sign-in ended without an error.
type SocialOutcome int

const (
	SocialSignedIn SocialOutcome = iota
	// SocialCancelled means the user backed out of the provider's page.
	SocialCancelled
	// SocialDismissed means the browser was closed before the provider answered.
	SocialDismissed
)

func (o SocialOutcome) String() string {
	switch o {
	case SocialSignedIn:
		return "signed_in"
	case SocialCancelled:
		return "cancelled"
	default:
		return "dismissed"
	}
}

// SignInWithSocial runs a browser-delegated OAuth flow for provider. Cancellation and
// dismissal are outcomes, not errors. Only one flow per provider may be in flight.
func (c *Controller) SignInWithSocial(ctx context.Context, provider string) (SocialOutcome, error) {
	if c.browser == nil {
		return SocialDismissed, errors.New("[Controller.SignInWithSocial] no browser configured")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return SocialDismissed, apperrors.ErrClosed
	}
	if c.social[provider] {
		c.mu.Unlock()
		return SocialDismissed, apperrors.ErrSocialSignInInFlight
	}
	c.social[provider] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.social, provider)
		c.mu.Unlock()
	}()

	logger := c.logger.With().Str("provider", provider).Logger()

	authURL, err := c.provider.BeginOAuth(ctx, provider, c.redirectURL)
	if err != nil {
		logger.Warn().Err(err).Msg("could not start social sign in")
		return SocialDismissed, errors.Wrap(asAuthError(err), "[Controller.SignInWithSocial]")
	}
	if authURL == "" {
		return SocialDismissed, apperrors.NewAuth(fmt.Sprintf("no authorization URL returned for %s", provider), nil)
	}

	result := c.browser.Open(ctx, authURL, c.redirectURL)
	logger.Debug().Str("result", result.Kind.String()).Msg("browser flow finished")

	switch result.Kind {
	case ResultCancel:
		return SocialCancelled, nil
	case ResultDismiss:
		return SocialDismissed, nil
	case ResultFailure:
		return SocialDismissed, apperrors.NewAuth(fmt.Sprintf("the %s sign-in process was not completed", provider), result.Err)
	}

	cb, err := deeplink.Parse(result.URL)
	if err != nil {
		return SocialDismissed, apperrors.NewAuth(fmt.Sprintf("no authentication result returned from %s", provider), err)
	}
	if err := c.complete(ctx, cb); err != nil {
		return SocialDismissed, err
	}
	return SocialSignedIn, nil
}

// HandleDeepLink consumes an application-launch URL. URLs that carry no authorization
// result are ignored; a provider error becomes an AuthError.
func (c *Controller) HandleDeepLink(ctx context.Context, rawURL string) error {
	cb, err := deeplink.Parse(rawURL)
	if errors.Is(err, deeplink.ErrNotCallback) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[Controller.HandleDeepLink]")
	}
	return c.complete(ctx, cb)
}

// complete finishes a flow from a parsed callback: provider errors are surfaced, a code
// is exchanged, raw tokens are adopted.
func (c *Controller) complete(ctx context.Context, cb *deeplink.Callback) error {
	switch {
	case cb.HasError():
		return &apperrors.AuthError{Message: cb.ErrorMessage(), Code: cb.Error}

	case cb.HasTokens():
		c.mu.Lock()
		duplicate := c.session != nil && c.session.RefreshToken == cb.RefreshToken
		c.mu.Unlock()
		if duplicate {
			c.logger.Debug().Msg("deep link carries the current session, ignoring")
			return nil
		}
		sess, err := c.provider.AdoptSession(ctx, cb.AccessToken, cb.RefreshToken)
		if err != nil {
			return errors.Wrap(asAuthError(err), "[Controller.complete] adopt session")
		}
		return c.establish(sess, "deep_link")

	case cb.HasCode():
		sess, err := c.provider.ExchangeCodeForSession(ctx, cb.Code, cb.State)
		if err != nil {
			return errors.Wrap(asAuthError(err), "[Controller.complete] exchange code")
		}
		return c.establish(sess, "oauth_code")
	}
	return nil
}
