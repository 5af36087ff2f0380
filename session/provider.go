package session

import "context"

// Provider is the identity provider capability set the controller relies on.
type Provider interface {
	// PersistedSession returns the session held in the provider's storage, or nil.
	PersistedSession(ctx context.Context) (*Session, error)

	// SignInWithPassword authenticates with email and password.
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)

	// RefreshSession exchanges the provider's current refresh token for a new session.
	// It returns an error wrapping ErrRefreshTokenInvalid when the refresh token itself
	// is permanently rejected.
	RefreshSession(ctx context.Context) (*Session, error)

	// SignOut revokes the provider's session.
	SignOut(ctx context.Context) error

	// BeginOAuth returns the authorization URL for a social provider.
	BeginOAuth(ctx context.Context, provider, redirectURL string) (string, error)

	// ExchangeCodeForSession completes an authorization-code flow. state identifies the
	// pending flow (PKCE verifier, nonce); it may be empty when the provider tracks a single flow.
	ExchangeCodeForSession(ctx context.Context, code, state string) (*Session, error)

	// AdoptSession builds a session from raw tokens delivered outside a code exchange.
	AdoptSession(ctx context.Context, accessToken, refreshToken string) (*Session, error)

	// Subscribe registers fn on the provider's change-notification stream.
	Subscribe(fn func(Event)) (unsubscribe func())
}

// ResultKind is how a browser-delegated authorization ended.
type ResultKind int

const (
	// ResultSuccess means the browser reached the redirect target; URL holds it.
	ResultSuccess ResultKind = iota
	// ResultCancel means the user explicitly cancelled the flow.
	ResultCancel
	// ResultDismiss means the browser was closed or abandoned without an answer.
	ResultDismiss
	// ResultFailure means the browser session itself failed.
	ResultFailure
)

func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultCancel:
		return "cancel"
	case ResultDismiss:
		return "dismiss"
	default:
		return "failure"
	}
}

// BrowserResult is returned by an AuthSession.
type BrowserResult struct {
	Kind ResultKind
	URL  string
	Err  error
}

// AuthSession opens authURL in an external or embedded browser and waits for the
// browser to land on redirectURL, or for the user to give up.
type AuthSession interface {
	Open(ctx context.Context, authURL, redirectURL string) BrowserResult
}
