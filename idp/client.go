package idp

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/jrsteele09/climate-crusade/idp/flowrepo"
	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/jrsteele09/climate-crusade/session"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

var _ session.Provider = (*Client)(nil)

// ErrSessionChanged is returned by RefreshSession when the session was replaced or
// cleared while the refresh grant was in flight.
var ErrSessionChanged = errors.New("session changed during refresh")

// Store persists the provider's session between runs.
type Store interface {
	Load(ctx context.Context) (*session.Session, error)
	Save(ctx context.Context, s *session.Session) error
	Clear(ctx context.Context) error
}

// Config identifies the OpenID Connect issuer and this client.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string // Empty for public clients
	Scopes       []string
}

// Client is an identity provider backed by an OpenID Connect issuer. It owns the
// provider-side session: the copy in Store, and the change-notification stream.
type Client struct {
	oauth         oauth2.Config
	provider      *oidc.Provider
	verifier      *oidc.IDTokenVerifier
	revocationURL string
	httpClient    *http.Client
	store         Store
	flows         flowrepo.Repo
	clock         clockwork.Clock
	logger        zerolog.Logger

	// saveMu orders store writes and their events; it is taken before mu. Event
	// subscribers must not call back into the client synchronously.
	saveMu sync.Mutex

	mu          sync.Mutex
	current     *session.Session
	generation  uint64
	subscribers map[string]func(session.Event)
}

type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "idp").Logger()
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithFlowRepo replaces the in-memory pending-flow repository.
func WithFlowRepo(flows flowrepo.Repo) Option {
	return func(c *Client) {
		c.flows = flows
	}
}

// New discovers the issuer's endpoints and returns a ready client.
func New(ctx context.Context, cfg Config, store Store, options ...Option) (*Client, error) {
	if store == nil {
		return nil, errors.New("[idp.New] store is required")
	}

	c := &Client{
		httpClient:  http.DefaultClient,
		store:       store,
		clock:       clockwork.NewRealClock(),
		logger:      zerolog.Nop(),
		subscribers: make(map[string]func(session.Event)),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.flows == nil {
		c.flows = flowrepo.NewInMemoryRepo(10*time.Minute, flowrepo.WithClock(c.clock))
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, c.httpClient), cfg.IssuerURL)
	if err != nil {
		return nil, errors.Wrap(apperrors.NewTransient("discovery", err), "[idp.New]")
	}

	var extra struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, errors.Wrap(err, "[idp.New] discovery document")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile", oidc.ScopeOfflineAccess}
	}

	c.provider = provider
	c.revocationURL = extra.RevocationEndpoint
	c.oauth = oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}
	c.verifier = provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
		Now:      c.clock.Now,
	})
	return c, nil
}

// PersistedSession loads the stored session. An expired one is refreshed once; a
// rejected refresh token clears the store.
func (c *Client) PersistedSession(ctx context.Context) (*session.Session, error) {
	stored, err := c.store.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.PersistedSession] load")
	}
	if stored == nil {
		return nil, nil
	}
	if !stored.Complete() {
		c.logger.Warn().Msg("stored session incomplete, discarding")
		return nil, c.store.Clear(ctx)
	}

	if stored.Valid(c.clock.Now()) {
		c.mu.Lock()
		c.current = stored
		c.mu.Unlock()
		return stored, nil
	}

	c.logger.Debug().Msg("stored session expired, refreshing")
	tok, err := c.refreshGrant(ctx, stored.RefreshToken)
	if err != nil {
		if errors.Is(err, apperrors.ErrRefreshTokenInvalid) {
			c.logger.Info().Msg("stored refresh token rejected, discarding session")
			return nil, c.store.Clear(ctx)
		}
		return nil, err
	}
	refreshed, err := c.sessionFromToken(ctx, tok, "", stored)
	if err != nil {
		return nil, err
	}

	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	c.mu.Lock()
	c.current = refreshed
	c.mu.Unlock()
	c.save(ctx, refreshed)
	return refreshed, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	tok, err := c.oauth.PasswordCredentialsToken(c.httpContext(ctx), email, password)
	if err != nil {
		return nil, classify(opPassword, err)
	}
	s, err := c.sessionFromToken(ctx, tok, "", nil)
	if err != nil {
		return nil, err
	}
	c.establish(ctx, s)
	return s, nil
}

func (c *Client) RefreshSession(ctx context.Context) (*session.Session, error) {
	c.mu.Lock()
	current := c.current
	generation := c.generation
	c.mu.Unlock()

	if current == nil {
		return nil, apperrors.ErrNoSession
	}

	tok, err := c.refreshGrant(ctx, current.RefreshToken)
	if err != nil {
		return nil, err
	}
	refreshed, err := c.sessionFromToken(ctx, tok, "", current)
	if err != nil {
		return nil, err
	}

	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		return nil, ErrSessionChanged
	}
	c.current = refreshed
	c.mu.Unlock()

	c.save(ctx, refreshed)
	c.emit(session.Event{Kind: session.EventTokenRefreshed, Session: refreshed})
	return refreshed, nil
}

// SignOut forgets the session locally, then revokes its refresh token at the issuer.
func (c *Client) SignOut(ctx context.Context) error {
	c.saveMu.Lock()
	c.mu.Lock()
	current := c.current
	c.current = nil
	c.generation++
	c.mu.Unlock()

	var result error
	if err := c.store.Clear(ctx); err != nil {
		result = errors.Wrap(err, "[Client.SignOut] clear store")
	}
	if current != nil {
		c.emit(session.Event{Kind: session.EventSignedOut})
	}
	c.saveMu.Unlock()

	if current == nil {
		return result
	}
	if err := c.revoke(ctx, current.RefreshToken); err != nil {
		return err
	}
	return result
}

// BeginOAuth records a pending PKCE flow and returns the authorization URL. The social
// provider is passed to the issuer as the "provider" parameter.
func (c *Client) BeginOAuth(_ context.Context, provider, redirectURL string) (string, error) {
	if provider == "" {
		return "", apperrors.NewValidation("provider", "provider is required")
	}

	state := uuid.NewString()
	nonce := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	err := c.flows.Upsert(state, &flowrepo.Flow{
		Provider:     provider,
		CodeVerifier: verifier,
		Nonce:        nonce,
		RedirectURL:  redirectURL,
	})
	if err != nil {
		return "", errors.Wrap(err, "[Client.BeginOAuth]")
	}

	cfg := c.oauth
	cfg.RedirectURL = redirectURL
	return cfg.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("provider", provider),
	), nil
}

// ExchangeCodeForSession completes the pending flow identified by state. An empty state
// selects the only pending flow.
func (c *Client) ExchangeCodeForSession(ctx context.Context, code, state string) (*session.Session, error) {
	var (
		flow *flowrepo.Flow
		err  error
	)
	if state == "" {
		state, flow, err = c.flows.Only()
	} else {
		flow, err = c.flows.Get(state)
	}
	if err != nil {
		return nil, &apperrors.AuthError{Message: "unknown or expired sign-in attempt", Err: apperrors.ErrInvalidState}
	}
	if err := c.flows.Delete(state); err != nil {
		return nil, errors.Wrap(err, "[Client.ExchangeCodeForSession]")
	}

	cfg := c.oauth
	cfg.RedirectURL = flow.RedirectURL
	tok, err := cfg.Exchange(c.httpContext(ctx), code, oauth2.VerifierOption(flow.CodeVerifier))
	if err != nil {
		return nil, classify(opExchange, err)
	}
	s, err := c.sessionFromToken(ctx, tok, flow.Nonce, nil)
	if err != nil {
		return nil, err
	}
	c.establish(ctx, s)
	c.logger.Info().Str("provider", flow.Provider).Msg("social sign in completed")
	return s, nil
}

// AdoptSession builds a session from tokens delivered in a redirect fragment. The access
// token is confirmed against the userinfo endpoint when the issuer has one.
func (c *Client) AdoptSession(ctx context.Context, accessToken, refreshToken string) (*session.Session, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, apperrors.NewAuth("access and refresh tokens are both required", nil)
	}

	claims, err := parseAccessToken(accessToken)
	if err != nil {
		return nil, apperrors.NewAuth("access token is not a valid JWT", err)
	}
	if claims.ExpiresAt == nil {
		return nil, apperrors.NewAuth("access token carries no expiry", nil)
	}

	s := &session.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    claims.ExpiresAt.Unix(),
		User:         session.Identity{ID: claims.Subject, Email: claims.Email},
	}

	if c.provider.UserInfoEndpoint() != "" {
		info, err := c.provider.UserInfo(c.httpContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: accessToken,
			TokenType:   "Bearer",
		}))
		if err != nil {
			return nil, apperrors.NewAuth("access token rejected by the identity provider", err)
		}
		if info.Subject != claims.Subject {
			return nil, apperrors.NewAuth("access token subject does not match the user", nil)
		}
		if info.Email != "" {
			s.User.Email = info.Email
		}
		s.User.CreatedAt = createdAt(info)
	}

	if !s.Valid(c.clock.Now()) {
		return nil, apperrors.NewAuth("adopted session is incomplete or expired", nil)
	}
	c.establish(ctx, s)
	return s, nil
}

func (c *Client) Subscribe(fn func(session.Event)) func() {
	id := uuid.NewString()
	c.mu.Lock()
	c.subscribers[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *Client) establish(ctx context.Context, s *session.Session) {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	c.current = s
	c.generation++
	c.mu.Unlock()

	c.save(ctx, s)
	c.emit(session.Event{Kind: session.EventSignedIn, Session: s})
}

func (c *Client) save(ctx context.Context, s *session.Session) {
	if err := c.store.Save(ctx, s); err != nil {
		c.logger.Warn().Err(err).Msg("could not persist session")
	}
}

func (c *Client) emit(event session.Event) {
	c.mu.Lock()
	fns := make([]func(session.Event), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

func (c *Client) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}
