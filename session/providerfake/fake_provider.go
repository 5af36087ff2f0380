package providerfake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/climate-crusade/session"
)

var _ session.Provider = (*FakeProvider)(nil)

// FakeProvider is an in-memory identity provider. Behaviour is scripted through the
// exported function fields; a nil field falls back to a working default.
type FakeProvider struct {
	PersistedFn  func(ctx context.Context) (*session.Session, error)
	SignInFn     func(ctx context.Context, email, password string) (*session.Session, error)
	RefreshFn    func(ctx context.Context) (*session.Session, error)
	SignOutFn    func(ctx context.Context) error
	BeginOAuthFn func(ctx context.Context, provider, redirectURL string) (string, error)
	ExchangeFn   func(ctx context.Context, code, state string) (*session.Session, error)
	AdoptFn      func(ctx context.Context, accessToken, refreshToken string) (*session.Session, error)

	// Now is used to stamp default sessions.
	Now func() time.Time

	lock          sync.Mutex
	calls         map[string]int
	refreshing    int
	maxRefreshing int
	subscribers   map[string]func(session.Event)
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		Now:         time.Now,
		calls:       make(map[string]int),
		subscribers: make(map[string]func(session.Event)),
	}
}

// NewSession builds a complete session for userID expiring at expiresAt.
func NewSession(userID string, expiresAt time.Time) *session.Session {
	return &session.Session{
		AccessToken:  "at-" + uuid.NewString(),
		RefreshToken: "rt-" + uuid.NewString(),
		ExpiresAt:    expiresAt.Unix(),
		User: session.Identity{
			ID:    userID,
			Email: userID + "@example.com",
		},
	}
}

func (p *FakeProvider) PersistedSession(ctx context.Context) (*session.Session, error) {
	p.record("PersistedSession")
	if p.PersistedFn != nil {
		return p.PersistedFn(ctx)
	}
	return nil, nil
}

func (p *FakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	p.record("SignInWithPassword")
	if p.SignInFn != nil {
		return p.SignInFn(ctx, email, password)
	}
	return NewSession("user-1", p.Now().Add(time.Hour)), nil
}

func (p *FakeProvider) RefreshSession(ctx context.Context) (*session.Session, error) {
	p.lock.Lock()
	p.calls["RefreshSession"]++
	p.refreshing++
	if p.refreshing > p.maxRefreshing {
		p.maxRefreshing = p.refreshing
	}
	p.lock.Unlock()

	defer func() {
		p.lock.Lock()
		p.refreshing--
		p.lock.Unlock()
	}()

	if p.RefreshFn != nil {
		return p.RefreshFn(ctx)
	}
	return NewSession("user-1", p.Now().Add(time.Hour)), nil
}

func (p *FakeProvider) SignOut(ctx context.Context) error {
	p.record("SignOut")
	if p.SignOutFn != nil {
		return p.SignOutFn(ctx)
	}
	return nil
}

func (p *FakeProvider) BeginOAuth(ctx context.Context, provider, redirectURL string) (string, error) {
	p.record("BeginOAuth")
	if p.BeginOAuthFn != nil {
		return p.BeginOAuthFn(ctx, provider, redirectURL)
	}
	return "https://idp.example.com/authorize?provider=" + provider + "&redirect_to=" + redirectURL, nil
}

func (p *FakeProvider) ExchangeCodeForSession(ctx context.Context, code, state string) (*session.Session, error) {
	p.record("ExchangeCodeForSession")
	if p.ExchangeFn != nil {
		return p.ExchangeFn(ctx, code, state)
	}
	if code == "" {
		return nil, errors.New("invalid code")
	}
	return NewSession("user-1", p.Now().Add(time.Hour)), nil
}

func (p *FakeProvider) AdoptSession(ctx context.Context, accessToken, refreshToken string) (*session.Session, error) {
	p.record("AdoptSession")
	if p.AdoptFn != nil {
		return p.AdoptFn(ctx, accessToken, refreshToken)
	}
	s := NewSession("user-1", p.Now().Add(time.Hour))
	s.AccessToken = accessToken
	s.RefreshToken = refreshToken
	return s, nil
}

func (p *FakeProvider) Subscribe(fn func(session.Event)) func() {
	id := uuid.NewString()
	p.lock.Lock()
	p.subscribers[id] = fn
	p.lock.Unlock()
	return func() {
		p.lock.Lock()
		delete(p.subscribers, id)
		p.lock.Unlock()
	}
}

// Emit delivers event to every subscriber synchronously.
func (p *FakeProvider) Emit(event session.Event) {
	p.lock.Lock()
	fns := make([]func(session.Event), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		fns = append(fns, fn)
	}
	p.lock.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

// Calls returns how many times the named Provider method was invoked.
func (p *FakeProvider) Calls(method string) int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.calls[method]
}

// MaxConcurrentRefreshes is the highest number of RefreshSession calls observed in flight at once.
func (p *FakeProvider) MaxConcurrentRefreshes() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.maxRefreshing
}

func (p *FakeProvider) Subscribers() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.subscribers)
}

func (p *FakeProvider) record(method string) {
	p.lock.Lock()
	p.calls[method]++
	p.lock.Unlock()
}

// FakeBrowser returns a scripted BrowserResult.
type FakeBrowser struct {
	OpenFn func(ctx context.Context, authURL, redirectURL string) session.BrowserResult

	lock   sync.Mutex
	opened []string
}

var _ session.AuthSession = (*FakeBrowser)(nil)

func (b *FakeBrowser) Open(ctx context.Context, authURL, redirectURL string) session.BrowserResult {
	b.lock.Lock()
	b.opened = append(b.opened, authURL)
	b.lock.Unlock()
	if b.OpenFn != nil {
		return b.OpenFn(ctx, authURL, redirectURL)
	}
	return session.BrowserResult{Kind: session.ResultDismiss}
}

// Opened returns the authorization URLs the browser was asked to open.
func (b *FakeBrowser) Opened() []string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]string(nil), b.opened...)
}
