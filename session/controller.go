package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Timing holds the refresh and watchdog cadence.
type Timing struct {
	RefreshInterval    time.Duration // Periodic refresh while authenticated
	MinRefreshInterval time.Duration // Refresh requests closer together than this are dropped
	WatchdogInterval   time.Duration // How often the expiry watchdog looks at the session
	ExpiryWindow       time.Duration // Watchdog requests a refresh when expiry is closer than this
}

// DefaultTiming returns the production cadence.
func DefaultTiming() Timing {
	return Timing{
		RefreshInterval:    15 * time.Minute,
		MinRefreshInterval: 60 * time.Second,
		WatchdogInterval:   60 * time.Second,
		ExpiryWindow:       5 * time.Minute,
	}
}

func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.RefreshInterval <= 0 {
		t.RefreshInterval = d.RefreshInterval
	}
	if t.MinRefreshInterval < 0 {
		t.MinRefreshInterval = d.MinRefreshInterval
	}
	if t.WatchdogInterval <= 0 {
		t.WatchdogInterval = d.WatchdogInterval
	}
	if t.ExpiryWindow <= 0 {
		t.ExpiryWindow = d.ExpiryWindow
	}
	return t
}

// refreshState is process-local refresh bookkeeping. At most one refresh is in flight.
type refreshState struct {
	lastRefresh time.Time
	inProgress  bool
}

// Controller owns the authenticated-session lifecycle. It is the single writer of the
// session; views read snapshots and invoke operations.
type Controller struct {
	provider    Provider
	browser     AuthSession
	redirectURL string
	clock       clockwork.Clock
	logger      zerolog.Logger
	timing      Timing

	mu         sync.Mutex
	state      State
	session    *Session
	generation uint64 // Bumped whenever a session starts or ends; stale refresh results are dropped
	version    uint64 // Bumped on every published change
	hydrating  bool
	hydrated   bool
	pending    *Session // Provider event received before hydration finished
	hasPending bool
	refresh    refreshState
	timers     *timers
	social     map[string]bool // Social sign-ins in flight, per provider
	closed     bool

	subMu       sync.Mutex
	subscribers map[string]func(Snapshot)

	unsubscribeProvider func()
	wg                  sync.WaitGroup
}

// Option defines a function type to modify the Controller instance.
type Option func(*Controller)

// WithClock sets the clock used for all time reads and tickers (primarily for testing)
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger.With().Str("component", "session").Logger()
	}
}

func WithTiming(timing Timing) Option {
	return func(c *Controller) {
		c.timing = timing.withDefaults()
	}
}

// WithBrowser sets the browser-delegation primitive used by SignInWithSocial.
func WithBrowser(browser AuthSession) Option {
	return func(c *Controller) {
		c.browser = browser
	}
}

// WithRedirectURL sets the redirect target handed to the provider for social sign-in.
func WithRedirectURL(redirectURL string) Option {
	return func(c *Controller) {
		c.redirectURL = redirectURL
	}
}

// NewController creates a controller in StateUnknown and subscribes it to the provider's
// change stream. Call Hydrate once before any view reads state.
func NewController(provider Provider, options ...Option) (*Controller, error) {
	if provider == nil {
		return nil, errors.New("[NewController] provider is required")
	}

	c := &Controller{
		provider:    provider,
		clock:       clockwork.NewRealClock(),
		logger:      zerolog.Nop(),
		timing:      DefaultTiming(),
		state:       StateUnknown,
		social:      make(map[string]bool),
		subscribers: make(map[string]func(Snapshot)),
	}
	for _, opt := range options {
		opt(c)
	}

	c.unsubscribeProvider = provider.Subscribe(c.onProviderEvent)
	return c, nil
}

// Hydrate reads any persisted session and leaves StateUnknown. It runs once; read
// failures are logged and treated as "no session".
func (c *Controller) Hydrate(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.ErrClosed
	}
	if c.hydrating || c.hydrated {
		c.mu.Unlock()
		return apperrors.ErrAlreadyHydrated
	}
	c.hydrating = true
	c.mu.Unlock()

	persisted, err := c.provider.PersistedSession(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("could not read persisted session, starting signed out")
		persisted = nil
	}
	now := c.clock.Now()
	if persisted != nil && !persisted.Valid(now) {
		c.logger.Info().Msg("persisted session incomplete or expired, starting signed out")
		persisted = nil
	}

	c.mu.Lock()
	c.hydrating = false
	c.hydrated = true
	target := persisted
	switch {
	case c.state != StateUnknown:
		// An explicit sign-in completed while hydrating; it is newer.
		target = c.session
	case c.hasPending:
		target = c.pending
	}
	c.pending, c.hasPending = nil, false
	c.refresh.lastRefresh = now
	snapshot, changed := c.applyLocked(target, true)
	c.mu.Unlock()

	if changed {
		c.publish(snapshot)
	}
	c.logger.Info().Str("state", snapshot.State.String()).Msg("session hydrated")
	return nil
}

// SignIn authenticates with email and password. Malformed input returns a ValidationError
// without contacting the provider.
func (c *Controller) SignIn(ctx context.Context, email, password string) error {
	if err := ValidateCredentials(email, password); err != nil {
		return err
	}
	if c.isClosed() {
		return apperrors.ErrClosed
	}

	sess, err := c.provider.SignInWithPassword(ctx, NormalizeEmail(email), password)
	if err != nil {
		c.logger.Info().Err(err).Msg("password sign in rejected")
		return errors.Wrap(asAuthError(err), "[Controller.SignIn]")
	}
	return c.establish(sess, "password")
}

// SignOut clears the local session whatever the provider answers.
func (c *Controller) SignOut(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.ErrClosed
	}
	snapshot, changed := c.applyLocked(nil, true)
	c.mu.Unlock()

	if changed {
		c.publish(snapshot)
	}

	if err := c.provider.SignOut(ctx); err != nil {
		c.logger.Error().Err(err).Msg("provider sign out failed, local session cleared anyway")
		return nil
	}
	c.logger.Info().Msg("signed out")
	return nil
}

// RefreshSession replaces the session with a fresh one from the provider. The call is a
// no-op while another refresh is in flight, when no session is held, or when the last
// refresh was less than MinRefreshInterval ago.
func (c *Controller) RefreshSession(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.ErrClosed
	}
	if c.refresh.inProgress {
		c.mu.Unlock()
		c.logger.Debug().Msg("refresh already in progress, skipping")
		return nil
	}
	if c.session == nil {
		c.mu.Unlock()
		c.logger.Debug().Msg("no session to refresh")
		return nil
	}
	startedAt := c.clock.Now()
	if since := startedAt.Sub(c.refresh.lastRefresh); since < c.timing.MinRefreshInterval {
		c.mu.Unlock()
		c.logger.Debug().Dur("since_last_refresh", since).Msg("refresh requested too soon, skipping")
		return nil
	}
	c.refresh.inProgress = true
	generation := c.generation
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.refresh.inProgress = false
		c.mu.Unlock()
	}()

	c.logger.Debug().Msg("refreshing session")
	refreshed, err := c.provider.RefreshSession(ctx)
	if err == nil && !refreshed.Complete() {
		err = apperrors.NewAuth("provider returned an incomplete session", nil)
	}
	if err != nil {
		if apperrors.Is(err, apperrors.ErrRefreshTokenInvalid) {
			c.mu.Lock()
			var snapshot Snapshot
			changed := false
			if c.generation == generation {
				snapshot, changed = c.applyLocked(nil, true)
			}
			c.mu.Unlock()
			if changed {
				c.publish(snapshot)
			}
			c.logger.Warn().Err(err).Msg("refresh token rejected, session ended")
			return errors.Wrap(err, "[Controller.RefreshSession]")
		}
		c.logger.Warn().Err(err).Msg("refresh failed, keeping current session")
		return errors.Wrap(err, "[Controller.RefreshSession]")
	}

	c.mu.Lock()
	if c.closed || c.generation != generation {
		c.mu.Unlock()
		c.logger.Info().Msg("discarding refresh result that finished after the session changed")
		return nil
	}
	c.refresh.lastRefresh = startedAt
	snapshot, changed := c.applyLocked(refreshed, false)
	c.mu.Unlock()

	if changed {
		c.publish(snapshot)
	}
	c.logger.Debug().Time("expires_at", refreshed.Expiry()).Msg("session refreshed")
	return nil
}

// Subscribe registers fn to receive every published snapshot. Snapshots are delivered
// outside the controller's lock; use Snapshot.Version to discard out-of-order deliveries.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	id := uuid.NewString()
	c.subMu.Lock()
	c.subscribers[id] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subscribers, id)
		c.subMu.Unlock()
	}
}

// Snapshot returns the current state and session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the current session, or nil.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copySession(c.session)
}

// AccessToken returns the current access token, or "" when signed out.
func (c *Controller) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

// Close cancels the timers and the provider subscription and waits for timer work to
// stop. It must not be called from a subscriber callback.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.disarmLocked()
	unsubscribe := c.unsubscribeProvider
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.wg.Wait()
}

// onProviderEvent treats the provider's change stream as authoritative.
func (c *Controller) onProviderEvent(event Event) {
	sess := event.Session
	if sess != nil && !sess.Complete() {
		c.logger.Warn().Str("event", string(event.Kind)).Msg("provider event carried an incomplete session, treating as signed out")
		sess = nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if !event.Kind.changesIdentity() && !c.rotatesLocked(sess) {
		c.mu.Unlock()
		c.logger.Debug().Str("event", string(event.Kind)).Msg("ignoring token update for a session that is no longer held")
		return
	}
	if !c.hydrated {
		c.pending, c.hasPending = copySession(sess), true
		c.generation++
		c.mu.Unlock()
		return
	}
	c.refresh.lastRefresh = c.clock.Now()
	snapshot, changed := c.applyLocked(sess, event.Kind.changesIdentity())
	c.mu.Unlock()

	if changed {
		c.logger.Debug().Str("event", string(event.Kind)).Str("state", snapshot.State.String()).Msg("provider auth state changed")
		c.publish(snapshot)
	}
}

// rotatesLocked reports whether sess replaces the tokens of the session currently held
// (or pending before hydration) for the same user. The caller holds c.mu.
func (c *Controller) rotatesLocked(sess *Session) bool {
	held := c.session
	if !c.hydrated {
		if !c.hasPending {
			return sess != nil
		}
		held = c.pending
	}
	return sess != nil && held != nil && held.User.ID == sess.User.ID
}

// establish installs a session obtained from an explicit sign-in.
func (c *Controller) establish(sess *Session, source string) error {
	if !sess.Valid(c.clock.Now()) {
		return errors.Wrap(apperrors.NewAuth("provider returned an incomplete or expired session", nil), "[Controller.establish]")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.ErrClosed
	}
	c.refresh.lastRefresh = c.clock.Now()
	snapshot, changed := c.applyLocked(sess, true)
	c.mu.Unlock()

	if changed {
		c.publish(snapshot)
	}
	c.logger.Info().Str("source", source).Str("user_id", sess.User.ID).Msg("signed in")
	return nil
}

// applyLocked replaces the session, derives the state and arms or disarms the timers.
// newSession marks a session start or end, which invalidates in-flight refreshes.
// The caller holds c.mu.
func (c *Controller) applyLocked(sess *Session, newSession bool) (Snapshot, bool) {
	next := StateUnauthenticated
	if sess != nil {
		next = StateAuthenticated
	}
	if newSession {
		c.generation++
	}
	if c.state == next && sameSession(c.session, sess) {
		return c.snapshotLocked(), false
	}

	c.state = next
	c.session = copySession(sess)
	c.version++

	if next == StateAuthenticated {
		c.armLocked()
	} else {
		c.disarmLocked()
	}
	return c.snapshotLocked(), true
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:   c.state,
		Session: copySession(c.session),
		Version: c.version,
	}
}

func (c *Controller) publish(snapshot Snapshot) {
	c.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func asAuthError(err error) error {
	if apperrors.IsAuth(err) || apperrors.IsTransient(err) || apperrors.IsValidation(err) {
		return err
	}
	return apperrors.NewAuth(err.Error(), err)
}

func copySession(s *Session) *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func sameSession(a, b *Session) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.AccessToken == b.AccessToken &&
		a.RefreshToken == b.RefreshToken &&
		a.ExpiresAt == b.ExpiresAt &&
		a.User == b.User
}
