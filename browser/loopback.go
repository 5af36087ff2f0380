package browser

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/climate-crusade/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var _ session.AuthSession = (*LoopbackSession)(nil)

// Opener shows authURL to the user, usually by launching the system browser.
type Opener func(authURL string) error

// LoopbackSession completes browser-delegated sign-in by listening on the loopback
// address named in the redirect URL.
type LoopbackSession struct {
	opener     Opener
	listenAddr string
	timeout    time.Duration
	logger     zerolog.Logger
}

type Option func(*LoopbackSession)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *LoopbackSession) {
		s.logger = logger.With().Str("component", "browser").Logger()
	}
}

// WithListenAddr overrides the listen address derived from the redirect URL.
func WithListenAddr(addr string) Option {
	return func(s *LoopbackSession) {
		s.listenAddr = addr
	}
}

// WithTimeout bounds how long Open waits for the browser before reporting a dismissal.
func WithTimeout(timeout time.Duration) Option {
	return func(s *LoopbackSession) {
		s.timeout = timeout
	}
}

func NewLoopbackSession(opener Opener, options ...Option) *LoopbackSession {
	s := &LoopbackSession{
		opener:  opener,
		timeout: 5 * time.Minute,
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Open serves the redirect target, shows authURL and waits. Cancelling ctx reports
// ResultCancel; running out of time reports ResultDismiss.
func (s *LoopbackSession) Open(ctx context.Context, authURL, redirectURL string) session.BrowserResult {
	redirect, err := url.Parse(redirectURL)
	if err != nil || redirect.Host == "" {
		return failure(errors.Errorf("[LoopbackSession.Open] redirect url %q is not a loopback url", redirectURL))
	}
	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}
	addr := s.listenAddr
	if addr == "" {
		addr = redirect.Host
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return failure(errors.Wrapf(err, "[LoopbackSession.Open] listen on %s", addr))
	}

	rc := newReceiver(redirectURL, s.logger)
	server := &http.Server{
		Handler:           rc.routes(callbackPath),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Warn().Err(err).Msg("loopback server stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := s.opener(authURL); err != nil {
		return failure(errors.Wrap(err, "[LoopbackSession.Open] open browser"))
	}
	s.logger.Debug().Str("addr", listener.Addr().String()).Msg("waiting for browser redirect")

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case result := <-rc.results:
		return result
	case <-ctx.Done():
		return session.BrowserResult{Kind: session.ResultCancel, Err: ctx.Err()}
	case <-timer.C:
		return session.BrowserResult{Kind: session.ResultDismiss}
	}
}

func failure(err error) session.BrowserResult {
	return session.BrowserResult{Kind: session.ResultFailure, Err: err}
}
