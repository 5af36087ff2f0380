package deeplink

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// ErrAlreadyRunning is returned when Run is called on a listener that is already installed.
var ErrAlreadyRunning = errors.New("deep link listener already running")

// Source is the host environment's URL-dispatch mechanism.
type Source interface {
	// InitialURL returns the URL the process was launched with, or "" for a normal launch.
	InitialURL(ctx context.Context) (string, error)
	// URLs delivers URLs received while the process is running. It is closed when the host stops dispatching.
	URLs() <-chan string
}

// Handler consumes one inbound URL.
type Handler func(ctx context.Context, rawURL string) error

// Listener routes the cold-start URL and every running URL through one handler. Handler
// errors and panics are logged, never returned.
type Listener struct {
	source  Source
	handler Handler
	logger  zerolog.Logger

	mu      sync.Mutex
	running bool
}

type ListenerOption func(*Listener)

func WithLogger(logger zerolog.Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger.With().Str("component", "deeplink").Logger()
	}
}

func NewListener(source Source, handler Handler, options ...ListenerOption) *Listener {
	l := &Listener{
		source:  source,
		handler: handler,
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Run blocks until ctx is done or the source closes its URL stream.
func (l *Listener) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	initial, err := l.source.InitialURL(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("could not read launch url")
	} else if initial != "" {
		l.dispatch(ctx, initial)
	}

	urls := l.source.URLs()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rawURL, ok := <-urls:
			if !ok {
				return nil
			}
			l.dispatch(ctx, rawURL)
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, rawURL string) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("deep link handler panicked")
		}
	}()
	if err := l.handler(ctx, rawURL); err != nil {
		l.logger.Warn().Err(err).Msg("ignoring deep link")
	}
}

// ChanSource is a Source fed programmatically (tests, CLI hosts).
type ChanSource struct {
	initial string
	urls    chan string
	once    sync.Once
}

func NewChanSource(initialURL string, buffer int) *ChanSource {
	return &ChanSource{
		initial: initialURL,
		urls:    make(chan string, buffer),
	}
}

func (s *ChanSource) InitialURL(context.Context) (string, error) {
	return s.initial, nil
}

func (s *ChanSource) URLs() <-chan string {
	return s.urls
}

// Deliver queues a URL as if the host had dispatched it. It blocks while the buffer is
// full and gives up when ctx is done.
func (s *ChanSource) Deliver(ctx context.Context, rawURL string) error {
	select {
	case s.urls <- rawURL:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the URL stream.
func (s *ChanSource) Close() {
	s.once.Do(func() { close(s.urls) })
}
