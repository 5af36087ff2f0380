package cli

import (
	"context"
	"io"

	"github.com/jrsteele09/climate-crusade/blobstore"
	"github.com/jrsteele09/climate-crusade/browser"
	"github.com/jrsteele09/climate-crusade/challenges"
	"github.com/jrsteele09/climate-crusade/idp"
	"github.com/jrsteele09/climate-crusade/internal/config"
	"github.com/jrsteele09/climate-crusade/internal/rest"
	"github.com/jrsteele09/climate-crusade/login"
	"github.com/jrsteele09/climate-crusade/profiles"
	"github.com/jrsteele09/climate-crusade/session"
	"github.com/jrsteele09/climate-crusade/sessionstore"
	"github.com/jrsteele09/climate-crusade/weather"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// App is everything a command needs, wired from configuration.
type App struct {
	Controller *session.Controller
	Login      *login.Form
	Profiles   *profiles.Service
	Challenges challenges.Repo
	Weather    *weather.Client
	Avatars    *blobstore.Store

	closers []func()
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// UserID is the signed-in user's id, or "" when signed out.
func (a *App) UserID() string {
	if s := a.Controller.Session(); s != nil {
		return s.User.ID
	}
	return ""
}

// NewApp connects to the issuer, opens the session store and hydrates the controller.
// Authorization URLs are printed to out and, unless printOnly is set, opened in the
// system browser.
func NewApp(ctx context.Context, cfg config.Config, logger zerolog.Logger, out io.Writer, printOnly bool) (*App, error) {
	a := &App{}

	store, err := sessionstore.NewSQLiteStore(ctx, cfg.GetSessionDBPath(), cfg.GetSessionSealKey(), sessionstore.WithLogger(logger))
	if err != nil {
		return nil, errors.Wrap(err, "[NewApp] session store")
	}
	a.closers = append(a.closers, func() { _ = store.Close() })

	provider, err := idp.New(ctx, idp.Config{
		IssuerURL:    cfg.GetIssuerURL(),
		ClientID:     cfg.GetClientID(),
		ClientSecret: cfg.GetClientSecret(),
		Scopes:       cfg.GetScopes(),
	}, store, idp.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "[NewApp] identity provider")
	}

	var launch browser.Opener = browser.SystemOpener
	if printOnly {
		launch = nil
	}
	opener := browser.PrintOpener(out, launch, logger)
	loopback := browser.NewLoopbackSession(opener,
		browser.WithLogger(logger),
		browser.WithListenAddr(cfg.GetCallbackAddr()),
		browser.WithTimeout(cfg.GetAuthFlowTimeout()),
	)

	ctrl, err := session.NewController(provider,
		session.WithLogger(logger),
		session.WithBrowser(loopback),
		session.WithRedirectURL(cfg.GetRedirectURL()),
		session.WithTiming(session.Timing{
			RefreshInterval:    cfg.GetRefreshInterval(),
			MinRefreshInterval: cfg.GetMinRefreshInterval(),
			WatchdogInterval:   cfg.GetWatchdogInterval(),
			ExpiryWindow:       cfg.GetExpiryWindow(),
		}),
	)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "[NewApp] session controller")
	}
	a.closers = append(a.closers, ctrl.Close)
	if err := ctrl.Hydrate(ctx); err != nil {
		a.Close()
		return nil, errors.Wrap(err, "[NewApp]")
	}
	a.Controller = ctrl

	tracker := login.NewAttemptTracker(login.Policy{
		MaxAttempts: cfg.GetMaxLoginAttempts(),
		Lockout:     cfg.GetLockoutDuration(),
	})
	a.Login = login.NewForm(ctrl, tracker, login.WithLogger(logger))

	backend := rest.New(cfg.GetBackendURL(), cfg.GetBackendAnonKey(), ctrl, rest.WithLogger(logger))
	a.Profiles = profiles.NewService(profiles.NewRestRepo(backend), profiles.WithLogger(logger))
	a.Challenges = challenges.NewRestRepo(backend)
	a.Weather = weather.NewClient(backend, weather.WithFunction(cfg.GetWeatherFunction()), weather.WithLogger(logger))

	s3Client, err := blobstore.NewS3Client(ctx, blobstore.ClientConfig{
		Endpoint:        cfg.GetStorageEndpoint(),
		Region:          cfg.GetStorageRegion(),
		AccessKeyID:     cfg.GetStorageAccessKeyID(),
		SecretAccessKey: cfg.GetStorageSecretAccessKey(),
	})
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "[NewApp] storage")
	}
	a.Avatars = blobstore.New(s3Client, cfg.GetAvatarBucket(), cfg.GetBackendURL(), blobstore.WithLogger(logger))

	return a, nil
}
