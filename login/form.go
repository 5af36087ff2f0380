package login

import (
	"context"

	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/jrsteele09/climate-crusade/session"
	"github.com/rs/zerolog"
)

// Authenticator is the part of the session controller the login form drives.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) error
	SignInWithSocial(ctx context.Context, provider string) (session.SocialOutcome, error)
}

// Form is the login screen's logic: password sign-in behind the attempt tracker, and
// social sign-in, which is never locked out.
type Form struct {
	auth    Authenticator
	tracker *AttemptTracker
	logger  zerolog.Logger
}

type FormOption func(*Form)

func WithLogger(logger zerolog.Logger) FormOption {
	return func(f *Form) {
		f.logger = logger.With().Str("component", "login").Logger()
	}
}

func NewForm(auth Authenticator, tracker *AttemptTracker, options ...FormOption) *Form {
	f := &Form{
		auth:    auth,
		tracker: tracker,
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(f)
	}
	return f
}

// Submit signs in with email and password. While locked out the controller is not
// contacted. Only provider rejections count towards the lockout.
func (f *Form) Submit(ctx context.Context, email, password string) error {
	if err := f.tracker.Check(); err != nil {
		return err
	}

	err := f.auth.SignIn(ctx, email, password)
	switch {
	case err == nil:
		f.tracker.RecordSuccess()
		return nil
	case apperrors.IsAuth(err):
		if lockErr := f.tracker.RecordFailure(); lockErr != nil {
			f.logger.Warn().Msg("login locked after repeated failures")
			return lockErr
		}
		f.logger.Info().Int("attempts_left", f.tracker.Remaining()).Msg("login failed")
		return err
	default:
		return err
	}
}

// Social runs a social sign-in. Cancel and dismiss come back as outcomes with a nil error.
func (f *Form) Social(ctx context.Context, provider string) (session.SocialOutcome, error) {
	outcome, err := f.auth.SignInWithSocial(ctx, provider)
	if err == nil && outcome == session.SocialSignedIn {
		f.tracker.RecordSuccess()
	}
	return outcome, err
}

// Tracker exposes the attempt tracker so views can render the remaining attempts.
func (f *Form) Tracker() *AttemptTracker {
	return f.tracker
}
