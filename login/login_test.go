package login_test

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/jrsteele09/climate-crusade/login"
	"github.com/jrsteele09/climate-crusade/session"
	"github.com/jrsteele09/climate-crusade/session/providerfake"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const (
	testEmail     = "user@example.com"
	goodPassword  = "validpw"
	wrongPassword = "abc123"
)

type testFixture struct {
	clock    *clockwork.FakeClock
	provider *providerfake.FakeProvider
	browser  *providerfake.FakeBrowser
	form     *login.Form
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	clock := clockwork.NewFakeClock()
	provider := providerfake.NewFakeProvider()
	provider.Now = clock.Now
	provider.SignInFn = func(_ context.Context, _, password string) (*session.Session, error) {
		if password != goodPassword {
			return nil, errors.New("Invalid login credentials")
		}
		return providerfake.NewSession("user-1", clock.Now().Add(time.Hour)), nil
	}
	browser := &providerfake.FakeBrowser{}

	ctrl, err := session.NewController(provider,
		session.WithClock(clock),
		session.WithBrowser(browser),
		session.WithTiming(session.Timing{RefreshInterval: 24 * time.Hour, WatchdogInterval: 24 * time.Hour}),
	)
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	require.NoError(t, ctrl.Hydrate(context.Background()))

	tracker := login.NewAttemptTracker(login.DefaultPolicy(), login.WithClock(clock))
	return &testFixture{
		clock:    clock,
		provider: provider,
		browser:  browser,
		form:     login.NewForm(ctrl, tracker),
	}
}

func (f *testFixture) failTimes(t *testing.T, n int) error {
	t.Helper()
	var err error
	for i := 0; i < n; i++ {
		err = f.form.Submit(context.Background(), testEmail, wrongPassword)
		require.Error(t, err)
	}
	return err
}

func TestSubmit_LocksAfterFiveFailures(t *testing.T) {
	f := setupTestFixture(t)

	err := f.failTimes(t, 4)
	require.True(t, apperrors.IsAuth(err))
	require.Equal(t, 1, f.form.Tracker().Remaining())

	err = f.form.Submit(context.Background(), testEmail, wrongPassword)
	require.ErrorIs(t, err, apperrors.ErrLockedOut)
	require.Equal(t, 5, f.provider.Calls("SignInWithPassword"))

	// Sixth attempt, even with the right password, never reaches the provider.
	err = f.form.Submit(context.Background(), testEmail, goodPassword)
	var locked *login.LockedOutError
	require.ErrorAs(t, err, &locked)
	require.Equal(t, 15, locked.MinutesRemaining())
	require.Equal(t, 5, f.provider.Calls("SignInWithPassword"))
}

func TestSubmit_LockoutElapses(t *testing.T) {
	f := setupTestFixture(t)
	f.failTimes(t, 5)

	f.clock.Advance(14*time.Minute + 30*time.Second)
	var locked *login.LockedOutError
	require.ErrorAs(t, f.form.Submit(context.Background(), testEmail, goodPassword), &locked)
	require.Equal(t, 1, locked.MinutesRemaining())

	f.clock.Advance(30 * time.Second)
	require.Equal(t, 0, f.form.Tracker().Failures())
	require.NoError(t, f.form.Submit(context.Background(), testEmail, goodPassword))
}

func TestSubmit_SuccessResetsCounter(t *testing.T) {
	f := setupTestFixture(t)
	f.failTimes(t, 3)
	require.Equal(t, 3, f.form.Tracker().Failures())

	require.NoError(t, f.form.Submit(context.Background(), testEmail, goodPassword))
	require.Equal(t, 0, f.form.Tracker().Failures())
}

func TestSubmit_ValidationDoesNotCount(t *testing.T) {
	f := setupTestFixture(t)
	for i := 0; i < 10; i++ {
		err := f.form.Submit(context.Background(), "not-an-email", goodPassword)
		require.True(t, apperrors.IsValidation(err))
	}
	err := f.form.Submit(context.Background(), testEmail, "abc12")
	require.True(t, apperrors.IsValidation(err))

	require.Equal(t, 0, f.form.Tracker().Failures())
	require.Equal(t, 0, f.provider.Calls("SignInWithPassword"))
}

func TestSocial_IgnoresLockout(t *testing.T) {
	f := setupTestFixture(t)
	f.failTimes(t, 5)
	f.browser.OpenFn = func(_ context.Context, _, redirectURL string) session.BrowserResult {
		return session.BrowserResult{Kind: session.ResultSuccess, URL: redirectURL + "?code=c1&state=s1"}
	}

	outcome, err := f.form.Social(context.Background(), "google")
	require.NoError(t, err)
	require.Equal(t, session.SocialSignedIn, outcome)
	require.NoError(t, f.form.Tracker().Check())
}

func TestAttemptTracker_CustomPolicy(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tracker := login.NewAttemptTracker(login.Policy{MaxAttempts: 2, Lockout: time.Minute}, login.WithClock(clock))

	require.NoError(t, tracker.RecordFailure())
	require.ErrorIs(t, tracker.RecordFailure(), apperrors.ErrLockedOut)
	require.ErrorIs(t, tracker.Check(), apperrors.ErrLockedOut)
	require.Equal(t, 0, tracker.Remaining())

	clock.Advance(time.Minute)
	require.NoError(t, tracker.Check())
	require.Equal(t, 2, tracker.Remaining())
}
