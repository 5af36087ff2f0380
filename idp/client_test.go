package idp_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/climate-crusade/idp"
	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/jrsteele09/climate-crusade/session"
	"github.com/jrsteele09/climate-crusade/sessionstore/repofake"
	"github.com/stretchr/testify/require"
)

const (
	testClientID    = "climate-crusade"
	testKeyID       = "test-key"
	testUserID      = "user-1"
	testUserEmail   = "user@example.com"
	testPassword    = "validpw"
	testRedirectURL = "http://127.0.0.1:8765/auth/callback"
	flakyRefresh    = "rt-flaky"
)

type pendingCode struct {
	challenge string
	nonce     string
}

// fakeIssuer is a minimal OpenID Connect issuer.
type fakeIssuer struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey

	mu            sync.Mutex
	refreshTokens map[string]string // refresh token -> subject
	codes         map[string]pendingCode
	revoked       []string
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIssuer{
		t:             t,
		key:           key,
		refreshTokens: make(map[string]string),
		codes:         make(map[string]pendingCode),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("/jwks", f.jwks)
	mux.HandleFunc("/token", f.token)
	mux.HandleFunc("/userinfo", f.userinfo)
	mux.HandleFunc("/revoke", f.revoke)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIssuer) url() string {
	return f.server.URL
}

func (f *fakeIssuer) discovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                f.url(),
		"authorization_endpoint":                f.url() + "/authorize",
		"token_endpoint":                        f.url() + "/token",
		"jwks_uri":                              f.url() + "/jwks",
		"userinfo_endpoint":                     f.url() + "/userinfo",
		"revocation_endpoint":                   f.url() + "/revoke",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (f *fakeIssuer) jwks(w http.ResponseWriter, _ *http.Request) {
	pub := f.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": testKeyID,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (f *fakeIssuer) token(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())

	switch r.PostForm.Get("grant_type") {
	case "password":
		if r.PostForm.Get("username") != testUserEmail || r.PostForm.Get("password") != testPassword {
			oauthError(w, http.StatusBadRequest, "invalid_grant", "Invalid login credentials")
			return
		}
		f.issue(w, testUserID, "")

	case "refresh_token":
		rt := r.PostForm.Get("refresh_token")
		if rt == flakyRefresh {
			oauthError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "")
			return
		}
		f.mu.Lock()
		subject, ok := f.refreshTokens[rt]
		delete(f.refreshTokens, rt)
		f.mu.Unlock()
		if !ok {
			oauthError(w, http.StatusBadRequest, "invalid_grant", "Invalid Refresh Token: Refresh Token Not Found")
			return
		}
		f.issue(w, subject, "")

	case "authorization_code":
		f.mu.Lock()
		pending, ok := f.codes[r.PostForm.Get("code")]
		delete(f.codes, r.PostForm.Get("code"))
		f.mu.Unlock()
		if !ok {
			oauthError(w, http.StatusBadRequest, "invalid_grant", "unknown code")
			return
		}
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != pending.challenge {
			oauthError(w, http.StatusBadRequest, "invalid_grant", "code verifier mismatch")
			return
		}
		f.issue(w, testUserID, pending.nonce)

	default:
		oauthError(w, http.StatusBadRequest, "unsupported_grant_type", "")
	}
}

func (f *fakeIssuer) issue(w http.ResponseWriter, subject, nonce string) {
	refresh := f.registerRefresh(subject)
	idClaims := jwtlib.MapClaims{
		"iss":   f.url(),
		"sub":   subject,
		"aud":   testClientID,
		"email": testUserEmail,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	if nonce != "" {
		idClaims["nonce"] = nonce
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  f.accessToken(subject, time.Now().Add(time.Hour)),
		"token_type":    "bearer",
		"expires_in":    3600,
		"refresh_token": refresh,
		"id_token":      f.sign(idClaims),
	})
}

func (f *fakeIssuer) userinfo(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	token, err := jwtlib.Parse(raw, func(*jwtlib.Token) (any, error) { return &f.key.PublicKey, nil })
	if err != nil || !token.Valid {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	sub, _ := token.Claims.GetSubject()
	writeJSON(w, http.StatusOK, map[string]any{
		"sub":        sub,
		"email":      testUserEmail,
		"created_at": "2024-05-01T12:00:00Z",
	})
}

func (f *fakeIssuer) revoke(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())
	f.mu.Lock()
	f.revoked = append(f.revoked, r.PostForm.Get("token"))
	delete(f.refreshTokens, r.PostForm.Get("token"))
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *fakeIssuer) registerRefresh(subject string) string {
	rt := "rt-" + uuid.NewString()
	f.mu.Lock()
	f.refreshTokens[rt] = subject
	f.mu.Unlock()
	return rt
}

// authorize plays the browser + issuer login page: it accepts the authorization URL and
// returns the code the issuer would redirect back with.
func (f *fakeIssuer) authorize(authURL string) (code, state string) {
	u, err := url.Parse(authURL)
	require.NoError(f.t, err)
	q := u.Query()
	code = "code-" + uuid.NewString()
	f.mu.Lock()
	f.codes[code] = pendingCode{challenge: q.Get("code_challenge"), nonce: q.Get("nonce")}
	f.mu.Unlock()
	return code, q.Get("state")
}

func (f *fakeIssuer) accessToken(subject string, exp time.Time) string {
	return f.sign(jwtlib.MapClaims{
		"iss":   f.url(),
		"sub":   subject,
		"email": testUserEmail,
		"exp":   exp.Unix(),
	})
}

func (f *fakeIssuer) sign(claims jwtlib.MapClaims) string {
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(f.key)
	require.NoError(f.t, err)
	return signed
}

func (f *fakeIssuer) revokedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revoked...)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func oauthError(w http.ResponseWriter, status int, code, description string) {
	body := map[string]string{"error": code}
	if description != "" {
		body["error_description"] = description
	}
	writeJSON(w, status, body)
}

type testFixture struct {
	issuer *fakeIssuer
	store  *repofake.FakeSessionStore
	client *idp.Client

	mu     sync.Mutex
	events []session.Event
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	issuer := newFakeIssuer(t)
	store := repofake.NewFakeSessionStore()
	client, err := idp.New(context.Background(), idp.Config{
		IssuerURL: issuer.url(),
		ClientID:  testClientID,
	}, store)
	require.NoError(t, err)

	f := &testFixture{issuer: issuer, store: store, client: client}
	client.Subscribe(func(e session.Event) {
		f.mu.Lock()
		f.events = append(f.events, e)
		f.mu.Unlock()
	})
	return f
}

func (f *testFixture) eventKinds() []session.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]session.EventKind, 0, len(f.events))
	for _, e := range f.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestNew_RequiresReachableIssuer(t *testing.T) {
	_, err := idp.New(context.Background(), idp.Config{IssuerURL: "http://127.0.0.1:1", ClientID: testClientID}, repofake.NewFakeSessionStore())
	require.True(t, apperrors.IsTransient(err))
}

func TestSignInWithPassword(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := setupTestFixture(t)
		s, err := f.client.SignInWithPassword(context.Background(), testUserEmail, testPassword)
		require.NoError(t, err)
		require.True(t, s.Valid(time.Now()))
		require.Equal(t, testUserID, s.User.ID)
		require.Equal(t, testUserEmail, s.User.Email)
		require.Equal(t, s.RefreshToken, f.store.Stored().RefreshToken)
		require.Equal(t, []session.EventKind{session.EventSignedIn}, f.eventKinds())
	})

	t.Run("rejected credentials", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.client.SignInWithPassword(context.Background(), testUserEmail, "wrong-pw")
		var authErr *apperrors.AuthError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, "Invalid login credentials", authErr.Message)
		require.Equal(t, "invalid_grant", authErr.Code)
		require.False(t, apperrors.Is(err, apperrors.ErrRefreshTokenInvalid))
		require.Nil(t, f.store.Stored())
	})
}

func TestRefreshSession(t *testing.T) {
	t.Run("rotates tokens", func(t *testing.T) {
		f := setupTestFixture(t)
		first, err := f.client.SignInWithPassword(context.Background(), testUserEmail, testPassword)
		require.NoError(t, err)

		refreshed, err := f.client.RefreshSession(context.Background())
		require.NoError(t, err)
		require.NotEqual(t, first.RefreshToken, refreshed.RefreshToken)
		require.Equal(t, testUserID, refreshed.User.ID)
		require.Equal(t, refreshed.RefreshToken, f.store.Stored().RefreshToken)
		require.Equal(t, []session.EventKind{session.EventSignedIn, session.EventTokenRefreshed}, f.eventKinds())
	})

	t.Run("no session", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.client.RefreshSession(context.Background())
		require.ErrorIs(t, err, apperrors.ErrNoSession)
	})

	t.Run("revoked refresh token", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.client.SignInWithPassword(context.Background(), testUserEmail, testPassword)
		require.NoError(t, err)
		f.issuer.mu.Lock()
		f.issuer.refreshTokens = make(map[string]string)
		f.issuer.mu.Unlock()

		_, err = f.client.RefreshSession(context.Background())
		require.ErrorIs(t, err, apperrors.ErrRefreshTokenInvalid)
		require.True(t, apperrors.IsAuth(err))
	})
}

func TestPersistedSession(t *testing.T) {
	t.Run("empty store", func(t *testing.T) {
		f := setupTestFixture(t)
		s, err := f.client.PersistedSession(context.Background())
		require.NoError(t, err)
		require.Nil(t, s)
	})

	t.Run("valid stored session is used as is", func(t *testing.T) {
		f := setupTestFixture(t)
		stored := &session.Session{
			AccessToken:  f.issuer.accessToken(testUserID, time.Now().Add(time.Hour)),
			RefreshToken: f.issuer.registerRefresh(testUserID),
			ExpiresAt:    time.Now().Add(time.Hour).Unix(),
			User:         session.Identity{ID: testUserID},
		}
		require.NoError(t, f.store.Save(context.Background(), stored))

		s, err := f.client.PersistedSession(context.Background())
		require.NoError(t, err)
		require.Equal(t, stored.AccessToken, s.AccessToken)

		_, err = f.client.RefreshSession(context.Background())
		require.NoError(t, err, "persisted session becomes the current one")
	})

	t.Run("expired stored session is refreshed", func(t *testing.T) {
		f := setupTestFixture(t)
		created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		stored := &session.Session{
			AccessToken:  f.issuer.accessToken(testUserID, time.Now().Add(-time.Minute)),
			RefreshToken: f.issuer.registerRefresh(testUserID),
			ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
			User:         session.Identity{ID: testUserID, CreatedAt: created},
		}
		require.NoError(t, f.store.Save(context.Background(), stored))

		s, err := f.client.PersistedSession(context.Background())
		require.NoError(t, err)
		require.True(t, s.Valid(time.Now()))
		require.NotEqual(t, stored.RefreshToken, s.RefreshToken)
		require.True(t, created.Equal(s.User.CreatedAt))
	})

	t.Run("expired stored session with dead refresh token is discarded", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Save(context.Background(), &session.Session{
			AccessToken:  "expired",
			RefreshToken: "rt-unknown",
			ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
			User:         session.Identity{ID: testUserID},
		}))

		s, err := f.client.PersistedSession(context.Background())
		require.NoError(t, err)
		require.Nil(t, s)
		require.Nil(t, f.store.Stored())
	})

	t.Run("issuer outage is transient", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.store.Save(context.Background(), &session.Session{
			AccessToken:  "expired",
			RefreshToken: flakyRefresh,
			ExpiresAt:    time.Now().Add(-time.Minute).Unix(),
			User:         session.Identity{ID: testUserID},
		}))

		_, err := f.client.PersistedSession(context.Background())
		require.True(t, apperrors.IsTransient(err))
		require.NotNil(t, f.store.Stored())
	})
}

func TestAuthorizationCodeFlow(t *testing.T) {
	f := setupTestFixture(t)

	authURL, err := f.client.BeginOAuth(context.Background(), "google", testRedirectURL)
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	require.Equal(t, f.issuer.url()+"/authorize", u.Scheme+"://"+u.Host+u.Path)
	q := u.Query()
	require.Equal(t, "google", q.Get("provider"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.Equal(t, testRedirectURL, q.Get("redirect_uri"))
	require.NotEmpty(t, q.Get("nonce"))

	code, state := f.issuer.authorize(authURL)
	s, err := f.client.ExchangeCodeForSession(context.Background(), code, state)
	require.NoError(t, err)
	require.Equal(t, testUserID, s.User.ID)
	require.Equal(t, []session.EventKind{session.EventSignedIn}, f.eventKinds())

	_, err = f.client.ExchangeCodeForSession(context.Background(), code, state)
	require.ErrorIs(t, err, apperrors.ErrInvalidState, "flows are single use")
}

func TestAuthorizationCodeFlow_StatelessCallback(t *testing.T) {
	f := setupTestFixture(t)
	authURL, err := f.client.BeginOAuth(context.Background(), "github", testRedirectURL)
	require.NoError(t, err)

	code, _ := f.issuer.authorize(authURL)
	_, err = f.client.ExchangeCodeForSession(context.Background(), code, "")
	require.NoError(t, err)
}

func TestBeginOAuth_RequiresProvider(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.client.BeginOAuth(context.Background(), "", testRedirectURL)
	require.True(t, apperrors.IsValidation(err))
}

func TestAdoptSession(t *testing.T) {
	t.Run("confirmed by userinfo", func(t *testing.T) {
		f := setupTestFixture(t)
		access := f.issuer.accessToken(testUserID, time.Now().Add(time.Hour))
		s, err := f.client.AdoptSession(context.Background(), access, "rt-from-fragment")
		require.NoError(t, err)
		require.Equal(t, access, s.AccessToken)
		require.Equal(t, "rt-from-fragment", s.RefreshToken)
		require.Equal(t, testUserID, s.User.ID)
		require.Equal(t, 2024, s.User.CreatedAt.Year())
		require.Equal(t, "rt-from-fragment", f.store.Stored().RefreshToken)
	})

	t.Run("not a jwt", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.client.AdoptSession(context.Background(), "opaque", "rt")
		require.True(t, apperrors.IsAuth(err))
	})

	t.Run("forged token rejected by userinfo", func(t *testing.T) {
		f := setupTestFixture(t)
		forged := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
			"sub": testUserID,
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		raw, err := forged.SignedString([]byte("not-the-issuer-key"))
		require.NoError(t, err)

		_, err = f.client.AdoptSession(context.Background(), raw, "rt")
		require.True(t, apperrors.IsAuth(err))
		require.Nil(t, f.store.Stored())
	})

	t.Run("expired token", func(t *testing.T) {
		f := setupTestFixture(t)
		access := f.issuer.accessToken(testUserID, time.Now().Add(-time.Minute))
		_, err := f.client.AdoptSession(context.Background(), access, "rt")
		require.True(t, apperrors.IsAuth(err))
	})
}

func TestSignOut(t *testing.T) {
	f := setupTestFixture(t)
	s, err := f.client.SignInWithPassword(context.Background(), testUserEmail, testPassword)
	require.NoError(t, err)

	require.NoError(t, f.client.SignOut(context.Background()))
	require.Nil(t, f.store.Stored())
	require.Equal(t, []string{s.RefreshToken}, f.issuer.revokedTokens())
	require.Equal(t, []session.EventKind{session.EventSignedIn, session.EventSignedOut}, f.eventKinds())

	_, err = f.client.RefreshSession(context.Background())
	require.ErrorIs(t, err, apperrors.ErrNoSession)
}

// gatedStore holds the next Save until release is closed.
type gatedStore struct {
	*repofake.FakeSessionStore
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) Save(ctx context.Context, sess *session.Session) error {
	if s.armed.CompareAndSwap(true, false) {
		close(s.entered)
		<-s.release
	}
	return s.FakeSessionStore.Save(ctx, sess)
}

func TestSignOut_DuringRefreshSave(t *testing.T) {
	issuer := newFakeIssuer(t)
	store := &gatedStore{
		FakeSessionStore: repofake.NewFakeSessionStore(),
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	client, err := idp.New(context.Background(), idp.Config{IssuerURL: issuer.url(), ClientID: testClientID}, store)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		kinds []session.EventKind
	)
	client.Subscribe(func(e session.Event) {
		mu.Lock()
		kinds = append(kinds, e.Kind)
		mu.Unlock()
	})

	ctrl, err := session.NewController(client)
	require.NoError(t, err)
	defer ctrl.Close()
	require.NoError(t, ctrl.Hydrate(context.Background()))
	require.NoError(t, ctrl.SignIn(context.Background(), testUserEmail, testPassword))

	store.armed.Store(true)
	refreshed := make(chan error, 1)
	go func() {
		_, err := client.RefreshSession(context.Background())
		refreshed <- err
	}()
	<-store.entered

	signedOut := make(chan error, 1)
	go func() {
		signedOut <- ctrl.SignOut(context.Background())
	}()
	require.Eventually(t, func() bool {
		return ctrl.State() == session.StateUnauthenticated
	}, time.Second, 5*time.Millisecond)

	close(store.release)
	require.NoError(t, <-refreshed)
	require.NoError(t, <-signedOut)

	require.Equal(t, session.StateUnauthenticated, ctrl.State())
	require.Nil(t, ctrl.Session())
	require.Nil(t, store.Stored())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []session.EventKind{session.EventSignedIn, session.EventTokenRefreshed, session.EventSignedOut}, kinds)
}

func TestControllerOverIssuer(t *testing.T) {
	f := setupTestFixture(t)
	ctrl, err := session.NewController(f.client)
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.Hydrate(context.Background()))
	require.Equal(t, session.StateUnauthenticated, ctrl.State())

	require.NoError(t, ctrl.SignIn(context.Background(), " User@Example.com", testPassword))
	require.Equal(t, session.StateAuthenticated, ctrl.State())
	require.Equal(t, f.store.Stored().AccessToken, ctrl.AccessToken())

	require.NoError(t, ctrl.SignOut(context.Background()))
	require.Equal(t, session.StateUnauthenticated, ctrl.State())
	require.Len(t, f.issuer.revokedTokens(), 1)
}
