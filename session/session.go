package session

import (
	"time"
)

// State is the authentication state of the controller.
type State int

const (
	// StateUnknown is the initial state before hydration has completed. Views must treat it
	// as "loading", never as signed out.
	StateUnknown State = iota
	// StateUnauthenticated means no valid Session is held.
	StateUnauthenticated
	// StateAuthenticated means a valid Session is held.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Identity is the authenticated user embedded in a Session.
type Identity struct {
	ID        string    `json:"id"`         // Stable user identifier
	Email     string    `json:"email"`      // User email
	CreatedAt time.Time `json:"created_at"` // When the account was created
}

// Session is an opaque credential bundle. It is replaced wholesale, never mutated.
type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresAt    int64    `json:"expires_at"` // Absolute expiry, seconds since epoch
	User         Identity `json:"user"`
}

// Expiry returns the absolute expiration time.
func (s *Session) Expiry() time.Time {
	return time.Unix(s.ExpiresAt, 0)
}

// Complete reports whether every field of the bundle is populated.
func (s *Session) Complete() bool {
	return s != nil &&
		s.AccessToken != "" &&
		s.RefreshToken != "" &&
		s.ExpiresAt > 0 &&
		s.User.ID != ""
}

// Valid reports whether the session is complete and not yet expired at now.
func (s *Session) Valid(now time.Time) bool {
	return s.Complete() && now.Before(s.Expiry())
}

// ExpiresWithin reports whether the session expires before now+window.
func (s *Session) ExpiresWithin(now time.Time, window time.Duration) bool {
	return s.Expiry().Before(now.Add(window))
}

// EventKind names a change in the identity provider's own state.
type EventKind string

const (
	EventInitialSession EventKind = "INITIAL_SESSION"
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// changesIdentity reports whether the event starts or ends a session, as opposed to
// rotating tokens within the same one.
func (k EventKind) changesIdentity() bool {
	return k != EventTokenRefreshed && k != EventUserUpdated
}

// Event is emitted by the provider's change-notification stream. Session is nil when
// the provider no longer holds a session.
type Event struct {
	Kind    EventKind
	Session *Session
}

// Snapshot is the read-only view of the controller published to subscribers.
type Snapshot struct {
	State   State
	Session *Session
	// Expired is set on the snapshot published when the watchdog found the session
	// already past its expiry. Views show a blocking "session expired" prompt.
	Expired bool
	// Version increases on every published change.
	Version uint64
}

// Identity returns the signed-in user, or nil.
func (s Snapshot) Identity() *Identity {
	if s.Session == nil {
		return nil
	}
	user := s.Session.User
	return &user
}
