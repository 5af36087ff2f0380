package flowrepo

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("flow state not found")
	ErrExpired  = errors.New("flow state expired")
)

// Flow is a pending authorization-code flow started by BeginOAuth.
type Flow struct {
	Provider     string // Social provider name, e.g. "google"
	CodeVerifier string // PKCE verifier sent on exchange
	Nonce        string // Expected nonce claim of the ID token
	RedirectURL  string // Redirect target used in the authorization request
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, flow *Flow) error
	Get(state string) (*Flow, error)
	Delete(state string) error
	// Only returns the single pending flow, for callbacks that come back without a state.
	Only() (string, *Flow, error)
}
