package deeplink

import (
	"errors"
	"net/url"
	"strconv"
)

var (
	// ErrNotCallback is returned for URLs that carry no authorization result at all.
	ErrNotCallback = errors.New("url carries no authorization result")
	// ErrPartialTokens is returned when a fragment carries only one of access_token / refresh_token.
	ErrPartialTokens = errors.New("url fragment carries incomplete tokens")
)

// ResponseMode denotes where the authorization result was found in the inbound URL.
type ResponseMode string

const (
	// QueryResponseMode is the authorization-code flow.
	// Example: climatecrusade://auth/callback?code=ABC123&state=xyz
	// The code must be exchanged for a session at the provider.
	QueryResponseMode ResponseMode = "query"

	// FragmentResponseMode is the implicit-style flow.
	// Example: climatecrusade://auth/callback#access_token=eyJ...&refresh_token=r1&expires_in=3600
	// The tokens are adopted directly.
	FragmentResponseMode ResponseMode = "fragment"
)

// Callback is the authorization result carried by an application-launch URL.
type Callback struct {
	// URL is the raw inbound URL.
	URL string

	// Mode says whether the result came from the query string or the fragment.
	Mode ResponseMode

	// Code is the authorization code (query mode).
	Code string

	// State echoes the state value sent with the authorization request.
	// Used to find the pending flow's PKCE verifier and nonce.
	State string

	// AccessToken and RefreshToken are the raw tokens (fragment mode). Both are always set
	// together; a URL carrying only one is rejected by Parse.
	AccessToken  string
	RefreshToken string

	// ExpiresIn and TokenType are informational; the session's expiry comes from the token.
	ExpiresIn int
	TokenType string

	// Error and ErrorDescription are set when the provider reported a failure.
	// Example: ?error=access_denied&error_description=User+denied+access
	Error            string
	ErrorDescription string
}

// HasCode reports whether the callback carries an authorization code.
func (c *Callback) HasCode() bool {
	return c.Code != ""
}

// HasTokens reports whether the callback carries both raw tokens.
func (c *Callback) HasTokens() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// HasError reports whether the provider reported a failure.
func (c *Callback) HasError() bool {
	return c.Error != ""
}

// ErrorMessage returns the most descriptive error text available.
func (c *Callback) ErrorMessage() string {
	if c.ErrorDescription != "" {
		return c.ErrorDescription
	}
	return c.Error
}

// Parse extracts the authorization result from an inbound URL. Provider errors win over
// tokens, and tokens win over a code.
func Parse(rawURL string) (*Callback, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	query := u.Query()
	fragment, err := url.ParseQuery(u.EscapedFragment())
	if err != nil {
		return nil, err
	}

	cb := &Callback{URL: rawURL, State: first(query, fragment, "state")}

	if errCode := first(query, fragment, "error"); errCode != "" {
		cb.Error = errCode
		cb.ErrorDescription = first(query, fragment, "error_description")
		if fragment.Has("error") {
			cb.Mode = FragmentResponseMode
		} else {
			cb.Mode = QueryResponseMode
		}
		return cb, nil
	}

	if fragment.Has("access_token") || fragment.Has("refresh_token") {
		cb.Mode = FragmentResponseMode
		cb.AccessToken = fragment.Get("access_token")
		cb.RefreshToken = fragment.Get("refresh_token")
		cb.TokenType = fragment.Get("token_type")
		cb.ExpiresIn, _ = strconv.Atoi(fragment.Get("expires_in"))
		if !cb.HasTokens() {
			return nil, ErrPartialTokens
		}
		return cb, nil
	}

	if code := query.Get("code"); code != "" {
		cb.Mode = QueryResponseMode
		cb.Code = code
		return cb, nil
	}

	return nil, ErrNotCallback
}

func first(query, fragment url.Values, key string) string {
	if v := query.Get(key); v != "" {
		return v
	}
	return fragment.Get(key)
}
