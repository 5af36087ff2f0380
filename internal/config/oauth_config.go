package config

import (
	"strings"
	"time"
)

type OAuthConfig interface {
	GetIssuerURL() string
	GetClientID() string
	GetClientSecret() string
	GetScopes() []string
	GetRedirectURL() string
	GetCallbackAddr() string
	GetAuthFlowTimeout() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

// GetIssuerURL defaults to the auth service mounted under the backend URL.
func (OAuth) GetIssuerURL() string {
	return GetEnv("OIDC_ISSUER", Backend{}.GetBackendURL()+"/auth/v1")
}

func (OAuth) GetClientID() string {
	return GetEnv("OIDC_CLIENT_ID", "climate-crusade")
}

// GetClientSecret is empty for public (mobile / CLI) clients, which rely on PKCE.
func (OAuth) GetClientSecret() string {
	return GetEnv("OIDC_CLIENT_SECRET", "")
}

func (OAuth) GetScopes() []string {
	return strings.Fields(GetEnv("OIDC_SCOPES", "openid email profile offline_access"))
}

// GetRedirectURL is where the identity provider sends the browser after a social sign-in.
func (OAuth) GetRedirectURL() string {
	return GetEnv("OAUTH_REDIRECT_URL", "http://127.0.0.1:8765/auth/callback")
}

// GetCallbackAddr is the loopback listen address that receives the redirect.
func (OAuth) GetCallbackAddr() string {
	return GetEnv("OAUTH_CALLBACK_ADDR", "127.0.0.1:8765")
}

func (OAuth) GetAuthFlowTimeout() time.Duration {
	return 5 * time.Minute
}
