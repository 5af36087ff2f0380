package idp

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/jrsteele09/climate-crusade/session"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const (
	opPassword = "password grant"
	opRefresh  = "refresh grant"
	opExchange = "code exchange"
	opRevoke   = "revoke"
)

// accessTokenClaims are read from the access token without verifying it; the issuer
// remains the authority on whether the token is good.
type accessTokenClaims struct {
	Email string `json:"email"`
	jwtlib.RegisteredClaims
}

func parseAccessToken(raw string) (*accessTokenClaims, error) {
	claims := &accessTokenClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

type idTokenClaims struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Nonce   string `json:"nonce"`
}

func (c *Client) refreshGrant(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	tok, err := c.oauth.TokenSource(c.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, classify(opRefresh, err)
	}
	return tok, nil
}

// sessionFromToken turns a token response into a Session. The identity comes from the
// verified ID token when present, otherwise from the access token, otherwise from previous.
func (c *Client) sessionFromToken(ctx context.Context, tok *oauth2.Token, nonce string, previous *session.Session) (*session.Session, error) {
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		return nil, apperrors.NewAuth("token response is missing tokens", nil)
	}

	s := &session.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}

	claims, claimsErr := parseAccessToken(tok.AccessToken)

	expiry := tok.Expiry
	if expiry.IsZero() && claimsErr == nil && claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}
	if expiry.IsZero() {
		return nil, apperrors.NewAuth("token response carries no expiry", nil)
	}
	s.ExpiresAt = expiry.Unix()

	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := c.verifier.Verify(oidc.ClientContext(ctx, c.httpClient), rawIDToken)
		if err != nil {
			return nil, apperrors.NewAuth("id token verification failed", err)
		}
		var ic idTokenClaims
		if err := idToken.Claims(&ic); err != nil {
			return nil, apperrors.NewAuth("id token claims unreadable", err)
		}
		if nonce != "" && ic.Nonce != nonce {
			return nil, apperrors.NewAuth("invalid nonce", nil)
		}
		s.User = session.Identity{ID: ic.Subject, Email: ic.Email}
	} else if claimsErr == nil && claims.Subject != "" {
		s.User = session.Identity{ID: claims.Subject, Email: claims.Email}
	} else if previous != nil {
		s.User = previous.User
	}

	if s.User.ID == "" {
		return nil, apperrors.NewAuth("could not determine the signed-in user", nil)
	}
	if previous != nil && previous.User.ID == s.User.ID && s.User.CreatedAt.IsZero() {
		s.User.CreatedAt = previous.User.CreatedAt
	}
	return s, nil
}

// revoke asks the issuer to invalidate refreshToken. Issuers without a revocation
// endpoint are skipped.
func (c *Client) revoke(ctx context.Context, refreshToken string) error {
	if c.revocationURL == "" {
		return nil
	}

	form := url.Values{
		"token":           {refreshToken},
		"token_type_hint": {"refresh_token"},
		"client_id":       {c.oauth.ClientID},
	}
	if c.oauth.ClientSecret != "" {
		form.Set("client_secret", c.oauth.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "[Client.revoke]")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewTransient(opRevoke, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &apperrors.AuthError{
			Message: "token revocation failed",
			Status:  resp.StatusCode,
		}
	}
	return nil
}

// classify maps a token endpoint failure onto the error taxonomy. A refresh grant
// rejected with invalid_grant means the refresh token is permanently dead.
func classify(op string, err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return apperrors.NewTransient(op, err)
	}

	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	if status >= http.StatusInternalServerError {
		return apperrors.NewTransient(op, err)
	}

	message := re.ErrorDescription
	if message == "" {
		message = re.ErrorCode
	}
	if message == "" {
		message = http.StatusText(status)
	}

	authErr := &apperrors.AuthError{Message: message, Code: re.ErrorCode, Status: status, Err: err}
	if op == opRefresh && re.ErrorCode == "invalid_grant" {
		authErr.Err = apperrors.ErrRefreshTokenInvalid
	}
	return authErr
}

func createdAt(info *oidc.UserInfo) time.Time {
	var extra struct {
		CreatedAt string `json:"created_at"`
	}
	if err := info.Claims(&extra); err != nil || extra.CreatedAt == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, extra.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}
