package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// TokenSource supplies the bearer token of the signed-in user, or "" when signed out.
type TokenSource interface {
	AccessToken() string
}

// Client talks to the backend's HTTP surface (table REST API, edge functions) on
// behalf of the signed-in user.
type Client struct {
	baseURL    string
	apiKey     string
	tokens     TokenSource
	httpClient *http.Client
	logger     zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "rest").Logger()
	}
}

// New creates a client for baseURL. tokens may be nil, in which case requests carry
// only the public API key.
func New(baseURL, apiKey string, tokens TokenSource, options ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		tokens:     tokens,
		httpClient: http.DefaultClient,
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Request describes one call. Body is JSON encoded; Out receives the JSON response.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Out     any
	Headers map[string]string
}

// Do sends req. Transport failures and 5xx responses are TransientNetworkErrors, 401/403
// are AuthErrors and 404 wraps ErrNotFound.
func (c *Client) Do(ctx context.Context, req Request) error {
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return errors.Wrap(err, "[Client.Do] encode body")
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return errors.Wrap(err, "[Client.Do]")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("apikey", c.apiKey)
	}
	if bearer := c.bearer(); bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	c.logger.Debug().Str("method", req.Method).Str("path", req.Path).Msg("backend request")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return apperrors.NewTransient(req.Method+" "+req.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.statusError(req, resp)
	}
	if req.Out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(req.Out); err != nil {
		return errors.Wrapf(err, "[Client.Do] decode %s response", req.Path)
	}
	return nil
}

func (c *Client) bearer() string {
	if c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			return token
		}
	}
	return c.apiKey
}

// errorBody covers the error shapes of the table API ("message") and of edge
// functions ("error").
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func (c *Client) statusError(req Request, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var eb errorBody
	_ = json.Unmarshal(raw, &eb)

	message := eb.Message
	if message == "" {
		message = eb.Error
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	op := req.Method + " " + req.Path

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &apperrors.AuthError{Message: message, Code: eb.Code, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusNotFound:
		return errors.Wrap(apperrors.ErrNotFound, op)
	case resp.StatusCode >= http.StatusInternalServerError:
		return apperrors.NewTransient(op, fmt.Errorf("status %d: %s", resp.StatusCode, message))
	default:
		return errors.Errorf("%s: status %d: %s", op, resp.StatusCode, message)
	}
}
