// Package supabase talks to a hosted Supabase project: PostgREST for data
// and GoTrue for authentication.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cybertron15/review-booster/pkg/httpclient"
)

type accessTokenKey struct{}

// WithAccessToken makes requests made with ctx authenticate as the signed-in
// user instead of the anonymous role.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessTokenFromContext returns the token set by WithAccessToken.
func AccessTokenFromContext(ctx context.Context) string {
	if tok, ok := ctx.Value(accessTokenKey{}).(string); ok {
		return tok
	}
	return ""
}

// Config identifies a Supabase project.
type Config struct {
	URL     string
	APIKey  string
	Service string // name used in errors and logs
}

// Client sends authenticated requests to a Supabase project.
type Client struct {
	baseURL string
	apiKey  string
	service string
	doer    httpclient.Doer
}

// NewClient creates a client. The doer is normally a circuit breaker
// wrapped httpclient.Client.
func NewClient(cfg Config, doer httpclient.Doer) *Client {
	service := cfg.Service
	if service == "" {
		service = "supabase"
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		service: service,
		doer:    doer,
	}
}

// Service returns the name used for this client in errors.
func (c *Client) Service() string {
	return c.service
}

// NewRequest builds a request against path with the project key headers.
// A non-nil body is sent as JSON.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	bearer := c.apiKey
	if tok := AccessTokenFromContext(ctx); tok != "" {
		bearer = tok
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Send executes req and decodes a 2xx JSON body into out when out is
// non-nil. Non-2xx responses become apperrors values carrying the
// provider's message; transport failures become 503s.
func (c *Client) Send(ctx context.Context, req *http.Request, out any) error {
	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return httpclient.Classify(err, c.service)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, c.service)
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.service, err)
	}
	return nil
}
