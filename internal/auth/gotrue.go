package auth

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/cybertron15/review-booster/internal/repository/supabase"
)

// GoTrue implements Provider over the Supabase auth REST API.
type GoTrue struct {
	client *supabase.Client
	now    func() time.Time
}

// NewGoTrue creates a provider sending requests through client.
func NewGoTrue(client *supabase.Client) *GoTrue {
	return &GoTrue{client: client, now: time.Now}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// SignIn exchanges email and password for a session.
func (g *GoTrue) SignIn(ctx context.Context, email, password string) (*Session, error) {
	q := url.Values{}
	q.Set("grant_type", "password")

	req, err := g.client.NewRequest(ctx, http.MethodPost, "/auth/v1/token", q, credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	var tok tokenResponse
	if err := g.client.Send(ctx, req, &tok); err != nil {
		return nil, providerError(err)
	}

	s := &Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		UserID:       tok.User.ID,
		Email:        tok.User.Email,
	}
	switch {
	case tok.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(tok.ExpiresAt, 0).UTC()
	case tok.ExpiresIn > 0:
		s.ExpiresAt = g.now().Add(time.Duration(tok.ExpiresIn) * time.Second).UTC()
	}
	return s, nil
}

// SignUp creates an account. The provider sends a verification email
// before the account can sign in.
func (g *GoTrue) SignUp(ctx context.Context, email, password string) error {
	req, err := g.client.NewRequest(ctx, http.MethodPost, "/auth/v1/signup", nil, credentials{Email: email, Password: password})
	if err != nil {
		return err
	}
	return providerError(g.client.Send(ctx, req, nil))
}

// ResetPassword asks the provider to email a reset link that lands on
// redirectTo.
func (g *GoTrue) ResetPassword(ctx context.Context, email, redirectTo string) error {
	var q url.Values
	if redirectTo != "" {
		q = url.Values{}
		q.Set("redirect_to", redirectTo)
	}

	req, err := g.client.NewRequest(ctx, http.MethodPost, "/auth/v1/recover", q, map[string]string{"email": email})
	if err != nil {
		return err
	}
	return providerError(g.client.Send(ctx, req, nil))
}

// SignOut revokes the session owning accessToken.
func (g *GoTrue) SignOut(ctx context.Context, accessToken string) error {
	ctx = supabase.WithAccessToken(ctx, accessToken)
	req, err := g.client.NewRequest(ctx, http.MethodPost, "/auth/v1/logout", nil, nil)
	if err != nil {
		return err
	}
	return providerError(g.client.Send(ctx, req, nil))
}

// Ping checks the auth service health endpoint.
func (g *GoTrue) Ping(ctx context.Context) error {
	req, err := g.client.NewRequest(ctx, http.MethodGet, "/auth/v1/health", nil, nil)
	if err != nil {
		return err
	}
	return g.client.Send(ctx, req, nil)
}
