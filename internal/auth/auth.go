// Package auth is the admin identity capability: sign-in and account
// management against an external provider, and verification of the access
// tokens it issues.
package auth

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/cybertron15/review-booster/pkg/errors"
)

// Session is a live admin session issued by the provider.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
}

// Expired reports whether the access token has passed its expiry.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Provider is an external identity service.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) error
	ResetPassword(ctx context.Context, email, redirectTo string) error
	SignOut(ctx context.Context, accessToken string) error
}

// Error is a provider failure. Message is the provider's own text and is
// shown to the admin unmodified.
type Error struct {
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the text to show for err: the provider message when
// there is one, otherwise a generic failure.
func Message(err error) string {
	var authErr *Error
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}
	if appErr, ok := apperrors.As(err); ok && appErr.Message != "" {
		return appErr.Message
	}
	return "authentication failed"
}

func providerError(err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := apperrors.As(err); ok {
		return &Error{Message: appErr.Message, Status: appErr.Status, Err: err}
	}
	return &Error{Message: err.Error(), Err: err}
}
