package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cybertron15/review-booster/internal/auth"
	"github.com/cybertron15/review-booster/pkg/logger"
	"github.com/cybertron15/review-booster/pkg/validator"
)

// Sign-in page modes.
const (
	ModeSignIn = "signin"
	ModeSignUp = "signup"
	ModeForgot = "forgot"
)

// Notices shown after a successful admin action.
const (
	NoticeSignedIn  = "Logged in successfully!"
	NoticeSignedUp  = "Sign up successful. Check your email to verify."
	NoticeResetSent = "Password reset email sent."
	NoticeSignedOut = "Signed out."
)

// Credentials is the admin sign-in form.
type Credentials struct {
	Mode     string `form:"mode" validate:"required,oneof=signin signup forgot"`
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required_unless=Mode forgot"`
}

// AuthResult is a completed admin action. Session is set only for sign-in.
type AuthResult struct {
	Session *auth.Session
	Notice  string
}

// AdminService runs the admin sign-in page against the identity provider.
type AdminService struct {
	provider      auth.Provider
	resetRedirect string
	logger        *slog.Logger
}

// NewAdminService creates an admin service. resetRedirect is where the
// password reset email sends the admin.
func NewAdminService(provider auth.Provider, resetRedirect string, logger *slog.Logger) *AdminService {
	return &AdminService{provider: provider, resetRedirect: resetRedirect, logger: logger}
}

// Authenticate performs the action selected by c.Mode. Provider failures
// are returned as *auth.Error carrying the provider's message.
func (s *AdminService) Authenticate(ctx context.Context, c Credentials) (*AuthResult, error) {
	if err := validator.Validate(c); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx).With(slog.String("email", logger.MaskEmail(c.Email)))
	switch c.Mode {
	case ModeSignIn:
		sess, err := s.provider.SignIn(ctx, c.Email, c.Password)
		if err != nil {
			log.WarnContext(ctx, "admin sign-in failed", slog.String("error", err.Error()))
			return nil, err
		}
		log.InfoContext(ctx, "admin signed in", slog.String("admin_id", sess.UserID))
		return &AuthResult{Session: sess, Notice: NoticeSignedIn}, nil

	case ModeSignUp:
		if err := s.provider.SignUp(ctx, c.Email, c.Password); err != nil {
			log.WarnContext(ctx, "admin sign-up failed", slog.String("error", err.Error()))
			return nil, err
		}
		return &AuthResult{Notice: NoticeSignedUp}, nil

	case ModeForgot:
		if err := s.provider.ResetPassword(ctx, c.Email, s.resetRedirect); err != nil {
			log.WarnContext(ctx, "password reset request failed", slog.String("error", err.Error()))
			return nil, err
		}
		return &AuthResult{Notice: NoticeResetSent}, nil
	}

	return nil, fmt.Errorf("unknown sign-in mode %q", c.Mode)
}

// SignOut revokes an access token at the provider.
func (s *AdminService) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	if err := s.provider.SignOut(ctx, accessToken); err != nil {
		logger.FromContext(ctx).WarnContext(ctx, "admin sign-out failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
