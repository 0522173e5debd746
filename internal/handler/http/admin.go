package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"

	"github.com/cybertron15/review-booster/internal/auth"
	"github.com/cybertron15/review-booster/internal/domain"
	"github.com/cybertron15/review-booster/internal/repository/supabase"
	"github.com/cybertron15/review-booster/internal/service"
	"github.com/cybertron15/review-booster/internal/session"
	"github.com/cybertron15/review-booster/pkg/logger"
	"github.com/cybertron15/review-booster/pkg/slug"
	"github.com/cybertron15/review-booster/pkg/validator"
)

type adminKeyType struct{}

var adminKey adminKeyType

func withAdmin(ctx context.Context, s *auth.Session) context.Context {
	return context.WithValue(ctx, adminKey, s)
}

func adminFromContext(ctx context.Context) *auth.Session {
	s, _ := ctx.Value(adminKey).(*auth.Session)
	return s
}

// AdminHandler serves the admin sign-in page, the dashboard and its tools.
type AdminHandler struct {
	admin     *service.AdminService
	dashboard *service.DashboardService
	reviews   *service.ReviewService
	sessions  *session.Store
	cookie    session.Cookie
	render    *renderer
	publicURL string
	now       func() time.Time
	logger    *slog.Logger
}

// NewAdminHandler creates the admin handler. publicURL is the base of the
// review links encoded in QR codes.
func NewAdminHandler(
	admin *service.AdminService,
	dashboard *service.DashboardService,
	reviews *service.ReviewService,
	sessions *session.Store,
	rd *renderer,
	publicURL string,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		admin:     admin,
		dashboard: dashboard,
		reviews:   reviews,
		sessions:  sessions,
		cookie:    rd.cookie,
		render:    rd,
		publicURL: strings.TrimRight(publicURL, "/"),
		now:       time.Now,
		logger:    logger,
	}
}

// RequireAdmin lets a request through only when its browser session holds
// a live admin session. Others are sent to the sign-in page.
func (h *AdminHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sid := h.cookie.ID(r)
		if sid == "" {
			http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
			return
		}

		as, err := h.sessions.Auth(ctx, sid)
		if err != nil {
			logger.FromContext(ctx).ErrorContext(ctx, "failed to read admin session", slog.String("error", err.Error()))
			http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
			return
		}
		if as == nil {
			http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
			return
		}
		if as.Expired(h.now()) {
			if err := h.sessions.ClearAuth(ctx, sid); err != nil {
				logger.FromContext(ctx).WarnContext(ctx, "failed to clear expired admin session", slog.String("error", err.Error()))
			}
			http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
			return
		}

		ctx = logger.WithAdminID(ctx, as.UserID)
		ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("admin_id", as.UserID)))
		ctx = withAdmin(ctx, as)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type loginView struct {
	Mode    string
	Heading string
	Submit  string
	Email   string
	Message string
	Failed  bool
}

func newLoginView(mode string) loginView {
	v := loginView{Mode: mode}
	switch mode {
	case service.ModeSignUp:
		v.Heading, v.Submit = "Sign Up", "Sign up"
	case service.ModeForgot:
		v.Heading, v.Submit = "Forgot Password", "Send reset email"
	default:
		v.Mode = service.ModeSignIn
		v.Heading, v.Submit = "Sign In", "Sign in"
	}
	return v
}

// LoginPage handles GET /admin/login
func (h *AdminHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if sid := h.cookie.ID(r); sid != "" {
		if as, err := h.sessions.Auth(r.Context(), sid); err == nil && as != nil && !as.Expired(h.now()) {
			http.Redirect(w, r, "/admin", http.StatusSeeOther)
			return
		}
	}
	h.cookie.Ensure(w, r)
	h.render.render(w, r, http.StatusOK, pageAdminLogin, "Admin Sign In", newLoginView(r.URL.Query().Get("mode")))
}

// Login handles POST /admin/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sid := h.cookie.Ensure(w, r)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	creds := service.Credentials{
		Mode:     r.PostFormValue("mode"),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}

	view := newLoginView(creds.Mode)
	view.Email = creds.Email

	res, err := h.admin.Authenticate(ctx, creds)
	if err != nil {
		view.Message = loginErrorMessage(err)
		view.Failed = true
		h.render.render(w, r, loginErrorStatus(err), pageAdminLogin, "Admin Sign In", view)
		return
	}

	if res.Session != nil {
		if err := h.sessions.SetAuth(ctx, sid, *res.Session); err != nil {
			logger.FromContext(ctx).ErrorContext(ctx, "failed to store admin session", slog.String("error", err.Error()))
			view.Message = "Could not start your session. Please try again."
			view.Failed = true
			h.render.render(w, r, http.StatusServiceUnavailable, pageAdminLogin, "Admin Sign In", view)
			return
		}
		h.render.flash(w, r, session.FlashSuccess, res.Notice)
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}

	view.Message = res.Notice
	h.render.render(w, r, http.StatusOK, pageAdminLogin, "Admin Sign In", view)
}

func loginErrorMessage(err error) string {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		for _, field := range []string{"email", "password", "mode"} {
			if msg, ok := valErr.Fields()[field]; ok {
				return field + " " + msg
			}
		}
	}
	return auth.Message(err)
}

func loginErrorStatus(err error) int {
	var authErr *auth.Error
	if errors.As(err, &authErr) && authErr.Status >= 400 && authErr.Status < 500 {
		return authErr.Status
	}
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

// Logout handles POST /admin/logout
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if sid := h.cookie.ID(r); sid != "" {
		if as, err := h.sessions.Auth(ctx, sid); err == nil && as != nil {
			_ = h.admin.SignOut(ctx, as.AccessToken)
		}
		if err := h.sessions.ClearAuth(ctx, sid); err != nil {
			logger.FromContext(ctx).WarnContext(ctx, "failed to clear admin session", slog.String("error", err.Error()))
		}
		h.render.flash(w, r, session.FlashSuccess, service.NoticeSignedOut)
	}
	http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
}

// Dashboard handles GET /admin and GET /business/{businessID}/admin. The
// ?business= query selects the filter; the path id is the default.
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	selected := r.URL.Query().Get("business")
	if selected == "" {
		selected = chi.URLParam(r, "businessID")
	}

	if as := adminFromContext(ctx); as != nil {
		ctx = supabase.WithAccessToken(ctx, as.AccessToken)
	}

	d, err := h.dashboard.Dashboard(ctx, selected)
	if err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "failed to build dashboard", slog.String("error", err.Error()))
		h.render.render(w, r, http.StatusServiceUnavailable, pageUnavailable, "Temporarily Unavailable", r.URL.RequestURI())
		return
	}

	var notices []session.Flash
	if h.reviews.LoadErr() != nil {
		notices = append(notices, session.Flash{Kind: session.FlashError, Message: msgLoadFailed})
	}

	h.render.render(w, r, http.StatusOK, pageDashboard, "Admin Dashboard", struct {
		*service.Dashboard
		Action string
	}{d, r.URL.Path}, notices...)
}

// RefreshDirectory handles POST /admin/businesses/refresh
func (h *AdminHandler) RefreshDirectory(w http.ResponseWriter, r *http.Request) {
	h.reviews.Invalidate()
	if err := h.reviews.Load(r.Context()); err != nil {
		h.render.flash(w, r, session.FlashError, msgLoadFailed)
	} else {
		h.render.flash(w, r, session.FlashSuccess, "Restaurant list refreshed.")
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// QRCode handles GET /business/{businessID}/qr.png
func (h *AdminHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "businessID")
	b := domain.FindBusiness(h.reviews.ListActiveBusinesses(r.Context()), id)
	if b == nil {
		h.render.notFound(w, r)
		return
	}

	png, err := qrcode.Encode(h.publicURL+"/business/"+id, qrcode.Medium, 256)
	if err != nil {
		logger.FromContext(r.Context()).ErrorContext(r.Context(), "failed to encode qr code", slog.String("error", err.Error()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s-qr.png"`, slug.Generate(b.Name, b.ID)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(png)
}
