package http

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/cybertron15/review-booster/internal/session"
	"github.com/cybertron15/review-booster/pkg/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Page names.
const (
	pageHome          = "home"
	pageReview        = "review"
	pageThankYou      = "thank_you"
	pageNotFound      = "not_found"
	pageUnavailable   = "unavailable"
	pageAdminLogin    = "admin_login"
	pageResetPassword = "reset_password"
	pageDashboard     = "dashboard"
)

var pageNames = []string{
	pageHome, pageReview, pageThankYou, pageNotFound, pageUnavailable,
	pageAdminLogin, pageResetPassword, pageDashboard,
}

var templateFuncs = template.FuncMap{
	"seq": func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i + 1
		}
		return out
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("Jan 2, 2006")
	},
	"year": func() int { return time.Now().Year() },
}

// page is the data every template receives.
type page struct {
	Title    string
	Flashes  []session.Flash
	SignedIn bool
	Content  any
}

// renderer executes the embedded page templates inside the shared layout.
type renderer struct {
	pages    map[string]*template.Template
	sessions *session.Store
	cookie   session.Cookie
	logger   *slog.Logger
}

func newRenderer(sessions *session.Store, cookie session.Cookie, logger *slog.Logger) (*renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return &renderer{pages: pages, sessions: sessions, cookie: cookie, logger: logger}, nil
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// render writes a full page. Queued flashes for the browser session are
// consumed, and extra notices are shown after them.
func (rd *renderer) render(w http.ResponseWriter, r *http.Request, status int, name, title string, content any, extra ...session.Flash) {
	ctx := r.Context()
	p := page{Title: title, Content: content}

	if sid := rd.cookie.ID(r); sid != "" {
		flashes, err := rd.sessions.PopFlashes(ctx, sid)
		if err != nil {
			logger.FromContext(ctx).WarnContext(ctx, "failed to read flashes", slog.String("error", err.Error()))
		}
		p.Flashes = flashes
		if adminFromContext(ctx) != nil {
			p.SignedIn = true
		} else if as, err := rd.sessions.Auth(ctx, sid); err == nil && as != nil && !as.Expired(time.Now()) {
			p.SignedIn = true
		}
	}
	p.Flashes = append(p.Flashes, extra...)

	t, ok := rd.pages[name]
	if !ok {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		logger.FromContext(ctx).ErrorContext(ctx, "failed to render page",
			slog.String("page", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// flash queues a notice for the next rendered page of this browser session.
func (rd *renderer) flash(w http.ResponseWriter, r *http.Request, kind, message string) {
	sid := rd.cookie.Ensure(w, r)
	if err := rd.sessions.AddFlash(r.Context(), sid, session.Flash{Kind: kind, Message: message}); err != nil {
		logger.FromContext(r.Context()).WarnContext(r.Context(), "failed to queue flash", slog.String("error", err.Error()))
	}
}

func (rd *renderer) notFound(w http.ResponseWriter, r *http.Request) {
	rd.render(w, r, http.StatusNotFound, pageNotFound, "Page Not Found", nil)
}
