package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cybertron15/review-booster/internal/service"
	"github.com/cybertron15/review-booster/internal/session"
	"github.com/cybertron15/review-booster/pkg/health"
	"github.com/cybertron15/review-booster/pkg/middleware"
)

// Dependencies is everything the router wires into handlers.
type Dependencies struct {
	ServiceName string

	Reviews   *service.ReviewService
	Flow      *service.ReviewFlow
	Admin     *service.AdminService
	Dashboard *service.DashboardService
	Sessions  *session.Store
	Cookie    session.Cookie
	Health    *health.Handler

	// TokenValidator guards the admin JSON API. The API is not mounted
	// when it is nil.
	TokenValidator middleware.TokenValidator
	// RateLimiter throttles form and API posts when set.
	RateLimiter *middleware.RateLimiter

	Pages          PageOptions
	PublicURL      string
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter creates a chi router with all routes registered.
func NewRouter(deps Dependencies) (http.Handler, error) {
	logger := deps.Logger
	rd, err := newRenderer(deps.Sessions, deps.Cookie, logger)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	pages := NewPageHandler(deps.Reviews, deps.Flow, deps.Sessions, rd, deps.Pages, logger)
	admin := NewAdminHandler(deps.Admin, deps.Dashboard, deps.Reviews, deps.Sessions, rd, deps.PublicURL, logger)
	api := NewAPIHandler(deps.Reviews, deps.Flow, deps.Dashboard, logger)

	limit := func(next http.Handler) http.Handler { return next }
	if deps.RateLimiter != nil {
		limit = deps.RateLimiter.OnLimit(tooManyRequests(rd)).Handler
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(deps.ServiceName))
	r.Use(middleware.Tracing(deps.ServiceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	r.Handle("/static/*", staticHandler())

	// Public pages
	r.Get("/", pages.Home)
	r.Get("/not-found", pages.NotFound)
	r.Get("/thank-you", pages.ThankYou)
	r.Get("/reset-password", pages.ResetPassword)
	r.Get("/business/{businessID}", pages.ReviewForm)
	r.With(limit).Post("/business/{businessID}", pages.SubmitReview)

	// Admin pages
	r.Get("/admin/login", admin.LoginPage)
	r.With(limit).Post("/admin/login", admin.Login)
	r.Post("/admin/logout", admin.Logout)
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdmin)

		r.Get("/admin", admin.Dashboard)
		r.Get("/business/{businessID}/admin", admin.Dashboard)
		r.Get("/business/{businessID}/qr.png", admin.QRCode)
		r.Post("/admin/businesses/refresh", admin.RefreshDirectory)
	})

	// JSON API
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Correlation-ID"},
			ExposedHeaders: []string{"X-Correlation-ID"},
			MaxAge:         300,
		}))

		r.Get("/businesses", api.ListBusinesses)
		r.Get("/businesses/{businessID}", api.GetBusiness)
		r.With(limit).Post("/businesses/{businessID}/reviews", api.CreateReview)

		if deps.TokenValidator != nil {
			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(deps.TokenValidator))
				r.Use(middleware.RequestLogger(logger))

				r.Get("/admin/stats", api.Stats)
				r.Get("/admin/reviews", api.ListReviews)
			})
		}
	})

	r.NotFound(pages.NotFound)

	return r, nil
}

// tooManyRequests answers throttled requests: JSON under /api, a page
// otherwise.
func tooManyRequests(rd *renderer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"too many requests"}}`))
			return
		}
		rd.render(w, r, http.StatusTooManyRequests, pageUnavailable, "Too Many Requests", r.URL.RequestURI())
	})
}
