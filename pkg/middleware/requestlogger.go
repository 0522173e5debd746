package middleware

import (
	"log/slog"
	"net/http"

	"github.com/cybertron15/review-booster/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context. Handlers and
// services read it back with logger.FromContext and get correlation_id,
// trace_id, span_id and, on bearer-authenticated API routes, admin_id for free.
//
// It must run after RequestLogging and Tracing. Page routes learn the admin
// from the session cookie later in the chain and call logger.WithAdminID
// themselves.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if adminID := UserIDFromContext(ctx); adminID != "" {
				ctx = logger.WithAdminID(ctx, adminID)
			}
			next.ServeHTTP(w, r.WithContext(logger.NewContext(ctx, logger.WithContext(ctx, base))))
		})
	}
}
