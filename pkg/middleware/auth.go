package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type claimsKeyType struct{}

var claimsKey claimsKeyType

// Claims are the access token fields the admin API relies on.
type Claims struct {
	UserID string `json:"sub"`
	Email  string `json:"email"`
	Role   string `json:"role"`

	token string
}

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator func(token string) (*Claims, error)

// Auth rejects requests without a valid bearer token. Accepted claims, along
// with the raw token so handlers can call the backend as the admin, are
// stored in the request context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "", "missing or malformed bearer token")
				return
			}

			claims, err := validate(token)
			if err != nil {
				unauthorized(w, "invalid_token", "invalid or expired token")
				return
			}

			c := *claims
			c.token = token
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, &c)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// ClaimsFromContext returns the claims accepted by Auth, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

// UserIDFromContext returns the authenticated admin's user id.
func UserIDFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.UserID
	}
	return ""
}

// RoleFromContext returns the role claim of the accepted token.
func RoleFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Role
	}
	return ""
}

// BearerTokenFromContext returns the raw bearer token accepted by Auth.
func BearerTokenFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.token
	}
	return ""
}

func unauthorized(w http.ResponseWriter, errCode, message string) {
	challenge := `Bearer realm="reviewbooster"`
	if errCode != "" {
		challenge += `, error="` + errCode + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
