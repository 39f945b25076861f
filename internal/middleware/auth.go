package middleware

import (
	"context"
	"net/http"
	"strings"

	"licenselock/internal/auth"
)

// userKey is the context key for the authenticated user.
const userKey contextKey = "auth-user"

// apiKeyKey is the context key for the verified API key.
const apiKeyKey contextKey = "auth-api-key"

// UserFrom returns the session user placed in the context by
// SessionAuth, or nil for unauthenticated requests.
func UserFrom(ctx context.Context) *auth.User {
	u, _ := ctx.Value(userKey).(*auth.User)
	return u
}

// APIKeyFrom returns the API key placed in the context by APIKeyAuth.
func APIKeyFrom(ctx context.Context) *auth.APIKey {
	k, _ := ctx.Value(apiKeyKey).(*auth.APIKey)
	return k
}

// BearerToken extracts the credential from the Authorization header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// SessionAuth requires a valid session token in the Authorization
// header and places the resolved user in the request context. The
// token can also ride in the llock_session cookie for browser clients.
func SessionAuth(svc *auth.Service) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				if c, err := r.Cookie("llock_session"); err == nil {
					token = c.Value
				}
			}
			if token == "" {
				unauthorized(w, "Authentication required")
				return
			}

			user, err := svc.CurrentUser(r.Context(), token)
			if err != nil {
				unauthorized(w, "Invalid or expired session")
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// APIKeyAuth requires a valid llp_ API key in the Authorization header
// or the X-API-Key header and places the key record in the request
// context.
func APIKeyAuth(svc *auth.Service) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				token = strings.TrimSpace(r.Header.Get("X-API-Key"))
			}
			if token == "" {
				unauthorized(w, "API key required")
				return
			}

			key, err := svc.VerifyAPIKey(r.Context(), token)
			if err != nil {
				unauthorized(w, "Invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"success":false,"error":{"status_code":401,"error_code":"UNAUTHORIZED","message":"` + message + `"}}`))
}
