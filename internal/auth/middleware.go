package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// SessionCookie is the name of the HttpOnly cookie that carries the session JWT.
const SessionCookie = "token"

// contextKey is package-private so no other package can read or shadow the
// user id stored on the request context.
type contextKey string

const userIDKey contextKey = "userID"

var errNoCredentials = errors.New("auth: no session token")

// RequireAuth rejects requests without a valid session and stores the user id
// on the context of the ones it lets through.
//
// The token is read from the session cookie first (browser dashboard) and
// from an "Authorization: Bearer" header second (scripts, tests).
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return tokens.Validate(cookie.Value)
	}

	if h := r.Header.Get("Authorization"); h != "" {
		if raw, ok := strings.CutPrefix(h, "Bearer "); ok && raw != "" {
			return tokens.Validate(strings.TrimSpace(raw))
		}
	}

	return "", errNoCredentials
}
