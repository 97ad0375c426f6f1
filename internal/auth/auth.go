// Package auth resolves request identity. Token decoding itself is an
// external collaborator; this package only defines the port and a
// header-based implementation, and carries the resolved user id in the
// request context.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey struct{}

var userIDKey contextKey

// UserResolver turns an incoming request into a user id
type UserResolver interface {
	Resolve(r *http.Request) (string, error)
}

// HeaderResolver reads the user id from the X-User-ID header. It stands in
// for a real token verifier in development and tests.
type HeaderResolver struct{}

// Resolve implements UserResolver
func (HeaderResolver) Resolve(r *http.Request) (string, error) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		return "", ErrNoIdentity
	}
	return userID, nil
}

// ErrNoIdentity is returned when a request carries no usable identity
var ErrNoIdentity = &identityError{"missing or invalid credentials"}

type identityError struct{ msg string }

func (e *identityError) Error() string { return e.msg }

// WithUserID returns a context carrying the user id
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID extracts the user id placed by Middleware; ok is false when the
// request was not authenticated.
func UserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// Middleware authenticates every request via the resolver, rejecting with
// 401 when no identity can be established.
func Middleware(resolver UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := resolver.Resolve(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"status":  "error",
					"message": "authentication required",
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
