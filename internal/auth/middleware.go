package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

type ctxKey int

const claimsKey ctxKey = 1

func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

type TokenVerifier interface {
	Verify(tokenStr string) (*Claims, error)
}

// AuthRequired checks the Bearer token and adds claims to the context.
// Expired and invalid tokens get the same response.
func AuthRequired(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			claims, err := verifier.Verify(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
			if err != nil {
				reason := "invalid"
				if errors.Is(err, ErrExpiredToken) {
					reason = "expired"
				}
				logger.Warn("token rejected", "reason", reason, "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// Require gates a handler on a capability from the capability table.
func Require(capability Capability, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}
			if err := Authorize(claims, capability); err != nil {
				logger.Warn("access denied", "role", string(claims.Role), "capability", string(capability))
				writeError(w, http.StatusForbidden, "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"message":"` + msg + `"}`))
}
