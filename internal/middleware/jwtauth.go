// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const (
	userKey   ctxKey = "user"
	expiryKey ctxKey = "expiry"
)

// IssueToken signs an HS256 bearer token for userID, valid for ttl.
// It returns the token and its expiry in epoch milliseconds.
func IssueToken(secret, userID string, ttl time.Duration) (string, int64, error) {
	expires := time.Now().Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", 0, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires.UnixMilli(), nil
}

// JWTAuth is a middleware that enforces bearer-token authentication.
//
// It expects an "Authorization: Bearer <token>" header carrying an HS256
// token signed with secret. On success the token subject is stored in the
// request context as the authenticated user id.
func JWTAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid || claims.Subject == "" {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, claims.Subject)
			if claims.ExpiresAt != nil {
				ctx = context.WithValue(ctx, expiryKey, claims.ExpiresAt.UnixMilli())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserIDFromContext extracts the authenticated user id from the request
// context. Returns an empty string if not found.
func GetUserIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(userKey).(string); ok {
		return s
	}
	return ""
}

// GetExpiryFromContext extracts the token expiry (epoch milliseconds) from
// the request context. Returns 0 if not found.
func GetExpiryFromContext(ctx context.Context) int64 {
	if v, ok := ctx.Value(expiryKey).(int64); ok {
		return v
	}
	return 0
}
