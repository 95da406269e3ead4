// Package ctxkeys provides typed accessors for request-scoped values.
package ctxkeys

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	userKey contextKey = "user"
)

// WithUser stores the verified session claims on the context.
func WithUser(ctx context.Context, claims jwt.MapClaims) context.Context {
	return context.WithValue(ctx, userKey, claims)
}

// User returns the session claims, or nil for anonymous requests.
func User(ctx context.Context) jwt.MapClaims {
	claims, ok := ctx.Value(userKey).(jwt.MapClaims)
	if !ok {
		return nil
	}
	return claims
}

// UserID returns the authenticated user's id, or "" for anonymous requests.
func UserID(ctx context.Context) string {
	claims := User(ctx)
	if claims == nil {
		return ""
	}
	id, _ := claims["user_id"].(string)
	return id
}
