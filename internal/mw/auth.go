// internal/mw/auth.go
package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "admin"

type CtxUserKey struct{}

type CtxRoleKey struct{}

// UserID returns the authenticated user id, or "" outside AuthMiddleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(CtxUserKey{}).(string)
	return id
}

func Role(ctx context.Context) string {
	role, _ := ctx.Value(CtxRoleKey{}).(string)
	return role
}

// AuthMiddleware verifies an HS256 bearer token and puts the caller's user id
// (claim user_id, else sub) and role into the request context.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				ErrorResponse(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			tok := strings.TrimPrefix(h, "Bearer ")
			claims := jwt.MapClaims{}
			_, err := parser.ParseWithClaims(tok, claims, func(token *jwt.Token) (interface{}, error) {
				return key, nil
			})
			if err != nil {
				ErrorResponse(w, http.StatusUnauthorized, "invalid token")
				return
			}
			userID, _ := claims["user_id"].(string)
			if userID == "" {
				userID, _ = claims["sub"].(string)
			}
			if userID == "" {
				ErrorResponse(w, http.StatusUnauthorized, "user_id claim required")
				return
			}
			role, _ := claims["role"].(string)

			ctx := context.WithValue(r.Context(), CtxUserKey{}, userID)
			ctx = context.WithValue(ctx, CtxRoleKey{}, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole must run after AuthMiddleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Role(r.Context()) != role {
				ErrorResponse(w, http.StatusForbidden, role+" role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
