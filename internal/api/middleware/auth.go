package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/aggregate-store/internal/auth"
)

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ExtractToken extracts the bearer token from the Authorization header
func ExtractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

type contextKey string

const (
	ClientContextKey contextKey = "client"
)

// AuthMiddleware validates JWT tokens and adds client claims to context
func AuthMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := ExtractToken(r)
			if tokenString == "" {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := jwtService.ValidateToken(tokenString)
			if err != nil {
				respondError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClientContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClientFromContext retrieves client claims from the request context
func GetClientFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClientContextKey).(*auth.Claims)
	return claims, ok
}

// GetClientID is a helper to get just the client ID from context
func GetClientID(ctx context.Context) string {
	claims, ok := GetClientFromContext(ctx)
	if !ok {
		return ""
	}
	return claims.ClientID
}
