// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/capitalize-ai/agent-conversations/internal/model"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// ScopeKey is the context key for the caller's tenant scope.
	ScopeKey ContextKey = "tenant_scope"
	// ScopesKey is the context key for JWT scopes.
	ScopesKey ContextKey = "scopes"
)

// Claims represents JWT claims. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	OrganizationID string   `json:"organization_id"`
	Scopes         []string `json:"scope"`
}

// Auth creates JWT authentication middleware. A valid token must carry both
// a subject and an organization id; together they form the request's
// tenant scope.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeJSONError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			scope, err := model.NewScope(claims.OrganizationID, claims.Subject, 0)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "token lacks organization or subject")
				return
			}

			noteScope(r.Context(), scope)
			ctx := context.WithValue(r.Context(), ScopeKey, scope)
			ctx = context.WithValue(ctx, ScopesKey, claims.Scopes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetScope returns the authenticated tenant scope, or a zero scope.
func GetScope(ctx context.Context) model.Scope {
	if v, ok := ctx.Value(ScopeKey).(model.Scope); ok {
		return v
	}
	return model.Scope{}
}

// GetUserID gets user ID from context.
func GetUserID(ctx context.Context) string {
	return GetScope(ctx).UserID()
}

// GetOrganizationID gets the organization ID from context.
func GetOrganizationID(ctx context.Context) string {
	return GetScope(ctx).OrganizationID()
}

// GetScopes gets scopes from context.
func GetScopes(ctx context.Context) []string {
	if v, ok := ctx.Value(ScopesKey).([]string); ok {
		return v
	}
	return nil
}

// HasScope checks if the context has a specific scope.
func HasScope(ctx context.Context, scope string) bool {
	for _, s := range GetScopes(ctx) {
		if s == scope {
			return true
		}
	}
	return false
}

// RequireScope creates middleware that requires a specific scope.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !HasScope(r.Context(), scope) {
				writeJSONError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
