package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/BradenHooton/billdesk/internal/models"
	pkghttp "github.com/BradenHooton/billdesk/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing operator claims in context
	UserContextKey contextKey = "user"
)

// RevocationChecker reports whether a token id was revoked by a logout.
type RevocationChecker interface {
	IsRevoked(jti string) bool
}

// BearerToken returns the token carried in "Authorization: Bearer <token>",
// or "" when the header is absent or malformed.
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireBearer validates access tokens and injects the claims into the
// request context. Every failure is a 401 so the console can drop its
// session.
func RequireBearer(issuer *TokenIssuer, revocations RevocationChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := BearerToken(r)
			if tokenString == "" {
				pkghttp.WriteUnauthorized(w, "Missing or malformed authorization header")
				return
			}

			// Refresh tokens fail the type check here.
			claims, err := issuer.ValidateToken(tokenString, TokenTypeAccess)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			if revocations != nil && revocations.IsRevoked(claims.ID) {
				pkghttp.WriteUnauthorized(w, "Token has been revoked")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserFromContext extracts operator claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
