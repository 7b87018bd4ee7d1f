package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/BradenHooton/billdesk/internal/auth"
	pkghttp "github.com/BradenHooton/billdesk/pkg/http"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAuthRateLimit returns default rate limit config for auth endpoints (10 requests per minute)
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
	}
}

// DefaultResourceRateLimit returns the per-operator limit for dashboard reads.
func DefaultResourceRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 120,
	}
}

func writeRateLimited(w http.ResponseWriter, _ *http.Request) {
	pkghttp.WriteTooManyRequests(w, "Too many requests. Please try again later.")
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(writeRateLimited),
	)
}

// RateLimitByOperator limits authenticated requests per operator, falling
// back to the client IP when no claims are in the context. Must run after
// auth.RequireBearer.
func RateLimitByOperator(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetUserFromContext(r); claims != nil && claims.UserID != "" {
				return "operator:" + claims.UserID, nil
			}
			return httprate.KeyByRealIP(r)
		}),
		httprate.WithLimitHandler(writeRateLimited),
	)
}
