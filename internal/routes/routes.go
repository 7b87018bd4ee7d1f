package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/billdesk/internal/auth"
	"github.com/BradenHooton/billdesk/internal/handlers"
	"github.com/BradenHooton/billdesk/internal/middleware"
)

// Paths mirrors the configurable auth endpoint paths.
type Paths struct {
	Login     string
	VerifyOTP string
	Logout    string
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	paths Paths,
	authHandler *handlers.AuthHandler,
	resourceHandler *handlers.ResourceHandler,
	issuer *auth.TokenIssuer,
	revocations auth.RevocationChecker,
	authLimit middleware.RateLimitConfig,
) {
	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(authLimit))
		r.Post(paths.Login, authHandler.Login)
		r.Post(paths.VerifyOTP, authHandler.VerifyOTP)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	// Protected routes - bearer token required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireBearer(issuer, revocations))
		r.Use(middleware.RateLimitByOperator(middleware.DefaultResourceRateLimit()))

		r.Post(paths.Logout, authHandler.Logout)
		r.Get("/{resource}", resourceHandler.List)
	})
}
