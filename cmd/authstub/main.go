package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/pflag"

	"github.com/BradenHooton/billdesk/internal/auth"
	"github.com/BradenHooton/billdesk/internal/background"
	"github.com/BradenHooton/billdesk/internal/clock"
	"github.com/BradenHooton/billdesk/internal/config"
	"github.com/BradenHooton/billdesk/internal/handlers"
	middlewareCustom "github.com/BradenHooton/billdesk/internal/middleware"
	"github.com/BradenHooton/billdesk/internal/routes"
	"github.com/BradenHooton/billdesk/internal/services"
	pkghttp "github.com/BradenHooton/billdesk/pkg/http"
	pkglogger "github.com/BradenHooton/billdesk/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	envFile := pflag.String("env-file", "", "dotenv file to load instead of ./.env")
	port := pflag.String("port", "", "listen port, overrides STUB_PORT")
	pflag.Parse()

	// Load configuration
	var cfg *config.Config
	var err error
	if *envFile != "" {
		cfg, err = config.LoadFile(*envFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := cfg.Stub.Validate(cfg.Console.Env); err != nil {
		logger.Error("invalid backend configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if *port != "" {
		cfg.Stub.Port = *port
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Console.Env),
		pkglogger.RedactedAttr("email_from", cfg.Email.FromAddress, cfg.Console.Env))

	operators, err := services.ParseOperators(cfg.Stub.Operators)
	if err != nil {
		logger.Error("invalid STUB_OPERATORS", slog.Any("error", err))
		os.Exit(1)
	}
	if operators.Len() == 0 {
		logger.Warn("no operators configured, every login will be treated as unknown")
	}

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize mailer", slog.Any("error", err))
		os.Exit(1)
	}

	clk := clock.Real()

	issuer := auth.NewTokenIssuer(
		cfg.Stub.JWTSecret,
		cfg.Stub.AccessTokenExpiry,
		cfg.Stub.RefreshTokenExpiry,
		clk,
	)
	revocations := services.NewRevocationList(clk)
	dispatches := services.NewDispatchLimiter(cfg.Stub.CodesPerContact, cfg.Stub.CodeWindow, clk)
	auditLogger := pkglogger.NewAuditLogger(logger)

	challengeService := services.NewChallengeService(
		operators,
		auth.NewCodeGenerator("billdesk"),
		mailer,
		issuer,
		revocations,
		dispatches,
		services.ChallengeConfig{
			TTL:         cfg.Stub.ChallengeTTL,
			MaxAttempts: cfg.Stub.MaxVerifyAttempts,
		},
		clk,
		logger,
		auditLogger,
	)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		Base:   150 * time.Millisecond,
		Jitter: 100 * time.Millisecond,
	})

	authHandler := handlers.NewAuthHandler(challengeService, pkghttp.NewIPConfig(cfg.Stub.TrustedProxies), timingDelay)
	resourceHandler := handlers.NewResourceHandler(handlers.DefaultFixtures())

	cleanupManager := background.NewCleanupManager([]background.CleanupTask{
		{Name: "challenges", Run: challengeService.CleanupExpired},
		{Name: "revocations", Run: func(context.Context) (int, error) { return revocations.CleanupExpired(), nil }},
		{Name: "dispatch_limits", Run: func(context.Context) (int, error) { return dispatches.CleanupIdle(), nil }},
	}, logger, cfg.Stub.CleanupInterval, clk)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Console.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Stub.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(
		router,
		routes.Paths{
			Login:     cfg.API.LoginPath,
			VerifyOTP: cfg.API.VerifyOTPPath,
			Logout:    cfg.API.LogoutPath,
		},
		authHandler,
		resourceHandler,
		issuer,
		revocations,
		middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Stub.AuthRequestsPerMin},
	)

	server := &http.Server{
		Addr:         ":" + cfg.Stub.Port,
		Handler:      router,
		ReadTimeout:  cfg.Stub.ReadTimeout,
		WriteTimeout: cfg.Stub.WriteTimeout,
		IdleTimeout:  cfg.Stub.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr), slog.Int("operators", operators.Len()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func newMailer(cfg *config.Config, logger *slog.Logger) (services.Mailer, error) {
	if cfg.Email.Provider == "ses" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return services.NewSESMailer(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	}
	if cfg.Console.Env == "production" {
		logger.Warn("EMAIL_PROVIDER=log in production writes codes to the log")
	}
	return services.NewLogMailer(logger), nil
}
