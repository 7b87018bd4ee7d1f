package routes_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/billdesk/internal/apiclient"
	"github.com/BradenHooton/billdesk/internal/auth"
	"github.com/BradenHooton/billdesk/internal/authclient"
	"github.com/BradenHooton/billdesk/internal/clock"
	"github.com/BradenHooton/billdesk/internal/config"
	"github.com/BradenHooton/billdesk/internal/device"
	"github.com/BradenHooton/billdesk/internal/handlers"
	"github.com/BradenHooton/billdesk/internal/loginflow"
	"github.com/BradenHooton/billdesk/internal/middleware"
	"github.com/BradenHooton/billdesk/internal/models"
	"github.com/BradenHooton/billdesk/internal/routes"
	"github.com/BradenHooton/billdesk/internal/services"
	"github.com/BradenHooton/billdesk/internal/session"
	"github.com/BradenHooton/billdesk/internal/storage"
	"github.com/BradenHooton/billdesk/internal/tokenstore"
	pkglogger "github.com/BradenHooton/billdesk/pkg/logger"
)

const operatorEmail = "ops@example.com"

type backend struct {
	server *httptest.Server
	mailer *services.MockMailer
	issuer *auth.TokenIssuer
}

func newBackend(t *testing.T) *backend {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	operators, err := services.ParseOperators([]string{operatorEmail + ":Ops Team:admin"})
	require.NoError(t, err)

	mailer := &services.MockMailer{}
	issuer := auth.NewTokenIssuer("e2e-secret-of-16-chars", 15*time.Minute, time.Hour, nil)
	revocations := services.NewRevocationList(nil)

	challenges := services.NewChallengeService(
		operators,
		auth.NewCodeGenerator("billdesk"),
		mailer,
		issuer,
		revocations,
		services.NewDispatchLimiter(5, 10*time.Minute, nil),
		services.ChallengeConfig{TTL: 10 * time.Minute, MaxAttempts: 5},
		nil,
		logger,
		pkglogger.NewAuditLogger(logger),
	)

	router := chi.NewRouter()
	routes.RegisterRoutes(
		router,
		routes.Paths{Login: "/auth/login", VerifyOTP: "/auth/verify-otp", Logout: "/auth/logout"},
		handlers.NewAuthHandler(challenges, nil, nil),
		handlers.NewResourceHandler(handlers.DefaultFixtures()),
		issuer,
		revocations,
		middleware.RateLimitConfig{RequestsPerMinute: 100},
	)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &backend{server: server, mailer: mailer, issuer: issuer}
}

type console struct {
	store  *tokenstore.Store
	auth   *authclient.Client
	gate   *session.Gate
	lister *apiclient.Client
	flow   *loginflow.Controller
	logins chan models.UserProfile
}

func newConsole(t *testing.T, b *backend, resendCooldown time.Duration) *console {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.Real()
	kv := storage.NewMemory()

	store := tokenstore.New(kv, clk, logger)
	dev := device.LoadOrCreate(kv, config.DeviceConfig{Type: "desktop", Model: "test", Name: "ci", OS: "linux"}, clk, logger)
	apiCfg := config.APIConfig{
		BaseURL:        b.server.URL,
		LoginPath:      "/auth/login",
		VerifyOTPPath:  "/auth/verify-otp",
		LogoutPath:     "/auth/logout",
		RequestTimeout: 5 * time.Second,
	}
	authClient := authclient.New(nil, apiCfg, 10*time.Minute, store, dev, clk, logger)
	gate := session.NewGate(store, authClient, logger)

	c := &console{
		store:  store,
		auth:   authClient,
		gate:   gate,
		logins: make(chan models.UserProfile, 1),
	}
	c.lister = apiclient.New(&http.Client{Transport: &apiclient.BearerTransport{
		Tokens: store,
		OnUnauthorized: func(req *http.Request) {
			gate.OnLogout(context.WithoutCancel(req.Context()))
		},
	}}, b.server.URL, logger)
	c.flow = loginflow.NewController(authClient, store, loginflow.Options{
		Clock:          clk,
		Logger:         logger,
		ResendCooldown: resendCooldown,
		OnLogin: func(user models.UserProfile) {
			gate.OnLogin(user)
			c.logins <- user
		},
	})
	t.Cleanup(c.flow.Close)
	return c
}

func (c *console) signIn(t *testing.T, b *backend) models.UserProfile {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, c.flow.SubmitContact(ctx, operatorEmail))
	snapshot := c.flow.Snapshot()
	require.Equal(t, loginflow.StepOTP, snapshot.Step)
	assert.True(t, snapshot.HasCountdown)
	assert.InDelta(t, 600, snapshot.Remaining, 2)

	code, ok := b.mailer.LastCode(operatorEmail)
	require.True(t, ok, "backend did not send a code")

	require.NoError(t, c.flow.SetCode(ctx, code))

	select {
	case user := <-c.logins:
		return user
	case <-time.After(5 * time.Second):
		t.Fatal("login was not delivered")
		return nil
	}
}

func TestEndToEnd_LoginBrowseLogout(t *testing.T) {
	b := newBackend(t)
	c := newConsole(t, b, 0)
	ctx := context.Background()

	user := c.signIn(t, b)
	assert.Equal(t, "Ops Team", user.DisplayName())
	assert.True(t, c.gate.State().Authenticated)
	assert.True(t, c.store.IsAuthenticated())
	assert.Empty(t, c.store.TempToken())
	assert.NotEmpty(t, c.store.RefreshToken())

	for _, resource := range apiclient.Resources {
		items, err := c.lister.List(ctx, resource)
		require.NoError(t, err, resource)
		assert.NotEmpty(t, items, resource)
	}

	accessToken := c.store.AuthToken()
	c.gate.OnLogout(ctx)
	assert.False(t, c.gate.State().Authenticated)
	assert.False(t, c.store.IsAuthenticated())

	// The backend no longer honours the old token.
	req, err := http.NewRequest(http.MethodGet, b.server.URL+"/plans", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEndToEnd_WrongCodeShowsServerMessage(t *testing.T) {
	b := newBackend(t)
	c := newConsole(t, b, 0)
	ctx := context.Background()

	require.NoError(t, c.flow.SubmitContact(ctx, operatorEmail))
	code, _ := b.mailer.LastCode(operatorEmail)
	wrong := "00000"
	if code == wrong {
		wrong = "11111"
	}

	err := c.flow.SetCode(ctx, wrong)
	var serverErr *authclient.ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, http.StatusUnauthorized, serverErr.Status)
	assert.Equal(t, "Invalid code", loginflow.UserMessage(err))

	snapshot := c.flow.Snapshot()
	assert.Equal(t, loginflow.StepOTP, snapshot.Step)
	assert.Equal(t, "Invalid code", snapshot.Message)
	assert.Equal(t, loginflow.MessageError, snapshot.MessageKind)
	assert.False(t, c.store.IsAuthenticated())
}

func TestEndToEnd_ResendIssuesNewChallenge(t *testing.T) {
	b := newBackend(t)
	c := newConsole(t, b, 0)
	ctx := context.Background()

	require.NoError(t, c.flow.SubmitContact(ctx, operatorEmail))
	first := c.store.TempToken()
	firstCode, _ := b.mailer.LastCode(operatorEmail)

	require.NoError(t, c.flow.Resend(ctx))
	second := c.store.TempToken()
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
	assert.Len(t, b.mailer.Sent, 2)

	// The replaced challenge is gone on the backend.
	_, err := c.auth.VerifyOTP(ctx, firstCode, first)
	var serverErr *authclient.ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, http.StatusGone, serverErr.Status)
}

func TestEndToEnd_ResendCooldown(t *testing.T) {
	b := newBackend(t)
	c := newConsole(t, b, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, c.flow.SubmitContact(ctx, operatorEmail))
	first := c.store.TempToken()

	// The login itself used the cooldown, so an immediate resend waits.
	err := c.flow.Resend(ctx)
	assert.ErrorIs(t, err, loginflow.ErrResendThrottled)
	assert.Equal(t, first, c.store.TempToken())
	assert.Len(t, b.mailer.Sent, 1)
}

func TestEndToEnd_UnknownContactCannotSignIn(t *testing.T) {
	b := newBackend(t)
	c := newConsole(t, b, 0)
	ctx := context.Background()

	require.NoError(t, c.flow.SubmitContact(ctx, "stranger@example.com"))
	assert.Equal(t, loginflow.StepOTP, c.flow.Snapshot().Step)
	assert.Empty(t, b.mailer.Sent)

	err := c.flow.SetCode(ctx, "12345")
	assert.Error(t, err)
	assert.False(t, c.store.IsAuthenticated())
}

func TestEndToEnd_RevokedTokenEndsSession(t *testing.T) {
	b := newBackend(t)
	c := newConsole(t, b, 0)
	ctx := context.Background()

	c.signIn(t, b)

	// Another device revoking the token is indistinguishable from the
	// backend forgetting it: the next call ends the session.
	c.store.SetAuthToken("not-a-valid-token")
	_, err := c.lister.List(ctx, apiclient.Plans)

	var serverErr *authclient.ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, http.StatusUnauthorized, serverErr.Status)
	assert.False(t, c.gate.State().Authenticated)
	assert.False(t, c.store.IsAuthenticated())
}

func TestEndToEnd_RefreshTokenIsNotABearer(t *testing.T) {
	b := newBackend(t)
	c := newConsole(t, b, 0)

	c.signIn(t, b)

	req, err := http.NewRequest(http.MethodGet, b.server.URL+"/plans", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+c.store.RefreshToken())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRoutes_Health(t *testing.T) {
	b := newBackend(t)

	resp, err := http.Get(b.server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
