package loginflow

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/billdesk/internal/clock"
	"github.com/BradenHooton/billdesk/internal/models"
	"github.com/BradenHooton/billdesk/internal/storage"
	"github.com/BradenHooton/billdesk/internal/tokenstore"
)

var now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type verifyCall struct {
	Code      string
	TempToken string
}

// MockAuthClient implements AuthClient for testing
type MockAuthClient struct {
	LoginFunc     func(ctx context.Context, contact string) (*models.LoginResult, error)
	VerifyOTPFunc func(ctx context.Context, code, tempToken string) (*models.VerifyResult, error)

	mu          sync.Mutex
	loginCalls  []string
	verifyCalls []verifyCall
}

func (m *MockAuthClient) Login(ctx context.Context, contact string) (*models.LoginResult, error) {
	m.mu.Lock()
	m.loginCalls = append(m.loginCalls, contact)
	m.mu.Unlock()
	return m.LoginFunc(ctx, contact)
}

func (m *MockAuthClient) VerifyOTP(ctx context.Context, code, tempToken string) (*models.VerifyResult, error) {
	m.mu.Lock()
	m.verifyCalls = append(m.verifyCalls, verifyCall{Code: code, TempToken: tempToken})
	m.mu.Unlock()
	return m.VerifyOTPFunc(ctx, code, tempToken)
}

func (m *MockAuthClient) LoginCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.loginCalls...)
}

func (m *MockAuthClient) VerifyCalls() []verifyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]verifyCall(nil), m.verifyCalls...)
}

type harness struct {
	controller *Controller
	auth       *MockAuthClient
	store      *tokenstore.Store
	clock      *clock.FakeClock

	mu        sync.Mutex
	snapshots []Snapshot
	logins    []models.UserProfile
}

// newHarness wires a controller whose backend issues temp token "T1"
// valid for ten minutes and accepts any code.
func newHarness(t *testing.T, configure func(*Options)) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := clock.Fake(now)
	store := tokenstore.New(storage.NewMemory(), c, logger)

	h := &harness{store: store, clock: c}
	h.auth = &MockAuthClient{
		LoginFunc: func(ctx context.Context, contact string) (*models.LoginResult, error) {
			return h.issue("T1", 10*time.Minute), nil
		},
		VerifyOTPFunc: func(ctx context.Context, code, tempToken string) (*models.VerifyResult, error) {
			return &models.VerifyResult{AccessToken: "A1", User: models.UserProfile{"id": "op-1"}}, nil
		},
	}

	opts := Options{
		Clock:  c,
		Logger: logger,
		OnChange: func(s Snapshot) {
			h.mu.Lock()
			h.snapshots = append(h.snapshots, s)
			h.mu.Unlock()
		},
		OnLogin: func(user models.UserProfile) {
			h.mu.Lock()
			h.logins = append(h.logins, user)
			h.mu.Unlock()
		},
	}
	if configure != nil {
		configure(&opts)
	}
	h.controller = NewController(h.auth, store, opts)
	t.Cleanup(h.controller.Close)
	return h
}

// issue stores a temp token the way the auth client does.
func (h *harness) issue(token string, ttl time.Duration) *models.LoginResult {
	expiresAt := h.clock.Now().Add(ttl)
	h.store.SetTempToken(token, expiresAt)
	return &models.LoginResult{TempToken: token, ExpiresAt: expiresAt}
}

func (h *harness) Logins() []models.UserProfile {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.UserProfile(nil), h.logins...)
}

func (h *harness) LastSnapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	var last Snapshot
	for _, s := range h.snapshots {
		if s.Version >= last.Version {
			last = s
		}
	}
	return last
}

func (h *harness) Snapshots() []Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Snapshot(nil), h.snapshots...)
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	if err := h.controller.SubmitContact(context.Background(), "a@b.com"); err != nil {
		t.Fatalf("SubmitContact() = %v, want nil", err)
	}
}
