package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/billdesk/internal/auth"
	"github.com/BradenHooton/billdesk/internal/models"
	pkghttp "github.com/BradenHooton/billdesk/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds operator claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, jti string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Type:   auth.TokenTypeAccess,
	}
	claims.ID = jti
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockChallengeService implements ChallengeServiceInterface for testing
type MockChallengeService struct {
	StartLoginFunc func(ctx context.Context, contact, deviceID, ipAddress string) (*models.LoginResponse, error)
	VerifyCodeFunc func(ctx context.Context, tempToken, code, deviceID, ipAddress string) (*models.VerifyOTPResponse, error)
	LogoutFunc     func(ctx context.Context, claims *models.TokenClaims) error
}

func (m *MockChallengeService) StartLogin(ctx context.Context, contact, deviceID, ipAddress string) (*models.LoginResponse, error) {
	if m.StartLoginFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.StartLoginFunc(ctx, contact, deviceID, ipAddress)
}

func (m *MockChallengeService) VerifyCode(ctx context.Context, tempToken, code, deviceID, ipAddress string) (*models.VerifyOTPResponse, error) {
	if m.VerifyCodeFunc == nil {
		return nil, models.ErrInvalidCode
	}
	return m.VerifyCodeFunc(ctx, tempToken, code, deviceID, ipAddress)
}

func (m *MockChallengeService) Logout(ctx context.Context, claims *models.TokenClaims) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, claims)
}
