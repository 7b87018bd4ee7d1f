// Package authclient talks to the backend's authentication endpoints and
// records what they return in the token store.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/billdesk/internal/clock"
	"github.com/BradenHooton/billdesk/internal/config"
	"github.com/BradenHooton/billdesk/internal/device"
	"github.com/BradenHooton/billdesk/internal/models"
	"github.com/BradenHooton/billdesk/internal/tokenstore"
	pkglogger "github.com/BradenHooton/billdesk/pkg/logger"
)

const maxResponseBytes = 1 << 20

// DefaultTempTokenTTL applies when the backend does not say when the temp
// token expires.
const DefaultTempTokenTTL = 10 * time.Minute

// Endpoints are the paths of the three auth calls, relative to the base URL.
type Endpoints struct {
	Login     string
	VerifyOTP string
	Logout    string
}

// Client performs the auth calls.
type Client struct {
	httpClient *http.Client
	baseURL    string
	endpoints  Endpoints
	store      *tokenstore.Store
	device     *device.Descriptor
	clock      clock.Clock
	defaultTTL time.Duration
	logger     *slog.Logger
}

// New creates a Client from the API configuration. httpClient may be nil,
// in which case one with cfg.RequestTimeout is created.
func New(
	httpClient *http.Client,
	cfg config.APIConfig,
	defaultTTL time.Duration,
	store *tokenstore.Store,
	dev *device.Descriptor,
	clk clock.Clock,
	logger *slog.Logger,
) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTempTokenTTL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		endpoints: Endpoints{
			Login:     cfg.LoginPath,
			VerifyOTP: cfg.VerifyOTPPath,
			Logout:    cfg.LogoutPath,
		},
		store:      store,
		device:     dev,
		clock:      clk,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// HTTPClient returns the underlying HTTP client.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Login requests a one-time code for contact and stores the returned temp
// token with its expiry.
func (c *Client) Login(ctx context.Context, contact string) (*models.LoginResult, error) {
	req := models.LoginRequest{
		Contact:    contact,
		DeviceInfo: c.device.LoginInfo(),
	}

	var resp models.LoginResponse
	if err := c.post(ctx, "login", c.endpoints.Login, "", req, &resp); err != nil {
		c.logger.Warn("login request failed",
			slog.String("contact", pkglogger.SanitizedContact(contact)),
			slog.Any("error", err))
		return nil, err
	}
	if resp.TempToken == "" {
		return nil, &ProtocolError{Op: "login", Reason: "no tempToken returned"}
	}

	expiresAt := c.tempTokenExpiry(resp)
	c.store.SetTempToken(resp.TempToken, expiresAt)

	c.logger.Info("one-time code requested",
		slog.String("contact", pkglogger.SanitizedContact(contact)),
		slog.Time("expires_at", expiresAt))

	return &models.LoginResult{
		TempToken: resp.TempToken,
		Message:   resp.Message,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyOTP exchanges the code and temp token for access credentials and
// stores them together with the user profile.
func (c *Client) VerifyOTP(ctx context.Context, code, tempToken string) (*models.VerifyResult, error) {
	req := models.VerifyOTPRequest{
		OTPCode:    code,
		TempToken:  tempToken,
		DeviceInfo: c.device.VerifyInfo(),
	}

	var resp models.VerifyOTPResponse
	if err := c.post(ctx, "verify otp", c.endpoints.VerifyOTP, "", req, &resp); err != nil {
		c.logger.Warn("otp verification failed", slog.Any("error", err))
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &ProtocolError{Op: "verify otp", Reason: "no accessToken returned"}
	}

	c.store.SetAuthToken(resp.AccessToken)
	if resp.RefreshToken != "" {
		c.store.SetRefreshToken(resp.RefreshToken)
	} else {
		c.store.ClearRefreshToken()
	}
	c.store.SetUserProfile(resp.User)

	c.logger.Info("operator signed in",
		slog.String("user", resp.User.String("id")),
		slog.String("token", pkglogger.TokenFingerprint(resp.AccessToken)))

	return &models.VerifyResult{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
	}, nil
}

// Logout notifies the backend and clears every local credential. The local
// clear always happens; backend failures are only logged.
func (c *Client) Logout(ctx context.Context) {
	defer c.store.ClearAllTokens()

	token := c.store.AuthToken()
	if token == "" {
		return
	}
	if err := c.post(ctx, "logout", c.endpoints.Logout, token, struct{}{}, nil); err != nil {
		c.logger.Warn("backend logout failed, clearing local session anyway", slog.Any("error", err))
		return
	}
	c.logger.Info("operator signed out")
}

func (c *Client) tempTokenExpiry(resp models.LoginResponse) time.Time {
	if resp.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
			return t
		}
		c.logger.Warn("ignoring malformed expiresAt", slog.String("value", resp.ExpiresAt))
	}
	if resp.ExpiresIn > 0 {
		return c.clock.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return c.clock.Now().Add(c.defaultTTL)
}

func (c *Client) post(ctx context.Context, op, path, bearer string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Hint: classifyTransportError(err), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NetworkError{Op: op, Hint: classifyTransportError(err), Err: err}
	}

	return DecodeResponse(op, resp.StatusCode, data, out)
}

// DecodeResponse maps a raw response onto the error taxonomy and, on 2xx,
// decodes the (possibly enveloped) payload into out. out may be nil.
func DecodeResponse(op string, status int, data []byte, out any) error {
	if status < 200 || status > 299 {
		return &ServerError{
			Op:      op,
			Status:  status,
			Message: serverMessage(status, data),
			Body:    string(data),
		}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	raw, err := unwrapEnvelope(data)
	if err != nil {
		return &ProtocolError{Op: op, Reason: "malformed response", Err: err}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProtocolError{Op: op, Reason: "malformed response", Err: err}
	}
	return nil
}

// unwrapEnvelope returns the value under "data" when the body is an object
// of the form {"data": ...}, and the body itself otherwise.
func unwrapEnvelope(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("invalid JSON body")
		}
		return trimmed, nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, err
	}
	if data, ok := envelope["data"]; ok && len(bytes.TrimSpace(data)) > 0 && string(bytes.TrimSpace(data)) != "null" {
		return data, nil
	}
	return trimmed, nil
}
