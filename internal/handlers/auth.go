package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/BradenHooton/billdesk/internal/auth"
	"github.com/BradenHooton/billdesk/internal/models"
	"github.com/BradenHooton/billdesk/internal/validation"
	pkghttp "github.com/BradenHooton/billdesk/pkg/http"
)

const maxBodyBytes = 1 << 16

// ChallengeServiceInterface defines the OTP login operations behind the auth routes.
type ChallengeServiceInterface interface {
	StartLogin(ctx context.Context, contact, deviceID, ipAddress string) (*models.LoginResponse, error)
	VerifyCode(ctx context.Context, tempToken, code, deviceID, ipAddress string) (*models.VerifyOTPResponse, error)
	Logout(ctx context.Context, claims *models.TokenClaims) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  ChallengeServiceInterface
	ipConfig *pkghttp.IPConfig
	timing   *auth.TimingDelay
}

// NewAuthHandler creates a new AuthHandler. timing may be nil.
func NewAuthHandler(service ChallengeServiceInterface, ipConfig *pkghttp.IPConfig, timing *auth.TimingDelay) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
		timing:   timing,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := validation.ValidateRequest(dst); err != nil {
		var ve *validation.ValidationError
		if errors.As(err, &ve) {
			pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "validation_failed", ve.Message, ve.Field)
			return false
		}
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// Login starts an OTP challenge
// @Summary Start OTP login
// @Accept json
// @Param request body models.LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} models.LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	resp, err := h.service.StartLogin(r.Context(), req.Contact, req.DeviceInfo.DeviceID, ipAddress)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrRateLimitExceeded):
			pkghttp.WriteTooManyRequests(w, "Too many codes requested. Please try again later.")
		default:
			pkghttp.WriteInternalError(w, "Unable to send a verification code right now")
		}
		return
	}

	pkghttp.WriteData(w, http.StatusOK, resp)
}

// VerifyOTP exchanges a temp token and code for access and refresh tokens
// @Summary Verify OTP code
// @Accept json
// @Param request body models.VerifyOTPRequest true "Verify request"
// @Produce json
// @Success 200 {object} models.VerifyOTPResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /auth/verify-otp [post]
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req models.VerifyOTPRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	resp, err := h.service.VerifyCode(r.Context(), req.TempToken, req.OTPCode, req.DeviceInfo.DeviceID, ipAddress)
	h.timing.WaitFrom(start, err == nil)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrChallengeExpired):
			pkghttp.WriteGone(w, "Verification session expired. Please log in again.")
		case errors.Is(err, models.ErrInvalidCode):
			pkghttp.WriteUnauthorized(w, "Invalid code")
		case errors.Is(err, models.ErrTooManyAttempts):
			pkghttp.WriteUnauthorized(w, "Invalid code. Too many attempts, please request a new code.")
		case errors.Is(err, models.ErrDeviceMismatch):
			pkghttp.WriteUnauthorized(w, "This code was requested from another device")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Logout revokes the presented access token
// @Summary Operator logout
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	if err := h.service.Logout(r.Context(), claims); err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			pkghttp.WriteUnauthorized(w, "Unauthorized")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
