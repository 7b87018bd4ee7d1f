package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OTPLength is the number of digits in a one-time code.
const OTPLength = 5

// DeviceInfo identifies the client device on login and verification.
// Login sends DeviceModel, verification sends DeviceName.
type DeviceInfo struct {
	DeviceID    string `json:"deviceId" validate:"required"`
	DeviceType  string `json:"deviceType"`
	DeviceModel string `json:"deviceModel,omitempty"`
	DeviceName  string `json:"deviceName,omitempty"`
	OSName      string `json:"osName"`
}

// LoginRequest is the body of the contact submission.
type LoginRequest struct {
	Contact    string     `json:"contact" validate:"required,max=254"`
	DeviceInfo DeviceInfo `json:"deviceInfo"`
}

// LoginResponse is the payload returned once a code has been dispatched.
// ExpiresAt (RFC3339) and ExpiresIn (seconds) are both optional.
type LoginResponse struct {
	TempToken string `json:"tempToken"`
	Message   string `json:"message,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

// VerifyOTPRequest is the body of the code submission.
type VerifyOTPRequest struct {
	OTPCode    string     `json:"otpCode" validate:"required,len=5,numeric"`
	TempToken  string     `json:"tempToken" validate:"required"`
	DeviceInfo DeviceInfo `json:"deviceInfo"`
}

// VerifyOTPResponse carries the long-lived credentials.
type VerifyOTPResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         UserProfile `json:"user"`
}

// LoginResult is what the auth client hands back after a successful login.
type LoginResult struct {
	TempToken string
	Message   string
	ExpiresAt time.Time
}

// VerifyResult is what the auth client hands back after a successful verification.
type VerifyResult struct {
	AccessToken  string
	RefreshToken string
	User         UserProfile
}

// TokenClaims are the claims the development backend signs into access
// and refresh tokens.
type TokenClaims struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Email    string `json:"email,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	jwt.RegisteredClaims
}

// Challenge is a pending OTP verification on the development backend.
// ID doubles as the temp token handed to the client.
type Challenge struct {
	ID         string
	Contact    string
	OperatorID string // empty for unknown contacts
	DeviceID   string
	CodeHash   string // Bcrypt hash of the code
	Attempts   int
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// IsExpired reports whether the challenge can no longer be verified.
func (c *Challenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
