package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Rate limiting errors
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// OTP challenge errors
	ErrChallengeExpired = errors.New("verification code has expired")
	ErrInvalidCode      = errors.New("invalid verification code")
	ErrDeviceMismatch   = errors.New("device does not match the login request")
	ErrTooManyAttempts  = errors.New("too many verification attempts")
	ErrTokenRevoked     = errors.New("token has been revoked")
)
