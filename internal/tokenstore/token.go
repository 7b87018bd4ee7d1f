package tokenstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of a structured access token the console reads.
// ExpiresAt is zero when the token carries no exp claim.
type Claims struct {
	Subject   string
	ID        string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Extra     jwt.MapClaims
}

// DecodeError explains why a token could not be decoded.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode token: %s: %v", e.Reason, e.Err)
	}
	return "decode token: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeStructuredToken reads the claims of a JWT without verifying its
// signature. The console is not the audience for signature checks; it
// only needs the expiry to decide whether a session is worth showing.
// Failures are always *DecodeError.
func DecodeStructuredToken(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, &DecodeError{Reason: "empty token"}
	}
	if strings.Count(raw, ".") != 2 {
		return Claims{}, &DecodeError{Reason: "not a structured token"}
	}

	mapClaims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, mapClaims); err != nil {
		return Claims{}, &DecodeError{Reason: "malformed token", Err: err}
	}

	claims := Claims{Extra: mapClaims}

	exp, err := mapClaims.GetExpirationTime()
	if err != nil {
		return Claims{}, &DecodeError{Reason: "invalid exp claim", Err: err}
	}
	if exp != nil {
		claims.ExpiresAt = exp.Time
	}

	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}

	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if jti, ok := mapClaims["jti"].(string); ok {
		claims.ID = jti
	}

	return claims, nil
}
