package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/BradenHooton/billdesk/internal/clock"
	"github.com/BradenHooton/billdesk/internal/models"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenIssuer signs and validates the access and refresh tokens handed out
// after a successful OTP verification.
type TokenIssuer struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	clock         clock.Clock
}

// NewTokenIssuer creates a new TokenIssuer. A nil clock means wall time.
func NewTokenIssuer(secret string, accessExpiry, refreshExpiry time.Duration, clk clock.Clock) *TokenIssuer {
	if clk == nil {
		clk = clock.Real()
	}
	return &TokenIssuer{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		clock:         clk,
	}
}

// IssueAccessToken signs a short-lived token bound to the operator and device.
func (ti *TokenIssuer) IssueAccessToken(operator *models.Operator, deviceID string) (string, error) {
	return ti.issue(TokenTypeAccess, operator, deviceID, ti.accessExpiry)
}

// IssueRefreshToken signs a long-lived token. The console stores it but
// never presents it; the API rejects it as a bearer credential.
func (ti *TokenIssuer) IssueRefreshToken(operator *models.Operator, deviceID string) (string, error) {
	return ti.issue(TokenTypeRefresh, operator, deviceID, ti.refreshExpiry)
}

func (ti *TokenIssuer) issue(tokenType string, operator *models.Operator, deviceID string, ttl time.Duration) (string, error) {
	now := ti.clock.Now()
	claims := &models.TokenClaims{
		Type:     tokenType,
		UserID:   operator.ID,
		Email:    operator.Email,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   operator.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// ValidateToken parses tokenString and checks signature, expiry and type.
func (ti *TokenIssuer) ValidateToken(tokenString, expectedType string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ti.secret, nil
	}, jwt.WithTimeFunc(ti.clock.Now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Type != expectedType {
		return nil, fmt.Errorf("invalid token type: expected %s, got %s", expectedType, claims.Type)
	}
	if claims.ID == "" {
		return nil, errors.New("token has no jti")
	}
	return claims, nil
}
