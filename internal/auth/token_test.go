package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/billdesk/internal/auth"
	"github.com/BradenHooton/billdesk/internal/clock"
	"github.com/BradenHooton/billdesk/internal/models"
)

const testSecret = "test-secret-at-least-16"

var testOperator = &models.Operator{ID: "op-1", Email: "ops@example.com", Name: "Ops", Role: "admin"}

func TestTokenIssuer_AccessTokenRoundTrip(t *testing.T) {
	clk := clock.Fake(time.Now())
	issuer := auth.NewTokenIssuer(testSecret, 15*time.Minute, time.Hour, clk)

	token, err := issuer.IssueAccessToken(testOperator, "device-1")
	require.NoError(t, err)

	claims, err := issuer.ValidateToken(token, auth.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.UserID)
	assert.Equal(t, "op-1", claims.Subject)
	assert.Equal(t, "ops@example.com", claims.Email)
	assert.Equal(t, "device-1", claims.DeviceID)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, clk.Now().Add(15*time.Minute).Unix(), claims.ExpiresAt.Unix())
}

func TestTokenIssuer_UniqueJTI(t *testing.T) {
	issuer := auth.NewTokenIssuer(testSecret, time.Minute, time.Hour, nil)

	first, err := issuer.IssueAccessToken(testOperator, "d")
	require.NoError(t, err)
	second, err := issuer.IssueAccessToken(testOperator, "d")
	require.NoError(t, err)

	c1, err := issuer.ValidateToken(first, auth.TokenTypeAccess)
	require.NoError(t, err)
	c2, err := issuer.ValidateToken(second, auth.TokenTypeAccess)
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)
}

func TestTokenIssuer_RejectsWrongType(t *testing.T) {
	issuer := auth.NewTokenIssuer(testSecret, time.Minute, time.Hour, nil)

	refresh, err := issuer.IssueRefreshToken(testOperator, "d")
	require.NoError(t, err)

	_, err = issuer.ValidateToken(refresh, auth.TokenTypeAccess)
	assert.Error(t, err)

	_, err = issuer.ValidateToken(refresh, auth.TokenTypeRefresh)
	assert.NoError(t, err)
}

func TestTokenIssuer_RejectsExpired(t *testing.T) {
	clk := clock.Fake(time.Now())
	issuer := auth.NewTokenIssuer(testSecret, time.Minute, time.Hour, clk)

	token, err := issuer.IssueAccessToken(testOperator, "d")
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = issuer.ValidateToken(token, auth.TokenTypeAccess)
	assert.Error(t, err)
}

func TestTokenIssuer_RejectsForeignSignature(t *testing.T) {
	issuer := auth.NewTokenIssuer(testSecret, time.Minute, time.Hour, nil)
	other := auth.NewTokenIssuer("another-secret-of-16", time.Minute, time.Hour, nil)

	token, err := other.IssueAccessToken(testOperator, "d")
	require.NoError(t, err)

	_, err = issuer.ValidateToken(token, auth.TokenTypeAccess)
	assert.Error(t, err)
}

func TestTokenIssuer_RejectsNoneAlgorithm(t *testing.T) {
	issuer := auth.NewTokenIssuer(testSecret, time.Minute, time.Hour, nil)

	claims := &models.TokenClaims{
		Type:   auth.TokenTypeAccess,
		UserID: "op-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = issuer.ValidateToken(unsigned, auth.TokenTypeAccess)
	assert.Error(t, err)
}
