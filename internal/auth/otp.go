package auth

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/BradenHooton/billdesk/internal/models"
)

// CodeGenerator produces the one-time codes mailed to operators. Each code
// is derived from a fresh random TOTP secret that is thrown away, so codes
// are unpredictable and never reusable across challenges.
type CodeGenerator struct {
	issuer string
	digits otp.Digits
}

// NewCodeGenerator creates a generator for models.OTPLength-digit codes.
func NewCodeGenerator(issuer string) *CodeGenerator {
	return &CodeGenerator{
		issuer: issuer,
		digits: otp.Digits(models.OTPLength),
	}
}

// Generate returns a new code for accountName at instant now.
func (g *CodeGenerator) Generate(accountName string, now time.Time) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      g.issuer,
		AccountName: accountName,
		SecretSize:  20,
		Digits:      g.digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate code secret: %w", err)
	}

	code, err := totp.GenerateCodeCustom(key.Secret(), now, totp.ValidateOpts{
		Period:    30,
		Digits:    g.digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return code, nil
}
