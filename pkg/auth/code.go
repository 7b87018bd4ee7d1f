package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// CodeHashCost is lower than a password cost: codes live for minutes and
// are attempt-limited, while verification sits on the login hot path.
const CodeHashCost = 10

// HashCode returns the bcrypt hash stored for a one-time code.
func HashCode(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("code cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(code), CodeHashCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash code: %w", err)
	}
	return string(hashed), nil
}

// CompareCode checks a submitted code against its stored hash.
func CompareCode(hashedCode, code string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedCode), []byte(code))
}

// NormalizeCode strips whitespace and separators users paste along with
// a code ("123 45", "123-45").
func NormalizeCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
