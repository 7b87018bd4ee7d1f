package logger

import (
	"log/slog"
	"strconv"
	"strings"
)

// SanitizedContact masks a login contact for logging. Email addresses go
// through SanitizedEmail; anything else is treated as a phone number and
// keeps only its last two digits.
func SanitizedContact(contact string) string {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return "[empty]"
	}
	if strings.Contains(contact, "@") {
		return SanitizedEmail(contact)
	}
	if len(contact) <= 2 {
		return strings.Repeat("*", len(contact))
	}
	return strings.Repeat("*", len(contact)-2) + contact[len(contact)-2:]
}

// SanitizedEmail masks an email address for logging (e.g., "u***@e***.com")
func SanitizedEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[invalid-email]"
	}

	username := parts[0]
	domain := parts[1]

	// Mask username: keep first char, mask rest
	if len(username) > 1 {
		username = string(username[0]) + strings.Repeat("*", len(username)-1)
	}

	// Mask domain: keep TLD, mask the rest
	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return username + "@" + domain
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

// TokenFingerprint identifies a credential in logs without revealing it:
// the last six characters prefixed with its length.
func TokenFingerprint(token string) string {
	if token == "" {
		return "[none]"
	}
	tail := token
	if len(tail) > 6 {
		tail = tail[len(tail)-6:]
	}
	return "len=" + strconv.Itoa(len(token)) + ",..." + tail
}

// SanitizeQueryString checks if query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := map[string]bool{
		"token":     true,
		"temptoken": true,
		"otp":       true,
		"code":      true,
		"contact":   true,
		"email":     true,
		"phone":     true,
		"secret":    true,
		"auth":      true,
	}

	query := strings.ToLower(rawQuery)
	for param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
