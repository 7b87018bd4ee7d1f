// Package tokenstore owns every persisted credential of the console: the
// short-lived OTP session token and its expiry, the access and refresh
// tokens, and the cached user profile.
//
// All operations are synchronous and never fail from the caller's point
// of view. A storage error is logged and read as "nothing stored", which
// degrades the console to unauthenticated.
package tokenstore

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/BradenHooton/billdesk/internal/clock"
	"github.com/BradenHooton/billdesk/internal/models"
	"github.com/BradenHooton/billdesk/internal/storage"
)

// Persisted keys.
const (
	KeyTempToken          = "temp_token"
	KeyTempTokenExpiresAt = "temp_token_expires_at" // epoch milliseconds
	KeyAuthToken          = "auth_token"
	KeyRefreshToken       = "refresh_token"
	KeyUserProfile        = "user_profile"
)

// Store is the token store.
type Store struct {
	kv     storage.KV
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Store over kv.
func New(kv storage.KV, clk clock.Clock, logger *slog.Logger) *Store {
	return &Store{kv: kv, clock: clk, logger: logger}
}

// SetTempToken overwrites the temp token. A zero expiresAt clears any
// previously stored expiry so no stale countdown survives.
func (s *Store) SetTempToken(token string, expiresAt time.Time) {
	s.set(KeyTempToken, token)
	if expiresAt.IsZero() {
		s.del(KeyTempTokenExpiresAt)
		return
	}
	s.set(KeyTempTokenExpiresAt, strconv.FormatInt(expiresAt.UnixMilli(), 10))
}

// TempToken returns the temp token, or "" when none is stored.
func (s *Store) TempToken() string { return s.get(KeyTempToken) }

// ClearTempToken removes the temp token together with its expiry.
func (s *Store) ClearTempToken() {
	s.del(KeyTempToken, KeyTempTokenExpiresAt)
}

// TempTokenExpiresAt returns the recorded expiry, if any.
func (s *Store) TempTokenExpiresAt() (time.Time, bool) {
	raw := s.get(KeyTempTokenExpiresAt)
	if raw == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.logger.Warn("ignoring malformed temp token expiry", slog.String("value", raw))
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// TempTokenRemainingSeconds reports the whole seconds left before the temp
// token expires. The boolean is false when no expiry is recorded. The
// count is floored and never negative.
func (s *Store) TempTokenRemainingSeconds() (int, bool) {
	expiresAt, ok := s.TempTokenExpiresAt()
	if !ok {
		return 0, false
	}
	return RemainingSeconds(expiresAt, s.clock.Now()), true
}

// RemainingSeconds is max(0, floor((deadline-now)/1s)).
func RemainingSeconds(deadline, now time.Time) int {
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}

// SetAuthToken stores the access token.
func (s *Store) SetAuthToken(token string) { s.set(KeyAuthToken, token) }

// AuthToken returns the access token, "" when absent.
func (s *Store) AuthToken() string { return s.get(KeyAuthToken) }

// ClearAuthToken removes the access token.
func (s *Store) ClearAuthToken() { s.del(KeyAuthToken) }

// SetRefreshToken stores the refresh token.
func (s *Store) SetRefreshToken(token string) { s.set(KeyRefreshToken, token) }

// RefreshToken returns the refresh token, "" when absent.
func (s *Store) RefreshToken() string { return s.get(KeyRefreshToken) }

// ClearRefreshToken removes the refresh token.
func (s *Store) ClearRefreshToken() { s.del(KeyRefreshToken) }

// SetUserProfile caches profile as JSON. nil clears it. A value that cannot
// be marshaled is stored as empty instead of failing the caller.
func (s *Store) SetUserProfile(profile any) {
	if isNil(profile) {
		s.del(KeyUserProfile)
		return
	}
	data, err := json.Marshal(profile)
	if err != nil {
		s.logger.Warn("user profile is not serializable, storing empty value", slog.Any("error", err))
		s.set(KeyUserProfile, "")
		return
	}
	s.set(KeyUserProfile, string(data))
}

// UserProfile returns the cached profile. Missing, empty or undecodable
// values all report false.
func (s *Store) UserProfile() (models.UserProfile, bool) {
	profile, ok := LoadUserProfile[models.UserProfile](s)
	if !ok || profile == nil {
		return nil, false
	}
	return profile, true
}

// LoadUserProfile decodes the cached profile into T.
func LoadUserProfile[T any](s *Store) (T, bool) {
	var out T
	raw := s.get(KeyUserProfile)
	if raw == "" || raw == "null" {
		return out, false
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.logger.Warn("cached user profile is unreadable", slog.Any("error", err))
		var zero T
		return zero, false
	}
	return out, true
}

// IsAuthenticated reports whether an access token is stored and, when the
// token decodes as a structured token carrying an expiry claim, that the
// expiry is still ahead. Any decode failure counts as unauthenticated.
func (s *Store) IsAuthenticated() bool {
	token := s.AuthToken()
	if token == "" {
		return false
	}
	claims, err := DecodeStructuredToken(token)
	if err != nil {
		s.logger.Debug("stored access token is not decodable", slog.Any("error", err))
		return false
	}
	if claims.ExpiresAt.IsZero() {
		return true
	}
	return claims.ExpiresAt.After(s.clock.Now())
}

// ClearAllTokens removes every credential and the cached profile. The
// device id is kept. Safe to call repeatedly.
func (s *Store) ClearAllTokens() {
	s.del(KeyTempToken, KeyTempTokenExpiresAt, KeyAuthToken, KeyRefreshToken, KeyUserProfile)
}

func (s *Store) get(key string) string {
	value, ok, err := s.kv.Get(key)
	if err != nil {
		s.logger.Error("token store read failed", slog.String("key", key), slog.Any("error", err))
		return ""
	}
	if !ok {
		return ""
	}
	return value
}

func (s *Store) set(key, value string) {
	if err := s.kv.Set(key, value); err != nil {
		s.logger.Error("token store write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func (s *Store) del(keys ...string) {
	if err := s.kv.Delete(keys...); err != nil {
		s.logger.Error("token store delete failed", slog.Any("keys", keys), slog.Any("error", err))
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	if profile, ok := v.(models.UserProfile); ok {
		return profile == nil
	}
	if profile, ok := v.(*models.UserProfile); ok {
		return profile == nil
	}
	return false
}
