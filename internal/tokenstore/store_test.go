package tokenstore

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/billdesk/internal/clock"
	"github.com/BradenHooton/billdesk/internal/models"
	"github.com/BradenHooton/billdesk/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	c := clock.Fake(now)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(storage.NewMemory(), c, logger), c
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return token
}

func TestTempToken_RemainingSecondsCountsDown(t *testing.T) {
	store, c := newTestStore(t)

	store.SetTempToken("T1", now.Add(10*time.Minute))
	assert.Equal(t, "T1", store.TempToken())

	remaining, ok := store.TempTokenRemainingSeconds()
	require.True(t, ok)
	assert.Equal(t, 600, remaining)

	c.Advance(1500 * time.Millisecond)
	remaining, _ = store.TempTokenRemainingSeconds()
	assert.Equal(t, 598, remaining, "remaining seconds are floored")
}

func TestTempToken_PastExpiryIsZeroNeverNegative(t *testing.T) {
	store, c := newTestStore(t)

	for _, past := range []time.Duration{-time.Millisecond, -time.Second, -24 * time.Hour} {
		store.SetTempToken("T1", now.Add(past))
		remaining, ok := store.TempTokenRemainingSeconds()
		require.True(t, ok)
		assert.Equal(t, 0, remaining, "expiry %v in the past", past)
	}

	store.SetTempToken("T1", now.Add(time.Second))
	c.Advance(time.Hour)
	remaining, _ := store.TempTokenRemainingSeconds()
	assert.Equal(t, 0, remaining)
}

func TestTempToken_NoExpiryClearsStaleExpiry(t *testing.T) {
	store, _ := newTestStore(t)

	store.SetTempToken("T1", now.Add(10*time.Minute))
	store.SetTempToken("T2", time.Time{})

	assert.Equal(t, "T2", store.TempToken())
	_, ok := store.TempTokenRemainingSeconds()
	assert.False(t, ok, "no stale expiry may leak from the previous token")
}

func TestTempToken_ClearRemovesTokenAndExpiry(t *testing.T) {
	store, _ := newTestStore(t)

	store.SetTempToken("T1", now.Add(time.Minute))
	store.ClearTempToken()

	assert.Empty(t, store.TempToken())
	_, ok := store.TempTokenRemainingSeconds()
	assert.False(t, ok)
}

func TestAuthAndRefreshTokens(t *testing.T) {
	store, _ := newTestStore(t)

	store.SetAuthToken("A1")
	store.SetRefreshToken("R1")
	assert.Equal(t, "A1", store.AuthToken())
	assert.Equal(t, "R1", store.RefreshToken())

	store.ClearAuthToken()
	store.ClearRefreshToken()
	assert.Empty(t, store.AuthToken())
	assert.Empty(t, store.RefreshToken())
}

func TestUserProfile_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	profile := models.UserProfile{
		"id":    "op-1",
		"email": "a@b.com",
		"roles": []any{"admin", "support"},
		"prefs": map[string]any{"theme": "dark"},
	}
	store.SetUserProfile(profile)

	got, ok := store.UserProfile()
	require.True(t, ok)
	assert.Equal(t, profile, got)

	store.SetUserProfile(nil)
	got, ok = store.UserProfile()
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestUserProfile_TypedLoad(t *testing.T) {
	store, _ := newTestStore(t)

	type operator struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	store.SetUserProfile(operator{ID: "op-1", Email: "a@b.com"})

	got, ok := LoadUserProfile[operator](store)
	require.True(t, ok)
	assert.Equal(t, operator{ID: "op-1", Email: "a@b.com"}, got)
}

func TestUserProfile_UnserializableStoresEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	store.SetUserProfile(map[string]any{"ch": make(chan int)})

	_, ok := store.UserProfile()
	assert.False(t, ok)
}

func TestUserProfile_CorruptValueReadsAsAbsent(t *testing.T) {
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(KeyUserProfile, "{broken"))
	store := New(kv, clock.Fake(now), slog.New(slog.NewTextHandler(io.Discard, nil)))

	profile, ok := store.UserProfile()
	assert.False(t, ok)
	assert.Nil(t, profile)
}

func TestIsAuthenticated(t *testing.T) {
	tests := []struct {
		name  string
		token func(t *testing.T) string
		want  bool
	}{
		{"absent token", func(t *testing.T) string { return "" }, false},
		{"future expiry", func(t *testing.T) string {
			return signedToken(t, jwt.MapClaims{"sub": "op-1", "exp": now.Add(time.Hour).Unix()})
		}, true},
		{"past expiry", func(t *testing.T) string {
			return signedToken(t, jwt.MapClaims{"sub": "op-1", "exp": now.Add(-time.Second).Unix()})
		}, false},
		{"no expiry claim", func(t *testing.T) string {
			return signedToken(t, jwt.MapClaims{"sub": "op-1"})
		}, true},
		{"malformed token", func(t *testing.T) string { return "abc.def.ghi" }, false},
		{"opaque token", func(t *testing.T) string { return "opaque-bearer" }, false},
		{"non-numeric exp", func(t *testing.T) string {
			return signedToken(t, jwt.MapClaims{"exp": "tomorrow"})
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t)
			if token := tt.token(t); token != "" {
				store.SetAuthToken(token)
			}
			assert.Equal(t, tt.want, store.IsAuthenticated())
		})
	}
}

func TestIsAuthenticated_ExpiresWithClock(t *testing.T) {
	store, c := newTestStore(t)
	store.SetAuthToken(signedToken(t, jwt.MapClaims{"exp": now.Add(time.Minute).Unix()}))

	assert.True(t, store.IsAuthenticated())
	c.Advance(time.Minute)
	assert.False(t, store.IsAuthenticated())
}

func TestClearAllTokens(t *testing.T) {
	store, _ := newTestStore(t)

	store.SetTempToken("T1", now.Add(time.Minute))
	store.SetAuthToken("A1")
	store.SetRefreshToken("R1")
	store.SetUserProfile(models.UserProfile{"id": "op-1"})

	store.ClearAllTokens()
	store.ClearAllTokens()

	assert.Empty(t, store.AuthToken())
	assert.Empty(t, store.TempToken())
	assert.Empty(t, store.RefreshToken())
	profile, ok := store.UserProfile()
	assert.False(t, ok)
	assert.Nil(t, profile)
	_, ok = store.TempTokenRemainingSeconds()
	assert.False(t, ok)
}

type brokenKV struct{}

func (brokenKV) Get(string) (string, bool, error) { return "", false, storage.ErrUnavailable }
func (brokenKV) Set(string, string) error         { return storage.ErrUnavailable }
func (brokenKV) Delete(...string) error           { return errors.New("read-only") }

func TestStore_UnavailableStorageDegradesToUnauthenticated(t *testing.T) {
	store := New(brokenKV{}, clock.Fake(now), slog.New(slog.NewTextHandler(io.Discard, nil)))

	store.SetAuthToken(signedToken(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}))
	store.ClearAllTokens()

	assert.False(t, store.IsAuthenticated())
	assert.Empty(t, store.TempToken())
	_, ok := store.UserProfile()
	assert.False(t, ok)
}
