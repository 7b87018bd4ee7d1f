package services

import (
	"sync"
	"time"

	"github.com/BradenHooton/billdesk/internal/clock"
)

// RevocationList remembers logged-out token ids until the tokens would
// have expired anyway.
type RevocationList struct {
	mu      sync.Mutex
	entries map[string]time.Time
	clock   clock.Clock
}

func NewRevocationList(clk clock.Clock) *RevocationList {
	if clk == nil {
		clk = clock.Real()
	}
	return &RevocationList{entries: make(map[string]time.Time), clock: clk}
}

// Revoke marks jti as revoked until expiresAt.
func (l *RevocationList) Revoke(jti string, expiresAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[jti] = expiresAt
}

// IsRevoked implements auth.RevocationChecker.
func (l *RevocationList) IsRevoked(jti string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[jti]
	return ok
}

// CleanupExpired drops entries whose tokens have expired.
func (l *RevocationList) CleanupExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	removed := 0
	for jti, expiresAt := range l.entries {
		if !now.Before(expiresAt) {
			delete(l.entries, jti)
			removed++
		}
	}
	return removed
}
