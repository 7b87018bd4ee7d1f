package services

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/BradenHooton/billdesk/internal/clock"
)

// DispatchLimiter caps how many codes a single contact can be sent. It
// complements the per-IP limit on the auth routes: an attacker rotating
// addresses still cannot flood one mailbox.
type DispatchLimiter struct {
	mu       sync.Mutex
	limiters map[string]*contactLimiter
	limit    rate.Limit
	burst    int
	window   time.Duration
	clock    clock.Clock
}

type contactLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewDispatchLimiter allows burst codes per contact, refilled evenly over window.
func NewDispatchLimiter(burst int, window time.Duration, clk clock.Clock) *DispatchLimiter {
	if clk == nil {
		clk = clock.Real()
	}
	limit := rate.Inf
	if burst > 0 && window > 0 {
		limit = rate.Every(window / time.Duration(burst))
	}
	return &DispatchLimiter{
		limiters: make(map[string]*contactLimiter),
		limit:    limit,
		burst:    burst,
		window:   window,
		clock:    clk,
	}
}

// Allow consumes one dispatch for contact. When refused it also returns
// how long until the next dispatch would be allowed.
func (d *DispatchLimiter) Allow(contact string) (bool, time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	entry, ok := d.limiters[contact]
	if !ok {
		entry = &contactLimiter{limiter: rate.NewLimiter(d.limit, d.burst)}
		d.limiters[contact] = entry
	}
	entry.lastSeen = now

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, d.window
	}
	if wait := reservation.DelayFrom(now); wait > 0 {
		reservation.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// CleanupIdle forgets contacts not seen for a full window.
func (d *DispatchLimiter) CleanupIdle() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.clock.Now().Add(-d.window)
	removed := 0
	for contact, entry := range d.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(d.limiters, contact)
			removed++
		}
	}
	return removed
}
