package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock. Time only moves when Advance is
// called. Safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	interval time.Duration // non-zero for tickers
	channel  chan time.Time
	callback func()
	stopped  bool
	fired    bool
}

// Fake returns a FakeClock set to initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NewTicker registers a ticker firing every d of fake time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		interval: d,
		channel:  channel,
	}
	c.waiters = append(c.waiters, waiter)

	return &Ticker{
		C: channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			waiter.stopped = true
		},
	}
}

// AfterFunc registers f to run during the Advance call that crosses d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stopFunc: func() bool { return false }}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		callback: f,
	}
	c.waiters = append(c.waiters, waiter)

	return &Timer{
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if waiter.stopped || waiter.fired {
				return false
			}
			waiter.stopped = true
			return true
		},
	}
}

// Set moves the clock to t without firing anything. Useful to seed a past
// or future instant before a scenario starts.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline falls inside the window, in deadline order. Tickers fire once
// per elapsed interval; ticks that do not fit the channel buffer are
// dropped. AfterFunc callbacks run synchronously in the caller.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)

	var callbacks []func()
	for {
		next := c.nextDue(target)
		if next == nil {
			break
		}
		c.current = next.deadline
		switch {
		case next.interval > 0:
			select {
			case next.channel <- c.current:
			default:
			}
			next.deadline = next.deadline.Add(next.interval)
		case next.callback != nil:
			next.fired = true
			callbacks = append(callbacks, next.callback)
		}
	}
	c.current = target
	c.compact()
	c.mu.Unlock()

	for _, callback := range callbacks {
		callback()
	}
}

// ActiveTickers reports how many tickers are registered and not stopped.
func (c *FakeClock) ActiveTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, waiter := range c.waiters {
		if waiter.interval > 0 && !waiter.stopped {
			count++
		}
	}
	return count
}

// nextDue returns the earliest live waiter due at or before target.
// Caller holds c.mu.
func (c *FakeClock) nextDue(target time.Time) *fakeWaiter {
	live := make([]*fakeWaiter, 0, len(c.waiters))
	for _, waiter := range c.waiters {
		if waiter.stopped || waiter.fired {
			continue
		}
		if waiter.deadline.After(target) {
			continue
		}
		live = append(live, waiter)
	}
	if len(live) == 0 {
		return nil
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].deadline.Before(live[j].deadline)
	})
	return live[0]
}

// compact drops stopped and fired waiters. Caller holds c.mu.
func (c *FakeClock) compact() {
	kept := c.waiters[:0]
	for _, waiter := range c.waiters {
		if waiter.stopped || waiter.fired {
			continue
		}
		kept = append(kept, waiter)
	}
	c.waiters = kept
}
