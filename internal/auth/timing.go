package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds the uniform delay applied to failed verifications.
type TimingConfig struct {
	Base           time.Duration
	Jitter         time.Duration // random extra in [0, Jitter)
	DelayOnSuccess bool
}

// TimingDelay pads failed verifications so that a wrong code, an unknown
// temp token and a device mismatch take about the same time.
type TimingDelay struct {
	config TimingConfig
	sleep  func(time.Duration)
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config, sleep: time.Sleep}
}

// cryptoRandDuration returns a secure random duration in [0, max).
func cryptoRandDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(buf[:]) % uint64(max))
}

// Target returns the total duration an attempt should take, or 0 when no
// delay applies.
func (td *TimingDelay) Target(success bool) time.Duration {
	if td == nil || (success && !td.config.DelayOnSuccess) {
		return 0
	}
	return td.config.Base + cryptoRandDuration(td.config.Jitter)
}

// WaitFrom sleeps until at least Target(success) has elapsed since start.
func (td *TimingDelay) WaitFrom(start time.Time, success bool) {
	target := td.Target(success)
	if target <= 0 {
		return
	}
	if remaining := target - time.Since(start); remaining > 0 {
		td.sleep(remaining)
	}
}
