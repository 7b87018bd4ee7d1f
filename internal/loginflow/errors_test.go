package loginflow

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/billdesk/internal/authclient"
	"github.com/BradenHooton/billdesk/internal/validation"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"contact validation", validation.Contact(""), "Please enter your email or phone number."},
		{"code validation", validation.OTPCode("12"), "Please enter the 5-digit code."},
		{"session expired", &SessionExpiredError{}, "Your session has expired. Please log in again."},
		{"wrapped session expired", fmt.Errorf("verify: %w", ErrSessionExpired), "Your session has expired. Please log in again."},
		{"code expired", ErrCodeExpired, "Your code has expired. Please request a new one."},
		{"throttled", &ThrottledError{Wait: 12300 * time.Millisecond}, "Please wait 13 seconds before requesting a new code."},
		{"unreachable", &authclient.NetworkError{Op: "login", Hint: authclient.HintUnreachable, Err: errors.New("dial")}, "Unable to reach the server. Check your connection and try again."},
		{"timeout", &authclient.NetworkError{Op: "login", Hint: authclient.HintTimeout, Err: errors.New("deadline")}, "The server took too long to respond. Please try again."},
		{"server message", &authclient.ServerError{Status: 401, Message: "Invalid code"}, "Invalid code"},
		{"protocol", &authclient.ProtocolError{Op: "login", Reason: "no tempToken returned"}, "Unexpected response from the server. Please try again."},
		{"other", errors.New("disk full"), "disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestSessionExpiredError_MatchesSentinel(t *testing.T) {
	err := &SessionExpiredError{Reason: "no temp token"}

	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.NotErrorIs(t, err, ErrCodeExpired)
	assert.Contains(t, err.Error(), "no temp token")
}

func TestCountdown_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ticks := make(chan struct{}, 10)

	cd := startCountdown(h.clock, time.Second, func() { ticks <- struct{}{} })
	h.clock.Advance(time.Second)
	<-ticks

	cd.Stop()
	cd.Stop()
	assert.Zero(t, h.clock.ActiveTickers())

	h.clock.Advance(5 * time.Second)
	select {
	case <-ticks:
		t.Fatal("tick delivered after Stop")
	case <-time.After(20 * time.Millisecond):
	}
}
