package loginflow

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/BradenHooton/billdesk/internal/authclient"
	"github.com/BradenHooton/billdesk/internal/models"
	"github.com/BradenHooton/billdesk/internal/validation"
)

var (
	ErrSessionExpired  = errors.New("login session expired")
	ErrCodeExpired     = errors.New("one-time code expired")
	ErrResendThrottled = errors.New("resend throttled")
	ErrBusy            = errors.New("a request is already in flight")
	ErrWrongStep       = errors.New("operation not available in the current step")
	ErrNoTempToken     = errors.New("login succeeded but no temp token was stored")
	ErrSuperseded      = errors.New("response dropped: flow moved on")
	ErrClosed          = errors.New("login flow closed")
)

// SessionExpiredError is returned when a verification is attempted without
// a temp token. It matches ErrSessionExpired.
type SessionExpiredError struct {
	Reason string
}

func (e *SessionExpiredError) Error() string {
	if e.Reason == "" {
		return ErrSessionExpired.Error()
	}
	return fmt.Sprintf("%s: %s", ErrSessionExpired, e.Reason)
}

func (e *SessionExpiredError) Is(target error) bool { return target == ErrSessionExpired }

// ThrottledError carries how long until a resend is allowed again.
type ThrottledError struct {
	Wait time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("%s: retry in %s", ErrResendThrottled, e.Wait.Round(time.Second))
}

func (e *ThrottledError) Is(target error) bool { return target == ErrResendThrottled }

// UserMessage turns an error from the flow into the sentence shown to the
// operator.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		validationErr *validation.ValidationError
		throttledErr  *ThrottledError
		networkErr    *authclient.NetworkError
		serverErr     *authclient.ServerError
		protocolErr   *authclient.ProtocolError
	)

	switch {
	case errors.As(err, &validationErr):
		switch validationErr.Field {
		case "contact":
			return "Please enter your email or phone number."
		case "otpCode":
			return fmt.Sprintf("Please enter the %d-digit code.", models.OTPLength)
		}
		return validationErr.Message
	case errors.Is(err, ErrSessionExpired):
		return "Your session has expired. Please log in again."
	case errors.Is(err, ErrCodeExpired):
		return "Your code has expired. Please request a new one."
	case errors.As(err, &throttledErr):
		return fmt.Sprintf("Please wait %d seconds before requesting a new code.", ceilSeconds(throttledErr.Wait))
	case errors.Is(err, ErrNoTempToken):
		return "Login did not start a verification session. Please try again."
	case errors.As(err, &networkErr):
		if networkErr.Hint == authclient.HintTimeout {
			return "The server took too long to respond. Please try again."
		}
		return "Unable to reach the server. Check your connection and try again."
	case errors.As(err, &serverErr):
		return serverErr.Message
	case errors.As(err, &protocolErr):
		return "Unexpected response from the server. Please try again."
	default:
		return err.Error()
	}
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Round(time.Millisecond).Seconds()))
}
