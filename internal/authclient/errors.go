package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Hints attached to a NetworkError.
const (
	HintUnreachable = "server unreachable (connection refused, DNS, proxy/CORS)"
	HintTimeout     = "request timed out"
)

// NetworkError is a failure to get any HTTP response at all.
type NetworkError struct {
	Op   string
	Hint string
	Err  error
}

func (e *NetworkError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: network error: %s: %v", e.Op, e.Hint, e.Err)
	}
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response. Message is the backend's own
// explanation when it sent one.
type ServerError struct {
	Op      string
	Status  int
	Message string
	Body    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Op, e.Message, e.Status)
}

// Unavailable reports whether the failure is on the server side (5xx).
func (e *ServerError) Unavailable() bool { return e.Status >= 500 }

// ChallengeGone reports whether the backend no longer knows the temp token.
func (e *ServerError) ChallengeGone() bool { return e.Status == http.StatusGone }

// ProtocolError is a 2xx response missing what the contract requires.
type ProtocolError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// classifyTransportError picks the hint shown to the operator.
func classifyTransportError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return HintTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return HintTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return HintUnreachable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Op == "proxyconnect") {
		return HintUnreachable
	}
	return ""
}

// serverMessage extracts the backend's explanation from an error body.
// Both {message, error} and {data: {message, error}} shapes are read.
func serverMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if raw, err := unwrapEnvelope(body); err == nil {
		if json.Unmarshal(raw, &payload) == nil {
			if payload.Message != "" {
				return payload.Message
			}
			if payload.Error != "" {
				return payload.Error
			}
		}
	}
	return fmt.Sprintf("server error (%d)", status)
}
