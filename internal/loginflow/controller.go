// Package loginflow drives the two-step operator login: a contact is
// submitted, a one-time code is sent, and the code is verified before the
// temp token expires.
//
// The Controller is safe for concurrent use. Network calls are made
// without holding its lock; a response that arrives after the flow moved
// on (Back, Resend, Close) is dropped.
package loginflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/BradenHooton/billdesk/internal/authclient"
	"github.com/BradenHooton/billdesk/internal/clock"
	"github.com/BradenHooton/billdesk/internal/models"
	"github.com/BradenHooton/billdesk/internal/tokenstore"
	"github.com/BradenHooton/billdesk/internal/validation"
	pkglogger "github.com/BradenHooton/billdesk/pkg/logger"
)

const (
	// FallbackTTL is the countdown shown when the backend failed with a 5xx
	// but may still have sent a code.
	FallbackTTL = 600 * time.Second

	// DefaultResendCooldown is the minimum spacing between two codes.
	DefaultResendCooldown = 30 * time.Second

	tickInterval = time.Second
)

// User-facing messages set by the flow itself.
const (
	MessageCodeSent        = "A verification code has been sent to %s."
	MessageCodeResent      = "A new verification code has been sent."
	MessageMaybeSent       = "The server had a problem, but your code may have been sent. Check your inbox and enter it below."
	MessageLoginSuccessful = "Login successful."
)

// Step is the stage the flow is in.
type Step int

const (
	StepEmail Step = iota
	StepOTP
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepEmail:
		return "email"
	case StepOTP:
		return "otp"
	case StepDone:
		return "done"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// MessageKind colours the message shown to the operator.
type MessageKind int

const (
	MessageNone MessageKind = iota
	MessageInfo
	MessageError
	MessageSuccess
)

// Snapshot is the observable state of the flow. Version increases with
// every change so listeners can discard snapshots delivered out of order.
type Snapshot struct {
	Version      uint64
	Step         Step
	Contact      string
	Code         string
	Remaining    int
	HasCountdown bool
	Message      string
	MessageKind  MessageKind
	Loading      bool
	Verifying    bool
	CanVerify    bool
	CanResend    bool
	ResendWait   int
}

// Expired reports whether the countdown has reached zero.
func (s Snapshot) Expired() bool { return s.HasCountdown && s.Remaining == 0 }

// AuthClient is the part of the auth client the flow needs.
type AuthClient interface {
	Login(ctx context.Context, contact string) (*models.LoginResult, error)
	VerifyOTP(ctx context.Context, code, tempToken string) (*models.VerifyResult, error)
}

// TokenStore is the part of the token store the flow reads.
type TokenStore interface {
	TempToken() string
	TempTokenExpiresAt() (time.Time, bool)
	ClearTempToken()
}

// Options configures a Controller. Zero values pick the defaults, except
// ResendCooldown where zero disables throttling.
type Options struct {
	Clock          clock.Clock
	Logger         *slog.Logger
	ResendCooldown time.Duration
	FallbackTTL    time.Duration
	// SuccessDelay holds OnLogin back so the success message can be seen.
	SuccessDelay time.Duration
	OnLogin      func(user models.UserProfile)
	OnChange     func(Snapshot)
}

// Controller is the login state machine.
type Controller struct {
	client AuthClient
	store  TokenStore
	clock  clock.Clock
	logger *slog.Logger

	onLogin      func(models.UserProfile)
	onChange     func(Snapshot)
	fallbackTTL  time.Duration
	successDelay time.Duration
	resend       *rate.Limiter

	mu               sync.Mutex
	version          uint64
	step             Step
	contact          string
	code             string
	message          string
	kind             MessageKind
	loading          bool
	verifying        bool
	fallbackDeadline time.Time
	countdown        *countdown
	countdownSeq     uint64
	lastRemaining    int
	expiryShown      bool
	attempt          uint64
	closed           bool
}

// NewController creates a flow in StepEmail.
func NewController(client AuthClient, store TokenStore, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FallbackTTL <= 0 {
		opts.FallbackTTL = FallbackTTL
	}

	limit := rate.Inf
	if opts.ResendCooldown > 0 {
		limit = rate.Every(opts.ResendCooldown)
	}

	return &Controller{
		client:       client,
		store:        store,
		clock:        opts.Clock,
		logger:       opts.Logger,
		onLogin:      opts.OnLogin,
		onChange:     opts.OnChange,
		fallbackTTL:  opts.FallbackTTL,
		successDelay: opts.SuccessDelay,
		resend:       rate.NewLimiter(limit, 1),
		step:         StepEmail,
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// SubmitContact sends contact to the backend and, on success, moves to
// StepOTP. A 5xx failure also moves to StepOTP with a fallback countdown,
// since the code may have gone out before the server failed.
func (c *Controller) SubmitContact(ctx context.Context, contact string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.step != StepEmail {
		c.mu.Unlock()
		return ErrWrongStep
	}
	if c.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	if err := validation.Contact(contact); err != nil {
		c.setMessageLocked(UserMessage(err), MessageError)
		c.unlockAndEmit()
		return err
	}

	contact = strings.TrimSpace(contact)
	c.contact = contact
	c.loading = true
	c.clearMessageLocked()
	c.attempt++
	attempt := c.attempt
	c.unlockAndEmit()

	c.logger.Debug("submitting contact", slog.String("contact", pkglogger.SanitizedContact(contact)))
	result, err := c.client.Login(ctx, contact)

	c.mu.Lock()
	if stale := c.staleLocked(attempt); stale != nil {
		c.mu.Unlock()
		return stale
	}
	c.loading = false

	if err != nil {
		var serverErr *authclient.ServerError
		if errors.As(err, &serverErr) && serverErr.Unavailable() {
			c.logger.Warn("login failed server-side, continuing to code entry", slog.Int("status", serverErr.Status))
			c.fallbackDeadline = c.clock.Now().Add(c.fallbackTTL)
			c.enterOTPLocked()
			c.setMessageLocked(MessageMaybeSent, MessageInfo)
			c.unlockAndEmit()
			return err
		}
		c.setMessageLocked(UserMessage(err), MessageError)
		c.unlockAndEmit()
		return err
	}

	// The stored token must be the one this login issued, not one kept
	// from an earlier challenge.
	if stored := c.store.TempToken(); stored == "" || stored != result.TempToken {
		c.setMessageLocked(UserMessage(ErrNoTempToken), MessageError)
		c.unlockAndEmit()
		return ErrNoTempToken
	}

	c.fallbackDeadline = time.Time{}
	c.resend.AllowN(c.clock.Now(), 1)
	c.enterOTPLocked()
	message := result.Message
	if message == "" {
		message = fmt.Sprintf(MessageCodeSent, c.contact)
	}
	c.setMessageLocked(message, MessageInfo)
	c.unlockAndEmit()
	return nil
}

// SetCode records the code input, keeping digits only. Completing the
// code triggers one verification; its error is returned.
func (c *Controller) SetCode(ctx context.Context, input string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.step != StepOTP {
		c.mu.Unlock()
		return ErrWrongStep
	}
	code := validation.SanitizeCode(input)
	completed := len(code) == models.OTPLength && code != c.code
	c.code = code
	c.unlockAndEmit()

	if !completed {
		return nil
	}
	return c.Verify(ctx)
}

// Verify submits the current code.
func (c *Controller) Verify(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.step != StepOTP {
		c.mu.Unlock()
		return ErrWrongStep
	}
	if c.verifying || c.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	if err := validation.OTPCode(c.code); err != nil {
		c.setMessageLocked(UserMessage(err), MessageError)
		c.unlockAndEmit()
		return err
	}
	if remaining, ok := c.remainingLocked(); ok && remaining == 0 {
		c.setMessageLocked(UserMessage(ErrCodeExpired), MessageError)
		c.expiryShown = true
		c.unlockAndEmit()
		return ErrCodeExpired
	}

	tempToken := c.store.TempToken()
	if tempToken == "" {
		err := &SessionExpiredError{Reason: "no temp token"}
		c.leaveOTPLocked()
		c.setMessageLocked(UserMessage(err), MessageError)
		c.unlockAndEmit()
		return err
	}

	code := c.code
	c.verifying = true
	c.clearMessageLocked()
	attempt := c.attempt
	c.unlockAndEmit()

	result, err := c.client.VerifyOTP(ctx, code, tempToken)

	c.mu.Lock()
	if stale := c.staleLocked(attempt); stale != nil {
		c.mu.Unlock()
		return stale
	}
	c.verifying = false

	if err != nil {
		var serverErr *authclient.ServerError
		if errors.As(err, &serverErr) && serverErr.ChallengeGone() {
			c.store.ClearTempToken()
			c.leaveOTPLocked()
		}
		c.code = ""
		c.setMessageLocked(UserMessage(err), MessageError)
		c.unlockAndEmit()
		return err
	}

	c.store.ClearTempToken()
	c.stopCountdownLocked()
	c.step = StepDone
	c.code = ""
	c.fallbackDeadline = time.Time{}
	c.setMessageLocked(MessageLoginSuccessful, MessageSuccess)
	c.unlockAndEmit()

	c.deliverLogin(result.User)
	return nil
}

// Resend clears the current temp token and asks for a new code. On
// failure the countdown keeps showing the previous deadline.
func (c *Controller) Resend(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.step != StepOTP {
		c.mu.Unlock()
		return ErrWrongStep
	}
	if c.loading || c.verifying {
		c.mu.Unlock()
		return ErrBusy
	}

	now := c.clock.Now()
	reservation := c.resend.ReserveN(now, 1)
	if wait := reservation.DelayFrom(now); wait > 0 {
		reservation.CancelAt(now)
		err := &ThrottledError{Wait: wait}
		c.setMessageLocked(UserMessage(err), MessageError)
		c.unlockAndEmit()
		return err
	}

	if deadline, ok := c.deadlineLocked(); ok {
		c.fallbackDeadline = deadline
	}
	c.store.ClearTempToken()
	c.loading = true
	c.clearMessageLocked()
	c.attempt++
	attempt := c.attempt
	contact := c.contact
	c.unlockAndEmit()

	result, err := c.client.Login(ctx, contact)

	c.mu.Lock()
	if stale := c.staleLocked(attempt); stale != nil {
		c.mu.Unlock()
		return stale
	}
	c.loading = false

	if err != nil {
		c.setMessageLocked(UserMessage(err), MessageError)
		c.unlockAndEmit()
		return err
	}
	if c.store.TempToken() == "" {
		c.setMessageLocked(UserMessage(ErrNoTempToken), MessageError)
		c.unlockAndEmit()
		return ErrNoTempToken
	}

	c.fallbackDeadline = time.Time{}
	c.code = ""
	c.stopCountdownLocked()
	c.enterOTPLocked()
	message := result.Message
	if message == "" {
		message = MessageCodeResent
	}
	c.setMessageLocked(message, MessageInfo)
	c.unlockAndEmit()
	return nil
}

// Back returns to contact entry. The temp token is kept. A verification
// in flight must finish first.
func (c *Controller) Back() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.step != StepOTP {
		c.mu.Unlock()
		return ErrWrongStep
	}
	if c.verifying {
		c.mu.Unlock()
		return ErrBusy
	}
	c.attempt++
	c.loading = false
	c.leaveOTPLocked()
	c.clearMessageLocked()
	c.unlockAndEmit()
	return nil
}

// Close stops the countdown and drops every response still in flight.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.attempt++
	c.stopCountdownLocked()
}

func (c *Controller) staleLocked(attempt uint64) error {
	if c.closed {
		return ErrClosed
	}
	if attempt != c.attempt {
		return ErrSuperseded
	}
	return nil
}

func (c *Controller) enterOTPLocked() {
	c.step = StepOTP
	c.code = ""
	c.expiryShown = false
	if c.countdown == nil {
		c.countdownSeq++
		seq := c.countdownSeq
		c.countdown = startCountdown(c.clock, tickInterval, func() { c.tick(seq) })
	}
	c.lastRemaining, _ = c.remainingLocked()
}

func (c *Controller) leaveOTPLocked() {
	c.stopCountdownLocked()
	c.step = StepEmail
	c.code = ""
	c.fallbackDeadline = time.Time{}
}

func (c *Controller) stopCountdownLocked() {
	if c.countdown != nil {
		c.countdown.Stop()
		c.countdown = nil
	}
}

// tick runs on the countdown goroutine.
func (c *Controller) tick(seq uint64) {
	c.mu.Lock()
	if c.closed || c.countdown == nil || seq != c.countdownSeq || c.step != StepOTP {
		c.mu.Unlock()
		return
	}
	remaining, ok := c.remainingLocked()
	if !ok {
		c.mu.Unlock()
		return
	}
	changed := remaining != c.lastRemaining
	c.lastRemaining = remaining
	if remaining == 0 && !c.expiryShown && !c.verifying {
		c.expiryShown = true
		c.setMessageLocked(UserMessage(ErrCodeExpired), MessageError)
		changed = true
	}
	if !changed {
		c.mu.Unlock()
		return
	}
	c.unlockAndEmit()
}

// deadlineLocked is the expiry the countdown is measured against: the
// stored temp token expiry, else the fallback deadline.
func (c *Controller) deadlineLocked() (time.Time, bool) {
	if expiresAt, ok := c.store.TempTokenExpiresAt(); ok {
		return expiresAt, true
	}
	if !c.fallbackDeadline.IsZero() {
		return c.fallbackDeadline, true
	}
	return time.Time{}, false
}

func (c *Controller) remainingLocked() (int, bool) {
	deadline, ok := c.deadlineLocked()
	if !ok {
		return 0, false
	}
	return tokenstore.RemainingSeconds(deadline, c.clock.Now()), true
}

func (c *Controller) setMessageLocked(message string, kind MessageKind) {
	c.message = message
	c.kind = kind
}

func (c *Controller) clearMessageLocked() {
	c.message = ""
	c.kind = MessageNone
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Version:     c.version,
		Step:        c.step,
		Contact:     c.contact,
		Code:        c.code,
		Message:     c.message,
		MessageKind: c.kind,
		Loading:     c.loading,
		Verifying:   c.verifying,
	}
	if c.step != StepOTP {
		return s
	}

	s.Remaining, s.HasCountdown = c.remainingLocked()
	busy := c.loading || c.verifying
	s.CanVerify = len(c.code) == models.OTPLength && !busy && !s.Expired()

	if tokens := c.resend.TokensAt(c.clock.Now()); tokens < 1 {
		s.ResendWait = ceilSeconds(time.Duration((1 - tokens) / float64(c.resend.Limit()) * float64(time.Second)))
	}
	s.CanResend = !busy && s.ResendWait == 0
	return s
}

// unlockAndEmit bumps the version, releases the lock and notifies the
// listener with the resulting snapshot.
func (c *Controller) unlockAndEmit() {
	c.version++
	snapshot := c.snapshotLocked()
	onChange := c.onChange
	c.mu.Unlock()
	if onChange != nil {
		onChange(snapshot)
	}
}

func (c *Controller) deliverLogin(user models.UserProfile) {
	if c.onLogin == nil {
		return
	}
	if c.successDelay <= 0 {
		c.onLogin(user)
		return
	}
	c.clock.AfterFunc(c.successDelay, func() {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			c.onLogin(user)
		}
	})
}
