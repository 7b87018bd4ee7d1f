package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/billdesk/internal/auth"
	"github.com/BradenHooton/billdesk/internal/clock"
	"github.com/BradenHooton/billdesk/internal/models"
	pkgauth "github.com/BradenHooton/billdesk/pkg/auth"
	pkglogger "github.com/BradenHooton/billdesk/pkg/logger"
)

// ChallengeConfig tunes the OTP challenge lifecycle.
type ChallengeConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

// ChallengeService issues and verifies OTP challenges for the development
// backend. Challenges live in memory and are lost on restart.
type ChallengeService struct {
	mu         sync.Mutex
	challenges map[string]*models.Challenge

	operators   *OperatorDirectory
	codes       *auth.CodeGenerator
	mailer      Mailer
	issuer      *auth.TokenIssuer
	revocations *RevocationList
	dispatches  *DispatchLimiter
	config      ChallengeConfig
	clock       clock.Clock
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewChallengeService creates a new ChallengeService
func NewChallengeService(
	operators *OperatorDirectory,
	codes *auth.CodeGenerator,
	mailer Mailer,
	issuer *auth.TokenIssuer,
	revocations *RevocationList,
	dispatches *DispatchLimiter,
	config ChallengeConfig,
	clk clock.Clock,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *ChallengeService {
	if clk == nil {
		clk = clock.Real()
	}
	return &ChallengeService{
		challenges:  make(map[string]*models.Challenge),
		operators:   operators,
		codes:       codes,
		mailer:      mailer,
		issuer:      issuer,
		revocations: revocations,
		dispatches:  dispatches,
		config:      config,
		clock:       clk,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// StartLogin opens a challenge for contact bound to deviceID and delivers
// the code. Unknown contacts get an identical response with no delivery.
// Any earlier challenge for the same contact is replaced.
func (s *ChallengeService) StartLogin(ctx context.Context, contact, deviceID, ipAddress string) (*models.LoginResponse, error) {
	contact = NormalizeContact(contact)
	now := s.clock.Now()

	if s.dispatches != nil {
		if ok, wait := s.dispatches.Allow(contact); !ok {
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_started",
				Contact:       contact,
				DeviceID:      deviceID,
				IPAddress:     ipAddress,
				FailureReason: "dispatch_limited",
				Metadata:      map[string]string{"retry_after": wait.Round(time.Second).String()},
			})
			return nil, fmt.Errorf("code dispatch for contact throttled: %w", models.ErrRateLimitExceeded)
		}
	}

	operator, known := s.operators.Lookup(contact)

	code, err := s.codes.Generate(contact, now)
	if err != nil {
		s.logger.Error("failed to generate verification code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !known {
		// Unknown contacts still cost a hash so timing matches.
		code, err = randomDigits(models.OTPLength)
		if err != nil {
			return nil, models.ErrInternalServer
		}
	}

	hash, err := pkgauth.HashCode(code)
	if err != nil {
		s.logger.Error("failed to hash verification code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	challenge := &models.Challenge{
		ID:        uuid.New().String(),
		Contact:   contact,
		DeviceID:  deviceID,
		CodeHash:  hash,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.TTL),
	}
	if known {
		challenge.OperatorID = operator.ID

		if err := s.mailer.SendCode(ctx, contact, code, challenge.ExpiresAt); err != nil {
			s.logger.Error("failed to deliver verification code", slog.Any("error", err))
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_started",
				UserID:        operator.ID,
				Contact:       contact,
				DeviceID:      deviceID,
				IPAddress:     ipAddress,
				FailureReason: "delivery_failed",
			})
			return nil, fmt.Errorf("failed to deliver code: %w", models.ErrInternalServer)
		}
	}

	s.mu.Lock()
	for id, existing := range s.challenges {
		if existing.Contact == contact {
			delete(s.challenges, id)
		}
	}
	s.challenges[challenge.ID] = challenge
	s.mu.Unlock()

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_started",
		UserID:    challenge.OperatorID,
		Contact:   contact,
		DeviceID:  deviceID,
		IPAddress: ipAddress,
		Success:   true,
		Metadata:  map[string]string{"known_contact": fmt.Sprint(known)},
	})

	return &models.LoginResponse{
		TempToken: challenge.ID,
		Message:   "If this contact is registered, a verification code has been sent.",
		ExpiresAt: challenge.ExpiresAt.UTC().Format(time.RFC3339),
		ExpiresIn: int(s.config.TTL / time.Second),
	}, nil
}

// VerifyCode checks code against the challenge behind tempToken and, on
// success, consumes the challenge and issues the long-lived tokens.
func (s *ChallengeService) VerifyCode(ctx context.Context, tempToken, code, deviceID, ipAddress string) (*models.VerifyOTPResponse, error) {
	code = pkgauth.NormalizeCode(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[tempToken]
	if !ok {
		s.auditVerify(nil, deviceID, ipAddress, "unknown_temp_token")
		return nil, models.ErrChallengeExpired
	}
	if challenge.IsExpired(s.clock.Now()) {
		delete(s.challenges, tempToken)
		s.auditVerify(challenge, deviceID, ipAddress, "challenge_expired")
		return nil, models.ErrChallengeExpired
	}
	if challenge.DeviceID != deviceID {
		s.auditVerify(challenge, deviceID, ipAddress, "device_mismatch")
		return nil, models.ErrDeviceMismatch
	}

	if err := pkgauth.CompareCode(challenge.CodeHash, code); err != nil || challenge.OperatorID == "" {
		challenge.Attempts++
		if challenge.Attempts >= s.config.MaxAttempts {
			delete(s.challenges, tempToken)
			s.auditVerify(challenge, deviceID, ipAddress, "too_many_attempts")
			return nil, models.ErrTooManyAttempts
		}
		s.auditVerify(challenge, deviceID, ipAddress, "invalid_code")
		return nil, models.ErrInvalidCode
	}

	operator, ok := s.operators.Lookup(challenge.Contact)
	if !ok {
		delete(s.challenges, tempToken)
		return nil, models.ErrInvalidCode
	}

	accessToken, err := s.issuer.IssueAccessToken(operator, deviceID)
	if err != nil {
		s.logger.Error("failed to issue access token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	refreshToken, err := s.issuer.IssueRefreshToken(operator, deviceID)
	if err != nil {
		s.logger.Error("failed to issue refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	delete(s.challenges, tempToken)

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "otp_verified",
		UserID:    operator.ID,
		Contact:   challenge.Contact,
		DeviceID:  deviceID,
		IPAddress: ipAddress,
		Success:   true,
	})

	return &models.VerifyOTPResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         operator.Profile(),
	}, nil
}

// Logout revokes the presented access token.
func (s *ChallengeService) Logout(ctx context.Context, claims *models.TokenClaims) error {
	if claims == nil || claims.ID == "" {
		return models.ErrUnauthorized
	}

	expiresAt := s.clock.Now()
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	s.revocations.Revoke(claims.ID, expiresAt)

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "logout",
		UserID:    claims.UserID,
		DeviceID:  claims.DeviceID,
		Success:   true,
	})
	return nil
}

// CleanupExpired drops expired challenges. Implements background.Cleaner.
func (s *ChallengeService) CleanupExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for id, challenge := range s.challenges {
		if challenge.IsExpired(now) {
			delete(s.challenges, id)
			removed++
		}
	}
	return removed, nil
}

// Pending reports how many challenges are open.
func (s *ChallengeService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

// auditVerify logs a failed verification. Caller holds s.mu.
func (s *ChallengeService) auditVerify(challenge *models.Challenge, deviceID, ipAddress, reason string) {
	event := pkglogger.AuditEvent{
		EventType:     "otp_verified",
		DeviceID:      deviceID,
		IPAddress:     ipAddress,
		FailureReason: reason,
	}
	if challenge != nil {
		event.UserID = challenge.OperatorID
		event.Contact = challenge.Contact
		event.Metadata = map[string]string{"attempts": fmt.Sprint(challenge.Attempts)}
	}
	s.auditLogger.LogAuthAttempt(event)
}

func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", errors.New("failed to read random digits")
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits), nil
}
