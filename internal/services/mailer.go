package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/billdesk/pkg/logger"
)

// Mailer delivers one-time codes to operators.
type Mailer interface {
	SendCode(ctx context.Context, contact, code string, expiresAt time.Time) error
}

// LogMailer writes codes to the log. Development only.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendCode(_ context.Context, contact, code string, expiresAt time.Time) error {
	m.logger.Info("verification code issued",
		slog.String("contact", pkglogger.SanitizedContact(contact)),
		slog.String("code", code),
		slog.Time("expires_at", expiresAt))
	return nil
}

// SESEmailSender is the subset of the SES client used by SESMailer.
type SESEmailSender interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailer sends codes by email through AWS SES.
type SESMailer struct {
	client      SESEmailSender
	fromAddress string
	logger      *slog.Logger
}

// NewSESMailer loads the default AWS configuration for region.
func NewSESMailer(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESMailer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESMailerWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

func NewSESMailerWithClient(client SESEmailSender, fromAddress string, logger *slog.Logger) *SESMailer {
	return &SESMailer{client: client, fromAddress: fromAddress, logger: logger}
}

// SendCode emails the code. Phone contacts cannot be served by SES.
func (m *SESMailer) SendCode(ctx context.Context, contact, code string, expiresAt time.Time) error {
	if !strings.Contains(contact, "@") {
		return fmt.Errorf("ses mailer cannot deliver to %s", pkglogger.SanitizedContact(contact))
	}

	minutes := int(time.Until(expiresAt).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	textBody := fmt.Sprintf(`Your billdesk sign-in code is %s

It expires in %d minutes. If you did not try to sign in, you can ignore this email.

This is an automated message. Please do not reply to this email.
`, code, minutes)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <p>Your billdesk sign-in code is</p>
    <p style="font-size: 28px; letter-spacing: 6px;"><strong>%s</strong></p>
    <p>It expires in %d minutes. If you did not try to sign in, you can ignore this email.</p>
    <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply to this email.</p>
</body>
</html>
`, code, minutes)

	input := &ses.SendEmailInput{
		Source: aws.String(m.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{contact},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String("Your billdesk sign-in code")},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		m.logger.Error("failed to send verification code via SES",
			slog.String("contact", pkglogger.SanitizedContact(contact)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("verification code sent",
		slog.String("contact", pkglogger.SanitizedContact(contact)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}
