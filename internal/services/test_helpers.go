package services

import (
	"context"
	"sync"
	"time"
)

// MockMailer implements Mailer for testing and records every code sent.
type MockMailer struct {
	SendCodeFunc func(ctx context.Context, contact, code string, expiresAt time.Time) error

	mu   sync.Mutex
	Sent []SentCode
}

// SentCode is one recorded delivery.
type SentCode struct {
	Contact   string
	Code      string
	ExpiresAt time.Time
}

func (m *MockMailer) SendCode(ctx context.Context, contact, code string, expiresAt time.Time) error {
	if m.SendCodeFunc != nil {
		if err := m.SendCodeFunc(ctx, contact, code, expiresAt); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentCode{Contact: contact, Code: code, ExpiresAt: expiresAt})
	return nil
}

// LastCode returns the most recent code sent to contact.
func (m *MockMailer) LastCode(contact string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Sent) - 1; i >= 0; i-- {
		if m.Sent[i].Contact == contact {
			return m.Sent[i].Code, true
		}
	}
	return "", false
}
