package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/BradenHooton/billdesk/internal/models"
)

// operatorNamespace seeds stable operator ids so tokens survive restarts
// of the development backend.
var operatorNamespace = uuid.MustParse("3f0c2a5e-7d7b-4c53-9b7e-2f5f3c1d8a10")

// OperatorDirectory is the fixed set of accounts allowed to sign in.
type OperatorDirectory struct {
	byContact map[string]*models.Operator
}

// ParseOperators builds a directory from "contact[:name[:role]]" entries.
// Contacts containing "@" are emails, anything else is a phone number.
func ParseOperators(entries []string) (*OperatorDirectory, error) {
	dir := &OperatorDirectory{byContact: make(map[string]*models.Operator, len(entries))}

	for _, entry := range entries {
		parts := strings.SplitN(entry, ":", 3)
		contact := NormalizeContact(parts[0])
		if contact == "" {
			return nil, fmt.Errorf("operator entry %q has no contact", entry)
		}
		if _, exists := dir.byContact[contact]; exists {
			return nil, fmt.Errorf("duplicate operator contact %q", contact)
		}

		operator := &models.Operator{
			ID:   uuid.NewSHA1(operatorNamespace, []byte(contact)).String(),
			Name: contact,
			Role: "admin",
		}
		if strings.Contains(contact, "@") {
			operator.Email = contact
		} else {
			operator.Phone = contact
		}
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			operator.Name = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
			operator.Role = strings.TrimSpace(parts[2])
		}

		dir.byContact[contact] = operator
	}

	return dir, nil
}

// Lookup returns the operator registered under contact.
func (d *OperatorDirectory) Lookup(contact string) (*models.Operator, bool) {
	operator, ok := d.byContact[NormalizeContact(contact)]
	return operator, ok
}

// Len reports how many operators are registered.
func (d *OperatorDirectory) Len() int { return len(d.byContact) }

// NormalizeContact lower-cases emails and strips spaces from phone numbers.
func NormalizeContact(contact string) string {
	contact = strings.TrimSpace(contact)
	if strings.Contains(contact, "@") {
		return strings.ToLower(contact)
	}
	return strings.Join(strings.Fields(contact), "")
}
