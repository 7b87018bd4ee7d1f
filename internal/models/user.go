package models

import (
	"fmt"
	"strings"
)

// UserProfile is the authenticated principal as returned by the backend.
// The shape is owned by the backend, so it is kept as a loose JSON object.
type UserProfile map[string]any

// String returns the value stored under key when it is a string.
func (p UserProfile) String(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// DisplayName picks the most readable identity available: name, then
// first+last name, then email, then phone, then id.
func (p UserProfile) DisplayName() string {
	if name := p.String("name"); name != "" {
		return name
	}
	full := strings.TrimSpace(p.String("firstName") + " " + p.String("lastName"))
	if full != "" {
		return full
	}
	for _, key := range []string{"email", "phone", "id"} {
		if v := p.String(key); v != "" {
			return v
		}
	}
	return "operator"
}

// Operator is an account allowed to sign in to the development backend.
type Operator struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Name  string `json:"name"`
	Role  string `json:"role"` // e.g., "admin", "support"
}

// Profile converts the operator into the payload returned on verification.
func (o *Operator) Profile() UserProfile {
	profile := UserProfile{
		"id":   o.ID,
		"name": o.Name,
		"role": o.Role,
	}
	if o.Email != "" {
		profile["email"] = o.Email
	}
	if o.Phone != "" {
		profile["phone"] = o.Phone
	}
	return profile
}
