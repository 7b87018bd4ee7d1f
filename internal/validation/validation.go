// Package validation holds the input rules shared by the console and the
// development backend.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/BradenHooton/billdesk/internal/models"
)

// ValidationError is a field-level input error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// Global validator instance (reused across all callers)
var validate = validator.New()

// ValidateRequest validates a request struct and returns the first failing
// field as a *ValidationError.
func ValidateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return &ValidationError{
				Field:   ve[0].Field(),
				Message: formatValidationError(ve[0]),
			}
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// Contact checks a contact (email or phone number) before it is sent.
func Contact(contact string) error {
	if err := validate.Var(strings.TrimSpace(contact), "required,max=254"); err != nil {
		return fieldError("contact", err)
	}
	return nil
}

// OTPCode checks that code is exactly models.OTPLength digits.
func OTPCode(code string) error {
	if err := validate.Var(code, fmt.Sprintf("required,len=%d,numeric", models.OTPLength)); err != nil {
		return fieldError("otpCode", err)
	}
	return nil
}

// SanitizeCode keeps the digits of input, truncated to models.OTPLength.
func SanitizeCode(input string) string {
	var b strings.Builder
	for _, r := range input {
		if b.Len() == models.OTPLength {
			break
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func fieldError(field string, err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return &ValidationError{Field: field, Message: formatValidationError(ve[0])}
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "numeric":
		return "must contain digits only"
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
