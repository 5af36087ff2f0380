package session

import (
	"regexp"
	"strings"
	"unicode/utf8"

	apperrors "github.com/jrsteele09/climate-crusade/internal/errors"
)

// MinPasswordLength is the shortest password accepted before contacting the provider.
const MinPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateCredentials checks the shape of password-login input.
func ValidateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperrors.NewValidation("email", "email is required")
	}
	if !emailPattern.MatchString(email) {
		return apperrors.NewValidation("email", "invalid email format")
	}
	if password == "" {
		return apperrors.NewValidation("password", "password is required")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return apperrors.NewValidation("password", "password must be at least 6 characters long")
	}
	return nil
}
