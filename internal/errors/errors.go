package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the client core
var (
	// Session errors
	ErrNoSession           = errors.New("no session")
	ErrRefreshTokenInvalid = errors.New("refresh token invalid or expired")
	ErrAlreadyHydrated     = errors.New("session already hydrated")
	ErrClosed              = errors.New("controller closed")

	// Sign-in errors
	ErrLockedOut            = errors.New("too many failed login attempts")
	ErrSocialSignInInFlight = errors.New("social sign-in already in progress")
	ErrInvalidState         = errors.New("invalid oauth state")

	// Data errors
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrNotFound           = errors.New("not found")
)

// ValidationError reports malformed local input. It never involves the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// AuthError is a definitive rejection from the identity provider (bad credentials,
// revoked token, failed OAuth exchange). Message is what the provider said and is
// safe to show to the user.
type AuthError struct {
	Message string
	Code    string
	Status  int
	Err     error
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth error (%s): %s", e.Code, e.Message)
	}
	return "auth error: " + e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TransientNetworkError is a provider or network failure without an auth verdict.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("%s: transient network error: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Err
}

// PermissionDeniedError is returned when a device capability was refused.
type PermissionDeniedError struct {
	Capability string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission to access %s was denied", e.Capability)
}

// NewValidation builds a ValidationError
func NewValidation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewAuth builds an AuthError wrapping the underlying cause
func NewAuth(message string, cause error) error {
	return &AuthError{Message: message, Err: cause}
}

// NewTransient builds a TransientNetworkError
func NewTransient(op string, cause error) error {
	return &TransientNetworkError{Op: op, Err: cause}
}

// IsValidation reports whether err is, or wraps, a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsAuth reports whether err is, or wraps, an AuthError
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTransient reports whether err is, or wraps, a TransientNetworkError
func IsTransient(err error) bool {
	var te *TransientNetworkError
	return errors.As(err, &te)
}

// IsPermissionDenied reports whether err is, or wraps, a PermissionDeniedError
func IsPermissionDenied(err error) bool {
	var pe *PermissionDeniedError
	return errors.As(err, &pe)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
