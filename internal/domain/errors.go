package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")

	ErrNoToken        = &AuthError{Reason: ReasonNoToken}
	ErrRenewRejected  = &AuthError{Reason: ReasonRenewRejected}
	ErrVerifyRejected = &AuthError{Reason: ReasonVerifyRejected}
)

const (
	ReasonNoToken        = "no-token"
	ReasonRenewRejected  = "renew-rejected"
	ReasonVerifyRejected = "verify-rejected"
)

// AuthError is a credential failure. Credential failures are never retried;
// they end the session and send the operator back to the login entry point.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %v", e.Reason, e.Err)
	}
	return "auth " + e.Reason
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any AuthError with the same reason, so callers can write
// errors.Is(err, domain.ErrRenewRejected).
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// IsCredentialError reports whether err should end the session.
func IsCredentialError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) || errors.Is(err, ErrUnauthorized)
}
