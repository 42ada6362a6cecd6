package domain

import (
	"context"
	"time"
)

// Session is the access credential held by the console and its expiry.
// An empty Token means no session; a zero ExpiresAt means no recorded expiry.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HasToken reports whether a credential is present.
func (s Session) HasToken() bool {
	return s.Token != ""
}

// ExpiresWithin reports whether the session is due for renewal at now given
// the safety margin. A session without a token or without a recorded expiry
// is always due.
func (s Session) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if !s.HasToken() || s.ExpiresAt.IsZero() {
		return true
	}
	return s.ExpiresAt.Sub(now) < margin
}

// CredentialStore is durable storage for the current session. Token and expiry
// are always written and cleared together.
type CredentialStore interface {
	// Load returns ErrCredentialNotFound when nothing is stored.
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, session Session) error
	Clear(ctx context.Context) error
}

// Verification is the backend's answer to a session check.
type Verification struct {
	Valid bool
	Admin *Admin
	// SessionExpiresAt is zero when the backend did not report an expiry.
	SessionExpiresAt time.Time
}
