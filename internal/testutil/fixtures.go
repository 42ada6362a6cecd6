package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"scribe-console/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// nextID generates a unique ID for test fixtures
func nextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// SessionOptions allows customizing session fixture creation
type SessionOptions struct {
	Token     string
	ExpiresAt time.Time
}

// NewTestSession creates a session valid for an hour
// Pass options to override specific fields
func NewTestSession(opts ...func(*SessionOptions)) domain.Session {
	o := &SessionOptions{
		Token:     nextID("token"),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	for _, opt := range opts {
		opt(o)
	}

	return domain.Session{Token: o.Token, ExpiresAt: o.ExpiresAt}
}

// WithToken sets the session token
func WithToken(token string) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.Token = token
	}
}

// WithExpiresIn sets the expiration relative to now
func WithExpiresIn(d time.Duration) func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.ExpiresAt = time.Now().Add(d)
	}
}

// WithNoExpiry leaves the expiration unrecorded
func WithNoExpiry() func(*SessionOptions) {
	return func(o *SessionOptions) {
		o.ExpiresAt = time.Time{}
	}
}

// NewTestAdmin creates an operator profile
func NewTestAdmin() *domain.Admin {
	id := nextID("admin")
	return &domain.Admin{
		ID:    id,
		Name:  "Operator " + id,
		Email: id + "@example.com",
		Role:  "admin",
	}
}

// NewTestUsers creates count users with sequential names
func NewTestUsers(count int) []domain.User {
	users := make([]domain.User, count)
	for i := 0; i < count; i++ {
		id := nextID("user")
		users[i] = domain.User{
			ID:        id,
			Name:      fmt.Sprintf("User %d", i+1),
			Email:     id + "@example.com",
			Role:      "user",
			CreatedAt: time.Now().Add(-time.Duration(i) * time.Hour),
		}
	}
	return users
}

// NewTestJWT signs a token whose exp claim is expiresAt
func NewTestJWT(expiresAt time.Time) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   nextID("admin"),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}).SignedString([]byte("testutil-signing-key"))
	if err != nil {
		panic(err)
	}
	return token
}
