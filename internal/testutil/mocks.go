// Package testutil provides shared test utilities, mocks, and fixtures
// for testing the scribe-console packages.
package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"scribe-console/internal/domain"
)

// Common test errors
var (
	ErrMockNotImplemented = errors.New("mock function not implemented")
	ErrMockBackend        = errors.New("mock: backend failure")
)

// MockCredentialStore implements domain.CredentialStore for testing
type MockCredentialStore struct {
	mu sync.RWMutex

	// Function overrides - set these to customize behavior
	LoadFunc  func(ctx context.Context) (domain.Session, error)
	SaveFunc  func(ctx context.Context, session domain.Session) error
	ClearFunc func(ctx context.Context) error

	// In-memory storage for simple tests; nil means nothing stored
	Current *domain.Session

	Saves  atomic.Int32
	Clears atomic.Int32
}

// NewMockCredentialStore creates a store holding session, or an empty store
// when session is nil
func NewMockCredentialStore(session *domain.Session) *MockCredentialStore {
	m := &MockCredentialStore{}
	if session != nil {
		s := *session
		m.Current = &s
	}
	return m
}

func (m *MockCredentialStore) Load(ctx context.Context) (domain.Session, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Current == nil {
		return domain.Session{}, domain.ErrCredentialNotFound
	}
	return *m.Current, nil
}

func (m *MockCredentialStore) Save(ctx context.Context, session domain.Session) error {
	m.Saves.Add(1)
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, session)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Current = &session
	return nil
}

func (m *MockCredentialStore) Clear(ctx context.Context) error {
	m.Clears.Add(1)
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Current = nil
	return nil
}

// Stored returns the stored session and whether one exists
func (m *MockCredentialStore) Stored() (domain.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Current == nil {
		return domain.Session{}, false
	}
	return *m.Current, true
}

// MockAuthAPI implements the backend auth endpoints for testing. Every call
// is counted; unset functions fail with ErrMockNotImplemented.
type MockAuthAPI struct {
	LoginFunc   func(ctx context.Context, email, password string) (domain.Session, error)
	RenewFunc   func(ctx context.Context, token string) (domain.Session, error)
	VerifyFunc  func(ctx context.Context, token string) (domain.Verification, error)
	LogoutFunc  func(ctx context.Context, token string) error
	ProfileFunc func(ctx context.Context, token string) (*domain.Admin, error)

	LoginCalls   atomic.Int32
	RenewCalls   atomic.Int32
	VerifyCalls  atomic.Int32
	LogoutCalls  atomic.Int32
	ProfileCalls atomic.Int32

	mu            sync.Mutex
	VerifiedWith  []string
	RenewedTokens []string
}

// NetworkCalls returns the total number of backend calls made
func (m *MockAuthAPI) NetworkCalls() int32 {
	return m.LoginCalls.Load() + m.RenewCalls.Load() + m.VerifyCalls.Load() +
		m.LogoutCalls.Load() + m.ProfileCalls.Load()
}

func (m *MockAuthAPI) Login(ctx context.Context, email, password string) (domain.Session, error) {
	m.LoginCalls.Add(1)
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password)
	}
	return domain.Session{}, ErrMockNotImplemented
}

func (m *MockAuthAPI) Renew(ctx context.Context, token string) (domain.Session, error) {
	m.RenewCalls.Add(1)
	m.mu.Lock()
	m.RenewedTokens = append(m.RenewedTokens, token)
	m.mu.Unlock()
	if m.RenewFunc != nil {
		return m.RenewFunc(ctx, token)
	}
	return domain.Session{}, ErrMockNotImplemented
}

func (m *MockAuthAPI) Verify(ctx context.Context, token string) (domain.Verification, error) {
	m.VerifyCalls.Add(1)
	m.mu.Lock()
	m.VerifiedWith = append(m.VerifiedWith, token)
	m.mu.Unlock()
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, token)
	}
	return domain.Verification{}, ErrMockNotImplemented
}

func (m *MockAuthAPI) Logout(ctx context.Context, token string) error {
	m.LogoutCalls.Add(1)
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token)
	}
	return nil
}

func (m *MockAuthAPI) Profile(ctx context.Context, token string) (*domain.Admin, error) {
	m.ProfileCalls.Add(1)
	if m.ProfileFunc != nil {
		return m.ProfileFunc(ctx, token)
	}
	return nil, ErrMockNotImplemented
}
