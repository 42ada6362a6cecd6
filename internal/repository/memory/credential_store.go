// Package memory holds the console session in process memory. It is meant for
// development and tests; nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"scribe-console/internal/domain"
)

type CredentialStore struct {
	mu      sync.RWMutex
	session *domain.Session
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{}
}

func (s *CredentialStore) Load(_ context.Context) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return domain.Session{}, domain.ErrCredentialNotFound
	}
	return *s.session, nil
}

func (s *CredentialStore) Save(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = &session
	return nil
}

func (s *CredentialStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = nil
	return nil
}
