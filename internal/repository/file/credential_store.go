// Package file persists the console session in a JSON file keyed by
// credential name. With a passphrase set the file is sealed with
// ChaCha20-Poly1305 under an Argon2id-derived key.
package file

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"scribe-console/internal/domain"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	formatVersion = 1

	// Argon2id parameters for the file key.
	argonTime    = 2
	argonMemory  = 64 * 1024
	argonThreads = 2
	saltLen      = 16
)

var ErrDecrypt = errors.New("credential file could not be decrypted")

// envelope is the on-disk format. Exactly one of Sessions or Sealed is set.
type envelope struct {
	Version  int                       `json:"version"`
	Sessions map[string]domain.Session `json:"sessions,omitempty"`
	Salt     []byte                    `json:"salt,omitempty"`
	Nonce    []byte                    `json:"nonce,omitempty"`
	Sealed   []byte                    `json:"sealed,omitempty"`
}

type CredentialStore struct {
	path       string
	key        string
	passphrase []byte

	mu sync.Mutex
}

// NewCredentialStore returns a store writing to path under key. An empty
// passphrase stores the file in plain JSON.
func NewCredentialStore(path, key, passphrase string) *CredentialStore {
	s := &CredentialStore{path: path, key: key}
	if passphrase != "" {
		s.passphrase = []byte(passphrase)
	}
	return s
}

func (s *CredentialStore) Load(_ context.Context) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.read()
	if err != nil {
		return domain.Session{}, err
	}
	session, ok := sessions[s.key]
	if !ok || !session.HasToken() {
		return domain.Session{}, domain.ErrCredentialNotFound
	}
	return session, nil
}

func (s *CredentialStore) Save(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.read()
	if err != nil && !errors.Is(err, ErrDecrypt) {
		return err
	}
	if sessions == nil {
		sessions = map[string]domain.Session{}
	}
	sessions[s.key] = session
	return s.write(sessions)
}

func (s *CredentialStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.read()
	if err != nil {
		if errors.Is(err, ErrDecrypt) {
			// An unreadable file holds nothing we can keep.
			return s.write(map[string]domain.Session{})
		}
		return err
	}
	if _, ok := sessions[s.key]; !ok {
		return nil
	}
	delete(sessions, s.key)
	return s.write(sessions)
}

func (s *CredentialStore) read() (map[string]domain.Session, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]domain.Session{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}

	if env.Sealed == nil {
		if env.Sessions == nil {
			return map[string]domain.Session{}, nil
		}
		return env.Sessions, nil
	}

	if s.passphrase == nil {
		return nil, fmt.Errorf("%w: file is encrypted and no passphrase is set", ErrDecrypt)
	}
	aead, err := chacha20poly1305.NewX(deriveKey(s.passphrase, env.Salt))
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, env.Nonce, env.Sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}

	sessions := map[string]domain.Session{}
	if err := json.Unmarshal(plain, &sessions); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	return sessions, nil
}

func (s *CredentialStore) write(sessions map[string]domain.Session) error {
	env := envelope{Version: formatVersion}

	if s.passphrase == nil {
		env.Sessions = sessions
	} else {
		plain, err := json.Marshal(sessions)
		if err != nil {
			return err
		}
		env.Salt = make([]byte, saltLen)
		if _, err := io.ReadFull(rand.Reader, env.Salt); err != nil {
			return err
		}
		aead, err := chacha20poly1305.NewX(deriveKey(s.passphrase, env.Salt))
		if err != nil {
			return err
		}
		env.Nonce = make([]byte, aead.NonceSize())
		if _, err := io.ReadFull(rand.Reader, env.Nonce); err != nil {
			return err
		}
		env.Sealed = aead.Seal(nil, env.Nonce, plain, nil)
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.path, data)
}

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

// writeAtomic replaces path with data via a temp file and rename, so a crash
// never leaves a token without its expiry.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credential dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}
