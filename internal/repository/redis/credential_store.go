// Package redis stores the console session as one JSON value in Redis, so
// several console processes can share a login.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"scribe-console/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "console:credential:"

type CredentialStore struct {
	rdb    *goredis.Client
	prefix string
	key    string
}

// NewCredentialStore creates a Redis-backed store for key.
func NewCredentialStore(rdb *goredis.Client, key string) *CredentialStore {
	return &CredentialStore{rdb: rdb, prefix: defaultPrefix, key: key}
}

// NewClient parses a redis:// URL and pings the server.
func NewClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return rdb, nil
}

func (s *CredentialStore) storageKey() string { return s.prefix + s.key }

func (s *CredentialStore) Load(ctx context.Context) (domain.Session, error) {
	raw, err := s.rdb.Get(ctx, s.storageKey()).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.Session{}, domain.ErrCredentialNotFound
		}
		return domain.Session{}, fmt.Errorf("failed to load credential: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("failed to decode credential: %w", err)
	}
	return session, nil
}

// Save writes token and expiry as one value. The key expires with the token,
// so a stale credential disappears on its own.
func (s *CredentialStore) Save(ctx context.Context, session domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.storageKey(), data, ttlFor(session, time.Now())).Err(); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.storageKey()).Err(); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

func ttlFor(session domain.Session, now time.Time) time.Duration {
	if session.ExpiresAt.IsZero() {
		return 0 // no TTL
	}
	if !session.ExpiresAt.After(now) {
		return time.Second
	}
	return session.ExpiresAt.Sub(now)
}
