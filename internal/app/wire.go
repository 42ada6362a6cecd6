// Package app assembles the console's components from configuration. Both
// binaries build their stores, backend client and realtime transport here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"scribe-console/internal/backend"
	"scribe-console/internal/config"
	"scribe-console/internal/domain"
	"scribe-console/internal/messaging"
	"scribe-console/internal/realtime"
	"scribe-console/internal/repository/file"
	"scribe-console/internal/repository/memory"
	"scribe-console/internal/repository/postgres"
	"scribe-console/internal/repository/redis"
	"scribe-console/internal/service"
)

// OpenCredentialStore opens the configured store. The returned func releases
// its connections.
func OpenCredentialStore(ctx context.Context, cfg *config.Config) (domain.CredentialStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.CredentialStore {
	case config.StoreMemory:
		return memory.NewCredentialStore(), noop, nil

	case config.StoreFile:
		return file.NewCredentialStore(cfg.CredentialFile, cfg.CredentialKey, cfg.CredentialPassphrase), noop, nil

	case config.StorePostgres:
		db, err := config.NewPostgresConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		repo, err := postgres.NewCredentialRepository(db, cfg.CredentialKey)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		slog.Info("using postgres credential store")
		return repo, func() error {
			repo.Close()
			return db.Close()
		}, nil

	case config.StoreRedis:
		rdb, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("using redis credential store")
		return redis.NewCredentialStore(rdb, cfg.CredentialKey), rdb.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown credential store %q", cfg.CredentialStore)
	}
}

func NewBackendClient(cfg *config.Config) *backend.Client {
	return backend.NewClient(cfg.BackendURL, cfg.BackendTimeout,
		backend.WithRateLimit(cfg.BackendRPS, cfg.BackendBurst))
}

func NewTokenManager(cfg *config.Config, store domain.CredentialStore, api service.AuthAPI) *service.TokenManager {
	return service.NewTokenManager(store, api, service.WithRenewMargin(cfg.RenewMargin))
}

// ReconnectPolicy maps the reconnect settings onto the channel policy.
func ReconnectPolicy(cfg *config.Config) realtime.Policy {
	p := realtime.DefaultPolicy()
	if cfg.ReconnectDelay > 0 {
		p.InitialInterval = cfg.ReconnectDelay
	}
	if cfg.ReconnectDelayMax > 0 {
		p.MaxInterval = cfg.ReconnectDelayMax
	}
	if cfg.ReconnectAttempts > 0 {
		p.MaxAttempts = cfg.ReconnectAttempts
	}
	return p
}

// NewDialer returns the configured realtime transport. The websocket
// transport authenticates with the current token when one is held.
func NewDialer(cfg *config.Config, tokens realtime.TokenSource) realtime.Dialer {
	if cfg.RealtimeTransport == config.TransportAMQP {
		return messaging.NewDialer(cfg.AMQPURL, cfg.AMQPExchange)
	}
	return realtime.NewWebSocketDialer(cfg.RealtimeURL, tokens)
}

func NewManager(cfg *config.Config, tokens realtime.TokenSource) *realtime.Manager {
	return realtime.NewManager(NewDialer(cfg, tokens), ReconnectPolicy(cfg))
}
