//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"scribe-console/internal/domain"
	"scribe-console/internal/repository/postgres"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a PostgreSQL container and returns a migrated database connection
func setupPostgres(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithDeadline(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connStr := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err, "failed to connect to PostgreSQL")

	require.Eventually(t, func() bool { return db.PingContext(ctx) == nil }, 10*time.Second, 200*time.Millisecond)
	require.NoError(t, postgres.EnsureSchema(ctx, db), "failed to create schema")

	cleanup := func() {
		db.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func TestCredentialRepository_Integration(t *testing.T) {
	db, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()

	repo, err := postgres.NewCredentialRepository(db, "admin")
	require.NoError(t, err)
	defer repo.Close()

	other, err := postgres.NewCredentialRepository(db, "other")
	require.NoError(t, err)
	defer other.Close()

	t.Run("empty_store", func(t *testing.T) {
		_, err := repo.Load(ctx)
		assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
	})

	t.Run("save_then_overwrite", func(t *testing.T) {
		first := domain.Session{Token: "first", ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)}
		require.NoError(t, repo.Save(ctx, first))

		second := domain.Session{Token: "second", ExpiresAt: time.Now().Add(2 * time.Hour).UTC().Truncate(time.Microsecond)}
		require.NoError(t, repo.Save(ctx, second))

		got, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "second", got.Token)
		assert.True(t, got.ExpiresAt.Equal(second.ExpiresAt))
	})

	t.Run("keys_are_isolated", func(t *testing.T) {
		_, err := other.Load(ctx)
		assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
	})

	t.Run("no_expiry_round_trips_as_zero", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, domain.Session{Token: "no-exp"}))

		got, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.True(t, got.ExpiresAt.IsZero())
	})

	t.Run("clear_removes_both", func(t *testing.T) {
		require.NoError(t, repo.Clear(ctx))

		_, err := repo.Load(ctx)
		assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
	})
}
