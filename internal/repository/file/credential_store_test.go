package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"scribe-console/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialStore_Plain(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store := NewCredentialStore(path, "admin", "")

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)

	expires := time.Date(2026, 10, 18, 13, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, domain.Session{Token: "tok", ExpiresAt: expires}))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", got.Token)
	assert.True(t, got.ExpiresAt.Equal(expires))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
}

func TestCredentialStore_KeysShareFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	admin := NewCredentialStore(path, "admin", "")
	other := NewCredentialStore(path, "other", "")

	require.NoError(t, admin.Save(ctx, domain.Session{Token: "a"}))
	require.NoError(t, other.Save(ctx, domain.Session{Token: "b"}))
	require.NoError(t, admin.Clear(ctx))

	got, err := other.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Token)
}

func TestCredentialStore_Encrypted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")
	store := NewCredentialStore(path, "admin", "correct horse battery staple")

	require.NoError(t, store.Save(ctx, domain.Session{Token: "secret-token", ExpiresAt: time.Now().Add(time.Hour)}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "secret-token"), "token must not be stored in clear text")

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", got.Token)

	t.Run("wrong_passphrase", func(t *testing.T) {
		wrong := NewCredentialStore(path, "admin", "not the passphrase")
		_, err := wrong.Load(ctx)
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("missing_passphrase", func(t *testing.T) {
		plain := NewCredentialStore(path, "admin", "")
		_, err := plain.Load(ctx)
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("clear_with_wrong_passphrase_resets_file", func(t *testing.T) {
		wrong := NewCredentialStore(path, "admin", "not the passphrase")
		require.NoError(t, wrong.Clear(ctx))

		_, err := wrong.Load(ctx)
		assert.ErrorIs(t, err, domain.ErrCredentialNotFound)

		_, err = store.Load(ctx)
		assert.Error(t, err)
	})
}

func TestCredentialStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewCredentialStore(path, "admin", "").Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse credential file")
}
