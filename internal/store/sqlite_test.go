package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tweetscout/tweetscout/api/types"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "identities.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndGetIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetIdentity(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpsertIdentity(ctx, &types.Identity{
		Username: "alice",
		Password: "hunter2",
		Proxy:    "http://proxy:8080",
	}))

	identity, err := s.GetIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, "hunter2", identity.Password)
	assert.Equal(t, "http://proxy:8080", identity.Proxy)
	assert.Empty(t, identity.ApiKey)
	assert.False(t, identity.ApiKeyValid)
	assert.Empty(t, identity.GuestKey)
	assert.Nil(t, identity.GuestKeyCreatedAt)
}

func TestUpsertPreservesCredentials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertIdentity(ctx, &types.Identity{Username: "alice", Password: "one"}))
	require.NoError(t, s.SetApiKey(ctx, "alice", "key-1", time.Now()))
	require.NoError(t, s.SetGuestKey(ctx, "alice", "guest-1", time.Now()))

	// Re-seeding the account must not wipe bridge credentials.
	require.NoError(t, s.UpsertIdentity(ctx, &types.Identity{Username: "alice", Password: "two"}))

	identity, err := s.GetIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "two", identity.Password)
	assert.Equal(t, "key-1", identity.ApiKey)
	assert.True(t, identity.ApiKeyValid)
	assert.Equal(t, "guest-1", identity.GuestKey)
	require.NotNil(t, identity.GuestKeyCreatedAt)
}

func TestApiKeyLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertIdentity(ctx, &types.Identity{Username: "bob"}))

	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetApiKey(ctx, "bob", "key-xyz", createdAt))

	identity, err := s.GetIdentity(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "key-xyz", identity.ApiKey)
	assert.True(t, identity.ApiKeyValid)
	require.NotNil(t, identity.ApiKeyCreatedAt)
	assert.Equal(t, createdAt, identity.ApiKeyCreatedAt.UTC())
	assert.Equal(t, types.AuthModeUser, identity.AuthMode())

	require.NoError(t, s.SetApiKeyValid(ctx, "bob", false))
	identity, err = s.GetIdentity(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, identity.ApiKeyValid)
	assert.Equal(t, types.AuthModeGuest, identity.AuthMode())

	require.NoError(t, s.ClearApiKey(ctx, "bob"))
	identity, err = s.GetIdentity(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, identity.ApiKey)
	assert.False(t, identity.ApiKeyValid)
	assert.Nil(t, identity.ApiKeyCreatedAt)
}

func TestGuestKeyLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertIdentity(ctx, &types.Identity{Username: "carol"}))
	require.NoError(t, s.SetGuestKey(ctx, "carol", "guest-abc", time.Now()))

	identity, err := s.GetIdentity(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "guest-abc", identity.GuestKey)
	require.NotNil(t, identity.GuestKeyCreatedAt)

	require.NoError(t, s.ClearGuestKey(ctx, "carol"))
	identity, err = s.GetIdentity(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, identity.GuestKey)
	assert.Nil(t, identity.GuestKeyCreatedAt)
}

func TestUpdateUnknownIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.SetGuestKey(ctx, "ghost", "g", time.Now()), ErrNotFound)
	assert.ErrorIs(t, s.SetApiKey(ctx, "ghost", "k", time.Now()), ErrNotFound)
	assert.ErrorIs(t, s.ClearApiKey(ctx, "ghost"), ErrNotFound)
}

// A database created before the bridged provider existed has none of the
// credential columns. Opening it must add them without touching existing rows.
func TestMigrationFromLegacySchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE identities (
			username   TEXT PRIMARY KEY,
			password   TEXT NOT NULL DEFAULT '',
			proxy      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		INSERT INTO identities (username, password, proxy, created_at, updated_at)
		VALUES ('legacy', 'pw', '', '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z');
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	identity, err := s.GetIdentity(context.Background(), "legacy")
	require.NoError(t, err)
	assert.Equal(t, "pw", identity.Password)
	assert.Empty(t, identity.ApiKey)
	assert.False(t, identity.ApiKeyValid)
	assert.Nil(t, identity.ApiKeyCreatedAt)
	assert.Empty(t, identity.GuestKey)

	// And the migrated row accepts credential writes.
	require.NoError(t, s.SetApiKey(context.Background(), "legacy", "new-key", time.Now()))
	identity, err = s.GetIdentity(context.Background(), "legacy")
	require.NoError(t, err)
	assert.True(t, identity.ApiKeyValid)
}
