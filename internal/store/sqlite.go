package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/tweetscout/tweetscout/api/types"
)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the identity database at the given path
// and applies schema migrations. Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logrus.Infof("Identity store initialized at %s", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS identities (
			username   TEXT PRIMARY KEY,
			password   TEXT NOT NULL DEFAULT '',
			proxy      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies the additive bridge-credential columns to databases
// created before the bridged provider existed. Idempotent: each column is
// checked before it is added, and rows lacking the columns read back as
// null/false.
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		column string
		apply  string
	}{
		{
			column: "api_key",
			apply:  `ALTER TABLE identities ADD COLUMN api_key TEXT`,
		},
		{
			column: "api_key_valid",
			apply:  `ALTER TABLE identities ADD COLUMN api_key_valid INTEGER NOT NULL DEFAULT 0`,
		},
		{
			column: "api_key_created_at",
			apply:  `ALTER TABLE identities ADD COLUMN api_key_created_at TEXT`,
		},
		{
			column: "guest_key",
			apply:  `ALTER TABLE identities ADD COLUMN guest_key TEXT`,
		},
		{
			column: "guest_key_created_at",
			apply:  `ALTER TABLE identities ADD COLUMN guest_key_created_at TEXT`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(
			`SELECT 1 FROM pragma_table_info('identities') WHERE name = ?`, m.column,
		).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking column %s: %w", m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to identities: %w", m.column, err)
		}
		logrus.Infof("Applied identity store migration: column %s", m.column)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertIdentity(ctx context.Context, identity *types.Identity) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities (username, password, proxy, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			password = excluded.password,
			proxy = excluded.proxy,
			updated_at = excluded.updated_at
	`, identity.Username, identity.Password, identity.Proxy, now, now)
	if err != nil {
		return fmt.Errorf("upserting identity %s: %w", identity.Username, err)
	}
	logrus.Debugf("Upserted identity %s", identity.Username)
	return nil
}

const identityColumns = `username, password, proxy, created_at, updated_at,
	api_key, api_key_valid, api_key_created_at, guest_key, guest_key_created_at`

func (s *SQLiteStore) GetIdentity(ctx context.Context, username string) (*types.Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE username = ?`, username)
	identity, err := scanIdentity(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity %s: %w", username, err)
	}
	return identity, nil
}

func (s *SQLiteStore) ListIdentities(ctx context.Context) ([]*types.Identity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+identityColumns+` FROM identities ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("querying identities: %w", err)
	}
	defer rows.Close()

	var identities []*types.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning identity row: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identity rows: %w", err)
	}
	return identities, nil
}

func scanIdentity(scan func(...any) error) (*types.Identity, error) {
	var identity types.Identity
	var createdAt, updatedAt string
	var apiKey, apiKeyCreatedAt, guestKey, guestKeyCreatedAt sql.NullString

	err := scan(
		&identity.Username,
		&identity.Password,
		&identity.Proxy,
		&createdAt,
		&updatedAt,
		&apiKey,
		&identity.ApiKeyValid,
		&apiKeyCreatedAt,
		&guestKey,
		&guestKeyCreatedAt,
	)
	if err != nil {
		return nil, err
	}

	identity.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	identity.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if apiKey.Valid {
		identity.ApiKey = apiKey.String
	}
	if apiKeyCreatedAt.Valid {
		if t, err := time.Parse(time.RFC3339, apiKeyCreatedAt.String); err == nil {
			identity.ApiKeyCreatedAt = &t
		}
	}
	if guestKey.Valid {
		identity.GuestKey = guestKey.String
	}
	if guestKeyCreatedAt.Valid {
		if t, err := time.Parse(time.RFC3339, guestKeyCreatedAt.String); err == nil {
			identity.GuestKeyCreatedAt = &t
		}
	}
	return &identity, nil
}

func (s *SQLiteStore) SetGuestKey(ctx context.Context, username, key string, createdAt time.Time) error {
	return s.updateIdentity(ctx, username, `
		UPDATE identities SET guest_key = ?, guest_key_created_at = ?, updated_at = ?
		WHERE username = ?
	`, key, createdAt.UTC().Format(time.RFC3339), nowRFC3339(), username)
}

func (s *SQLiteStore) ClearGuestKey(ctx context.Context, username string) error {
	return s.updateIdentity(ctx, username, `
		UPDATE identities SET guest_key = NULL, guest_key_created_at = NULL, updated_at = ?
		WHERE username = ?
	`, nowRFC3339(), username)
}

func (s *SQLiteStore) SetApiKey(ctx context.Context, username, key string, createdAt time.Time) error {
	return s.updateIdentity(ctx, username, `
		UPDATE identities SET api_key = ?, api_key_valid = 1, api_key_created_at = ?, updated_at = ?
		WHERE username = ?
	`, key, createdAt.UTC().Format(time.RFC3339), nowRFC3339(), username)
}

func (s *SQLiteStore) SetApiKeyValid(ctx context.Context, username string, valid bool) error {
	return s.updateIdentity(ctx, username, `
		UPDATE identities SET api_key_valid = ?, updated_at = ?
		WHERE username = ?
	`, valid, nowRFC3339(), username)
}

func (s *SQLiteStore) ClearApiKey(ctx context.Context, username string) error {
	return s.updateIdentity(ctx, username, `
		UPDATE identities SET api_key = NULL, api_key_valid = 0, api_key_created_at = NULL, updated_at = ?
		WHERE username = ?
	`, nowRFC3339(), username)
}

func (s *SQLiteStore) updateIdentity(ctx context.Context, username, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating identity %s: %w", username, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

var _ Store = (*SQLiteStore)(nil)
