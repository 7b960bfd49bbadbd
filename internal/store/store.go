package store

import (
	"context"
	"errors"
	"time"

	"github.com/tweetscout/tweetscout/api/types"
)

// ErrNotFound is returned when an identity does not exist.
var ErrNotFound = errors.New("identity not found")

// Store persists identities and their bridge credentials. Credential columns
// are mutated only through the auth manager.
type Store interface {
	// UpsertIdentity creates the identity or updates its account fields.
	// Credential columns are left untouched on update.
	UpsertIdentity(ctx context.Context, identity *types.Identity) error
	GetIdentity(ctx context.Context, username string) (*types.Identity, error)
	ListIdentities(ctx context.Context) ([]*types.Identity, error)

	// SetGuestKey stores a freshly generated guest credential.
	SetGuestKey(ctx context.Context, username, key string, createdAt time.Time) error
	ClearGuestKey(ctx context.Context, username string) error

	// SetApiKey stores a user credential that just passed a validation probe,
	// marking it valid.
	SetApiKey(ctx context.Context, username, key string, createdAt time.Time) error
	SetApiKeyValid(ctx context.Context, username string, valid bool) error
	ClearApiKey(ctx context.Context, username string) error

	Close() error
}
