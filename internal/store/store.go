// Package store defines the persistence contract for linked credentials and
// synced inbox messages. Backends live in the postgres and sqlite
// subpackages; both implement replace-by-key upserts with no merge logic.
package store

import (
	"context"
	"errors"

	"github.com/teemow/inboxpanel/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// DefaultMessageLimit caps ListMessages when the caller passes no limit.
const DefaultMessageLimit = 50

// CredentialStore persists one credential per user.
type CredentialStore interface {
	// GetCredential returns ErrNotFound when the user has no linked account.
	GetCredential(ctx context.Context, userID string) (*model.Credential, error)
	// UpsertCredential replaces the whole row keyed on user id.
	UpsertCredential(ctx context.Context, cred *model.Credential) error
	DeleteCredential(ctx context.Context, userID string) error
	ListCredentialUserIDs(ctx context.Context) ([]string, error)
}

// MessageStore persists synced messages keyed on provider message id.
type MessageStore interface {
	// UpsertMessages writes the batch in a single transaction.
	UpsertMessages(ctx context.Context, msgs []model.Message) error
	// ListMessages returns the user's messages newest first.
	ListMessages(ctx context.Context, userID string, limit int) ([]model.Message, error)
	// LatestMessage returns ErrNotFound when the user has no messages.
	LatestMessage(ctx context.Context, userID string) (*model.Message, error)
	DeleteMessages(ctx context.Context, userID string) error
}

// Store is the full backend contract.
type Store interface {
	CredentialStore
	MessageStore

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
