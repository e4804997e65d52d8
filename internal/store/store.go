// Package store persists credentials. It provides the TokenStore contract,
// a modernc.org/sqlite-backed file store, and an in-memory store for tests.
package store

import (
	"context"
	"errors"

	"github.com/AprilNEA/BYOKEY/internal/credential"
)

// ErrNotFound is returned by Get when no credential is stored for the key.
var ErrNotFound = errors.New("store: not found")

// Record is one persisted row: a credential plus its account metadata.
type Record struct {
	Account    credential.Account
	Credential credential.Credential
}

// TokenStore is the persistence contract the Auth Manager depends on. All
// methods must be safe for concurrent callers.
type TokenStore interface {
	Get(ctx context.Context, provider credential.ProviderId, accountID string) (Record, error)
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, provider credential.ProviderId, accountID string) error
	ListAccounts(ctx context.Context, provider credential.ProviderId) ([]credential.Account, error)
	SetActive(ctx context.Context, provider credential.ProviderId, accountID string) error

	Close() error
}

// SchemaVersion is the current on-disk schema version. Migrations are
// append-only: a new version never rewrites rows written by an older one,
// it only adds columns/tables and backfills defaults.
const SchemaVersion = 1
