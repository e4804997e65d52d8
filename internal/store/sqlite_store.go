package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AprilNEA/BYOKEY/internal/credential"
)

// SQLiteStore is the file-backed embedded relational TokenStore. It opens a
// single database file, runs append-only migrations, and serializes
// credentials as versioned JSON blobs so unknown fields round-trip even
// across schema upgrades that only add columns.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the sqlite database at path and
// ensures the schema is migrated to the current version.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one handle
	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	const createSchemaVersion = `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`
	const createTokens = `CREATE TABLE IF NOT EXISTS tokens (
		provider TEXT NOT NULL,
		account_id TEXT NOT NULL,
		credential_blob TEXT NOT NULL,
		label TEXT NOT NULL,
		is_active INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		last_refreshed_at TEXT NOT NULL,
		last_used_at TEXT NOT NULL,
		PRIMARY KEY (provider, account_id)
	)`
	if _, err := s.db.ExecContext(ctx, createSchemaVersion); err != nil {
		return fmt.Errorf("store: create schema_version: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createTokens); err != nil {
		return fmt.Errorf("store: create tokens: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return fmt.Errorf("store: read schema_version: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_version(version) VALUES (?)`, SchemaVersion); err != nil {
			return fmt.Errorf("store: seed schema_version: %w", err)
		}
	}
	// Future migrations only ADD columns/tables here, keyed on the stored
	// version; rows written under an older version are never rewritten.
	return nil
}

// credentialBlob is the versioned, JSON-serialized on-disk shape of a
// Credential. Extras absorbs provider-specific fields; knownCredentialBlobKeys
// lists every key this struct accounts for, so encode/decode can split off
// anything else into credential.Credential.Unknown instead of dropping it.
type credentialBlob struct {
	SchemaVersion int               `json:"schema_version"`
	Kind          credential.Kind   `json:"kind"`
	APIKey        string            `json:"api_key,omitempty"`
	AccessToken   string            `json:"access_token,omitempty"`
	RefreshToken  string            `json:"refresh_token,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	IDToken       string            `json:"id_token,omitempty"`
	Extras        map[string]string `json:"extras,omitempty"`
}

var knownCredentialBlobKeys = map[string]bool{
	"schema_version": true,
	"kind":           true,
	"api_key":        true,
	"access_token":   true,
	"refresh_token":  true,
	"expires_at":     true,
	"id_token":       true,
	"extras":         true,
}

func encodeCredential(c credential.Credential) (string, error) {
	blob := credentialBlob{
		SchemaVersion: SchemaVersion,
		Kind:          c.Kind,
		APIKey:        c.APIKey,
		AccessToken:   c.AccessToken,
		RefreshToken:  c.RefreshToken,
		ExpiresAt:     c.ExpiresAt,
		IDToken:       c.IDToken,
		Extras:        c.Extras,
	}
	known, err := json.Marshal(blob)
	if err != nil {
		return "", fmt.Errorf("store: encode credential: %w", err)
	}

	merged := map[string]json.RawMessage{}
	if len(c.Unknown) > 0 {
		if err := json.Unmarshal(c.Unknown, &merged); err != nil {
			return "", fmt.Errorf("store: encode credential: unmarshal unknown fields: %w", err)
		}
	}
	var knownMap map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return "", fmt.Errorf("store: encode credential: %w", err)
	}
	for k, v := range knownMap {
		merged[k] = v
	}

	b, err := json.Marshal(merged)
	if err != nil {
		return "", fmt.Errorf("store: encode credential: %w", err)
	}
	return string(b), nil
}

func decodeCredential(s string) (credential.Credential, error) {
	var blob credentialBlob
	if err := json.Unmarshal([]byte(s), &blob); err != nil {
		return credential.Credential{}, fmt.Errorf("store: decode credential: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return credential.Credential{}, fmt.Errorf("store: decode credential: %w", err)
	}
	for k := range raw {
		if knownCredentialBlobKeys[k] {
			delete(raw, k)
		}
	}
	var unknown json.RawMessage
	if len(raw) > 0 {
		b, err := json.Marshal(raw)
		if err != nil {
			return credential.Credential{}, fmt.Errorf("store: decode credential: marshal unknown fields: %w", err)
		}
		unknown = b
	}

	return credential.Credential{
		Kind:         blob.Kind,
		APIKey:       blob.APIKey,
		AccessToken:  blob.AccessToken,
		RefreshToken: blob.RefreshToken,
		ExpiresAt:    blob.ExpiresAt,
		IDToken:      blob.IDToken,
		Extras:       blob.Extras,
		Unknown:      unknown,
	}, nil
}

const timeLayout = time.RFC3339Nano

func (s *SQLiteStore) Get(ctx context.Context, provider credential.ProviderId, accountID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT account_id, credential_blob, label, is_active, created_at, last_refreshed_at, last_used_at
		FROM tokens WHERE provider = ? AND account_id = ?`, string(provider), accountID)
	return scanRecord(provider, row)
}

func scanRecord(provider credential.ProviderId, row *sql.Row) (Record, error) {
	var (
		accID, blob, label, createdAt, refreshedAt, usedAt string
		isActive                                           int
	)
	if err := row.Scan(&accID, &blob, &label, &isActive, &createdAt, &refreshedAt, &usedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("store: scan: %w", err)
	}
	cred, err := decodeCredential(blob)
	if err != nil {
		return Record{}, err
	}
	created, _ := time.Parse(timeLayout, createdAt)
	refreshed, _ := time.Parse(timeLayout, refreshedAt)
	used, _ := time.Parse(timeLayout, usedAt)
	return Record{
		Account: credential.Account{
			Provider:        provider,
			AccountID:       accID,
			Label:           label,
			IsActive:        isActive != 0,
			CreatedAt:       created,
			LastRefreshedAt: refreshed,
			LastUsedAt:      used,
		},
		Credential: cred,
	}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	blob, err := encodeCredential(rec.Credential)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if rec.Account.IsActive {
		if _, err := tx.ExecContext(ctx, `UPDATE tokens SET is_active = 0 WHERE provider = ?`, string(rec.Account.Provider)); err != nil {
			return fmt.Errorf("store: clear active: %w", err)
		}
	}

	isActive := 0
	if rec.Account.IsActive {
		isActive = 1
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tokens(provider, account_id, credential_blob, label, is_active, created_at, last_refreshed_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, account_id) DO UPDATE SET
			credential_blob = excluded.credential_blob,
			label = excluded.label,
			is_active = excluded.is_active,
			last_refreshed_at = excluded.last_refreshed_at,
			last_used_at = excluded.last_used_at`,
		string(rec.Account.Provider), rec.Account.AccountID, blob, rec.Account.Label, isActive,
		rec.Account.CreatedAt.Format(timeLayout), rec.Account.LastRefreshedAt.Format(timeLayout), rec.Account.LastUsedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("store: upsert: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, provider credential.ProviderId, accountID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE provider = ? AND account_id = ?`, string(provider), accountID)
	if err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAccounts(ctx context.Context, provider credential.ProviderId) ([]credential.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT account_id, label, is_active, created_at, last_refreshed_at, last_used_at
		FROM tokens WHERE provider = ? ORDER BY account_id`, string(provider))
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []credential.Account
	for rows.Next() {
		var (
			accID, label, createdAt, refreshedAt, usedAt string
			isActive                                     int
		)
		if err := rows.Scan(&accID, &label, &isActive, &createdAt, &refreshedAt, &usedAt); err != nil {
			return nil, fmt.Errorf("store: scan list: %w", err)
		}
		created, _ := time.Parse(timeLayout, createdAt)
		refreshed, _ := time.Parse(timeLayout, refreshedAt)
		used, _ := time.Parse(timeLayout, usedAt)
		out = append(out, credential.Account{
			Provider:        provider,
			AccountID:       accID,
			Label:           label,
			IsActive:        isActive != 0,
			CreatedAt:       created,
			LastRefreshedAt: refreshed,
			LastUsedAt:      used,
		})
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetActive(ctx context.Context, provider credential.ProviderId, accountID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE tokens SET is_active = CASE WHEN account_id = ? THEN 1 ELSE 0 END WHERE provider = ?`,
		accountID, string(provider))
	if err != nil {
		return fmt.Errorf("store: set active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
