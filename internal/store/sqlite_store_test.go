package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/AprilNEA/BYOKEY/internal/credential"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStorePutGetRoundTrip(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	expires := now.Add(time.Hour)
	rec := Record{
		Account: credential.Account{
			Provider:  credential.Claude,
			AccountID: "acct-1",
			Label:     "Work",
			IsActive:  true,
			CreatedAt: now,
		},
		Credential: credential.Credential{
			Kind:         credential.KindOAuthToken,
			AccessToken:  "access",
			RefreshToken: "refresh",
			ExpiresAt:    &expires,
			Extras:       map[string]string{"endpoint": "https://example.invalid"},
		},
	}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, credential.Claude, "acct-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Credential.AccessToken != "access" || got.Credential.RefreshToken != "refresh" {
		t.Fatalf("credential round-trip mismatch: %+v", got.Credential)
	}
	if got.Credential.Extras["endpoint"] != "https://example.invalid" {
		t.Fatalf("extras round-trip mismatch: %+v", got.Credential.Extras)
	}
	if got.Account.Label != "Work" || !got.Account.IsActive {
		t.Fatalf("account round-trip mismatch: %+v", got.Account)
	}
	if got.Credential.ExpiresAt == nil || !got.Credential.ExpiresAt.Equal(expires) {
		t.Fatalf("expires_at round-trip mismatch: %+v", got.Credential.ExpiresAt)
	}
}

func TestSQLiteStoreGetNotFound(t *testing.T) {
	s := openTestSQLite(t)
	if _, err := s.Get(context.Background(), credential.Claude, "nope"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStorePutActiveUnsetsPriorActive(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	if err := s.Put(ctx, Record{Account: credential.Account{Provider: credential.Claude, AccountID: "a", IsActive: true}}); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if err := s.Put(ctx, Record{Account: credential.Account{Provider: credential.Claude, AccountID: "b", IsActive: true}}); err != nil {
		t.Fatalf("Put b: %v", err)
	}

	a, err := s.Get(ctx, credential.Claude, "a")
	if err != nil {
		t.Fatalf("Get a: %v", err)
	}
	b, err := s.Get(ctx, credential.Claude, "b")
	if err != nil {
		t.Fatalf("Get b: %v", err)
	}
	if a.Account.IsActive {
		t.Fatal("account a should no longer be active")
	}
	if !b.Account.IsActive {
		t.Fatal("account b should be active")
	}
}

func TestSQLiteStoreDelete(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	if err := s.Put(ctx, Record{Account: credential.Account{Provider: credential.Claude, AccountID: "a"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx, credential.Claude, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, credential.Claude, "a"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStoreListAccountsSorted(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	if err := s.Put(ctx, Record{Account: credential.Account{Provider: credential.Gemini, AccountID: "z"}}); err != nil {
		t.Fatalf("Put z: %v", err)
	}
	if err := s.Put(ctx, Record{Account: credential.Account{Provider: credential.Gemini, AccountID: "a"}}); err != nil {
		t.Fatalf("Put a: %v", err)
	}

	accts, err := s.ListAccounts(ctx, credential.Gemini)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accts) != 2 || accts[0].AccountID != "a" || accts[1].AccountID != "z" {
		t.Fatalf("unexpected order: %+v", accts)
	}
}

func TestSQLiteStoreSetActive(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()
	if err := s.Put(ctx, Record{Account: credential.Account{Provider: credential.Claude, AccountID: "a", IsActive: true}}); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if err := s.Put(ctx, Record{Account: credential.Account{Provider: credential.Claude, AccountID: "b"}}); err != nil {
		t.Fatalf("Put b: %v", err)
	}

	if err := s.SetActive(ctx, credential.Claude, "b"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	a, _ := s.Get(ctx, credential.Claude, "a")
	b, _ := s.Get(ctx, credential.Claude, "b")
	if a.Account.IsActive {
		t.Fatal("account a should no longer be active")
	}
	if !b.Account.IsActive {
		t.Fatal("account b should be active")
	}
}

func TestSQLiteStoreSetActiveUnknownAccount(t *testing.T) {
	s := openTestSQLite(t)
	if err := s.SetActive(context.Background(), credential.Claude, "missing"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// TestSQLiteStorePreservesUnknownBlobFields simulates a credential_blob
// written by a newer schema version: a field this binary's credentialBlob
// doesn't declare must survive a read-modify-write instead of being
// dropped, per the tokens table's versioned-JSON contract.
func TestSQLiteStorePreservesUnknownBlobFields(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	const blob = `{"schema_version":1,"kind":2,"access_token":"access","refresh_token":"refresh","future_field":"from-a-newer-binary"}`
	now := time.Now().Truncate(time.Second).Format(timeLayout)
	if _, err := s.db.ExecContext(ctx, `INSERT INTO tokens(provider, account_id, credential_blob, label, is_active, created_at, last_refreshed_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(credential.Claude), "acct-1", blob, "", 0, now, now, now); err != nil {
		t.Fatalf("seed raw blob: %v", err)
	}

	got, err := s.Get(ctx, credential.Claude, "acct-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Credential.Unknown) == 0 {
		t.Fatalf("expected Unknown to carry the unrecognized field, got none")
	}

	// Read-modify-write: touch only a recognized field, then re-persist.
	got.Credential.AccessToken = "access-rotated"
	got.Account.LastUsedAt = time.Now().Truncate(time.Second)
	if err := s.Put(ctx, got); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var rewritten string
	if err := s.db.QueryRowContext(ctx, `SELECT credential_blob FROM tokens WHERE provider = ? AND account_id = ?`,
		string(credential.Claude), "acct-1").Scan(&rewritten); err != nil {
		t.Fatalf("scan rewritten blob: %v", err)
	}
	if !jsonContains(t, rewritten, "future_field", "from-a-newer-binary") {
		t.Fatalf("unknown field did not survive read-modify-write, got blob: %s", rewritten)
	}

	roundTripped, err := s.Get(ctx, credential.Claude, "acct-1")
	if err != nil {
		t.Fatalf("Get after rewrite: %v", err)
	}
	if roundTripped.Credential.AccessToken != "access-rotated" {
		t.Fatalf("access token update lost: %+v", roundTripped.Credential)
	}
}

func jsonContains(t *testing.T, blob, key, want string) bool {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		t.Fatalf("parse blob: %v", err)
	}
	got, _ := m[key].(string)
	return got == want
}
