package store

import (
	"context"
	"testing"
	"time"

	"github.com/AprilNEA/BYOKEY/internal/credential"
)

func TestMemoryPutGetRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rec := Record{
		Account: credential.Account{
			Provider:  credential.Claude,
			AccountID: "acct-1",
			Label:     "Work",
			IsActive:  true,
		},
		Credential: credential.Credential{
			Kind:         credential.KindOAuthToken,
			AccessToken:  "access",
			RefreshToken: "refresh",
		},
	}
	if err := m.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := m.Get(ctx, credential.Claude, "acct-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Credential.AccessToken != "access" {
		t.Fatalf("access token = %q", got.Credential.AccessToken)
	}
}

func TestMemoryGetNotFound(t *testing.T) {
	m := NewMemory()
	if _, err := m.Get(context.Background(), credential.Claude, "nope"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryPutActiveUnsetsPriorActive(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Put(ctx, Record{Account: credential.Account{Provider: credential.Claude, AccountID: "a", IsActive: true}})
	_ = m.Put(ctx, Record{Account: credential.Account{Provider: credential.Claude, AccountID: "b", IsActive: true}})

	a, _ := m.Get(ctx, credential.Claude, "a")
	b, _ := m.Get(ctx, credential.Claude, "b")
	if a.Account.IsActive {
		t.Fatal("account a should no longer be active")
	}
	if !b.Account.IsActive {
		t.Fatal("account b should be active")
	}
}

func TestMemoryListAccountsSorted(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Put(ctx, Record{Account: credential.Account{Provider: credential.Gemini, AccountID: "z"}})
	_ = m.Put(ctx, Record{Account: credential.Account{Provider: credential.Gemini, AccountID: "a"}})

	accts, err := m.ListAccounts(ctx, credential.Gemini)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accts) != 2 || accts[0].AccountID != "a" || accts[1].AccountID != "z" {
		t.Fatalf("unexpected order: %+v", accts)
	}
}

func TestMemorySetActiveUnknownAccount(t *testing.T) {
	m := NewMemory()
	if err := m.SetActive(context.Background(), credential.Claude, "missing"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Put(ctx, Record{Account: credential.Account{Provider: credential.Claude, AccountID: "a"}})
	if err := m.Delete(ctx, credential.Claude, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, credential.Claude, "a"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCredentialExpiredAndNotAuthenticated(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)

	expiredNoRefresh := credential.Credential{Kind: credential.KindOAuthToken, ExpiresAt: &past}
	if !expiredNoRefresh.Expired(now) {
		t.Fatal("expected expired")
	}
	if !expiredNoRefresh.NotAuthenticated(now) {
		t.Fatal("expected not authenticated: expired with no refresh token")
	}

	expiredWithRefresh := credential.Credential{Kind: credential.KindOAuthToken, ExpiresAt: &past, RefreshToken: "r"}
	if expiredWithRefresh.NotAuthenticated(now) {
		t.Fatal("expired token with refresh token should be recoverable, not NotAuthenticated")
	}

	apiKey := credential.NewAPIKey("sk-x")
	if apiKey.Expired(now) || apiKey.NotAuthenticated(now) {
		t.Fatal("api key credentials never expire and are always authenticated")
	}

	if !credential.Absent().NotAuthenticated(now) {
		t.Fatal("absent credential is always NotAuthenticated")
	}
}
