package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/store"
)

func TestRunStatusNoStoreFileIsNotAnError(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "missing.db")
	if err := runStatus([]string{"-store", storePath}); err != nil {
		t.Fatalf("runStatus on missing store: %v", err)
	}
}

func TestRunStatusListsSeededAccounts(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "tokens.db")

	s, err := store.OpenSQLite(storePath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := s.Put(context.Background(), store.Record{
		Account: credential.Account{
			Provider:  credential.Claude,
			AccountID: "acct-1",
			Label:     "work",
			IsActive:  true,
			CreatedAt: time.Now(),
		},
		Credential: credential.Credential{Kind: credential.KindOAuthToken, AccessToken: "tok"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := runStatus([]string{"-store", storePath}); err != nil {
		t.Fatalf("runStatus: %v", err)
	}
}

func TestRunLogoutRemovesEveryAccountForProvider(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "tokens.db")

	s, err := store.OpenSQLite(storePath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	for _, acctID := range []string{"acct-1", "acct-2"} {
		if err := s.Put(context.Background(), store.Record{
			Account:    credential.Account{Provider: credential.Codex, AccountID: acctID, IsActive: acctID == "acct-1"},
			Credential: credential.Credential{Kind: credential.KindOAuthToken, AccessToken: "tok"},
		}); err != nil {
			t.Fatalf("seed %s: %v", acctID, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := runLogout([]string{"-store", storePath, "codex"}); err != nil {
		t.Fatalf("runLogout: %v", err)
	}

	s2, err := store.OpenSQLite(storePath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	remaining, err := s2.ListAccounts(context.Background(), credential.Codex)
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected no accounts remaining for codex, got %d", len(remaining))
	}
}

func TestRunLogoutRejectsUnknownProvider(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "tokens.db")
	if err := runLogout([]string{"-store", storePath, "not-a-provider"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestRunLogoutRejectsWrongArgCount(t *testing.T) {
	if err := runLogout([]string{}); err == nil {
		t.Fatalf("expected usage error with no provider argument")
	}
}

func TestRunAmpPrintsLoginURL(t *testing.T) {
	if err := runAmp(nil); err != nil {
		t.Fatalf("runAmp: %v", err)
	}
}
