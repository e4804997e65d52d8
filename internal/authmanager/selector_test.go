package authmanager

import (
	"context"
	"testing"
	"time"

	"github.com/AprilNEA/BYOKEY/internal/clock"
	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/store"
)

func putAccount(t *testing.T, s store.TokenStore, id string, lastUsed time.Time) {
	t.Helper()
	err := s.Put(context.Background(), store.Record{
		Account:    credential.Account{Provider: credential.Gemini, AccountID: id, LastUsedAt: lastUsed},
		Credential: credential.NewAPIKey("k-" + id),
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
}

func TestRoundRobinPicksOldestLastUsed(t *testing.T) {
	s := store.NewMemory()
	now := time.Now()
	putAccount(t, s, "b", now.Add(-time.Minute))
	putAccount(t, s, "a", now.Add(-time.Hour))
	putAccount(t, s, "c", now)

	id, err := (RoundRobinSelector{}).resolve(context.Background(), s, credential.Gemini, clock.Real{}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "a" {
		t.Fatalf("id = %q, want %q (oldest last_used)", id, "a")
	}
}

func TestRoundRobinTiesBrokenLexicographically(t *testing.T) {
	s := store.NewMemory()
	same := time.Now()
	putAccount(t, s, "z", same)
	putAccount(t, s, "a", same)

	id, err := (RoundRobinSelector{}).resolve(context.Background(), s, credential.Gemini, clock.Real{}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "a" {
		t.Fatalf("id = %q, want %q", id, "a")
	}
}

func TestRoundRobinSkipsNotAuthenticated(t *testing.T) {
	s := store.NewMemory()
	past := time.Now().Add(-time.Hour)
	_ = s.Put(context.Background(), store.Record{
		Account:    credential.Account{Provider: credential.Gemini, AccountID: "dead", LastUsedAt: past.Add(-time.Hour)},
		Credential: credential.Credential{Kind: credential.KindOAuthToken, ExpiresAt: &past}, // no refresh token -> NotAuthenticated
	})
	putAccount(t, s, "alive", past)

	id, err := (RoundRobinSelector{}).resolve(context.Background(), s, credential.Gemini, clock.Real{}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "alive" {
		t.Fatalf("id = %q, want %q", id, "alive")
	}
}

func TestRoundRobinSkipsCoolingDownAccount(t *testing.T) {
	s := store.NewMemory()
	now := time.Now()
	putAccount(t, s, "cooling", now.Add(-time.Hour))
	putAccount(t, s, "ready", now)

	isCoolingDown := func(accountID string) bool { return accountID == "cooling" }

	id, err := (RoundRobinSelector{}).resolve(context.Background(), s, credential.Gemini, clock.Real{}, isCoolingDown)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "ready" {
		t.Fatalf("id = %q, want %q (cooling-down account should be skipped despite older last_used)", id, "ready")
	}
}

func TestActiveSelectorSingleAccountDegrades(t *testing.T) {
	s := store.NewMemory()
	putAccount(t, s, "only", time.Now())

	id, err := (ActiveSelector{}).resolve(context.Background(), s, credential.Gemini, clock.Real{}, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id != "only" {
		t.Fatalf("id = %q, want %q", id, "only")
	}
}
