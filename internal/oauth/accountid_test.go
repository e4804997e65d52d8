package oauth

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func makeIDToken(sub string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	payload, _ := json.Marshal(map[string]string{"sub": sub})
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func TestDeriveAccountIDPrefersIDTokenSub(t *testing.T) {
	id, label := deriveAccountID(makeIDToken("user-123"), "refresh")
	if id != "user-123" || label != "" {
		t.Fatalf("id=%q label=%q", id, label)
	}
}

func TestDeriveAccountIDFallsBackToRefreshHash(t *testing.T) {
	id1, _ := deriveAccountID("", "refresh-token-value")
	id2, _ := deriveAccountID("", "refresh-token-value")
	if id1 != id2 {
		t.Fatalf("expected deterministic hash, got %q and %q", id1, id2)
	}
	if id1 == "" {
		t.Fatal("expected non-empty id")
	}
}

func TestDeriveAccountIDRandomFallbackHasLabel(t *testing.T) {
	id, label := deriveAccountID("", "")
	if id == "" || label == "" {
		t.Fatalf("expected random id and generated label, got id=%q label=%q", id, label)
	}
}
