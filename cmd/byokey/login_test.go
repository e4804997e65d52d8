package main

import (
	"testing"

	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/oauth"
)

func TestLabelOrAccountPrefersLabel(t *testing.T) {
	a := credential.Account{AccountID: "acct-1", Label: "personal"}
	if got := labelOrAccount(a); got != "personal" {
		t.Errorf("labelOrAccount() = %q, want %q", got, "personal")
	}
}

func TestLabelOrAccountFallsBackToAccountID(t *testing.T) {
	a := credential.Account{AccountID: "acct-1"}
	if got := labelOrAccount(a); got != "acct-1" {
		t.Errorf("labelOrAccount() = %q, want %q", got, "acct-1")
	}
}

func TestRunLoginRejectsUnknownProvider(t *testing.T) {
	if err := runLogin([]string{"not-a-provider"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestRunLoginRejectsWrongArgCount(t *testing.T) {
	if err := runLogin([]string{}); err == nil {
		t.Fatalf("expected usage error with no provider argument")
	}
}

func TestBuildEndpointsAppliesEnvOverrides(t *testing.T) {
	t.Setenv("BYOKEY_GEMINI_CLIENT_ID", "gemini-override")
	t.Setenv("BYOKEY_ANTIGRAVITY_CLIENT_ID", "antigravity-override")
	t.Setenv("BYOKEY_KIRO_CLIENT_ID", "kiro-override")

	endpoints := buildEndpoints()

	if got := endpoints[credential.Gemini].ClientID; got != "gemini-override" {
		t.Errorf("gemini client id = %q, want override", got)
	}
	if got := endpoints[credential.Antigravity].ClientID; got != "antigravity-override" {
		t.Errorf("antigravity client id = %q, want override", got)
	}
	if got := endpoints[credential.Kiro].ClientID; got != "kiro-override" {
		t.Errorf("kiro client id = %q, want override", got)
	}
	if got := endpoints[credential.Claude].ClientID; got == "" {
		t.Errorf("expected claude's compiled-in client id to stay intact")
	}
}

func TestBuildEndpointsCoversEveryKnownProvider(t *testing.T) {
	endpoints := buildEndpoints()
	for _, p := range knownProviders() {
		if _, ok := endpoints[p]; !ok {
			t.Errorf("buildEndpoints() missing entry for provider %s", p)
		}
	}
}

func TestPrintLoginInstructionsDoesNotPanicOnEitherShape(t *testing.T) {
	printLoginInstructions(credential.Claude, oauth.StartResult{AuthURL: "https://example.invalid/authorize"})
	printLoginInstructions(credential.Qwen, oauth.StartResult{UserCode: "ABCD-1234", VerificationURI: "https://example.invalid/device"})
}
