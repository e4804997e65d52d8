package main

import (
	"errors"
	"os"
	"testing"

	"github.com/AprilNEA/BYOKEY/internal/credential"
)

func TestExitCodeForMapsExitError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{userErr("bad flag"), exitUserError},
		{authErr(errors.New("rejected")), exitAuthFailure},
		{bindErr(errors.New("addr in use")), exitServerBindFailure},
		{errors.New("plain"), exitUserError},
	}
	for _, c := range cases {
		if got := exitCodeFor(c.err); got != c.want {
			t.Errorf("exitCodeFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestExitErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := bindErr(cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected bindErr to wrap its cause")
	}
}

func TestDefaultConfigPathHonorsEnvOverride(t *testing.T) {
	t.Setenv("BYOKEY_CONFIG", "/tmp/custom-settings.json")
	if got := defaultConfigPath(); got != "/tmp/custom-settings.json" {
		t.Errorf("defaultConfigPath() = %q, want override", got)
	}
}

func TestDefaultStorePathHonorsEnvOverride(t *testing.T) {
	t.Setenv("BYOKEY_STORE", "/tmp/custom-tokens.db")
	if got := defaultStorePath(); got != "/tmp/custom-tokens.db" {
		t.Errorf("defaultStorePath() = %q, want override", got)
	}
}

func TestDefaultConfigPathFallsBackUnderUserConfigDir(t *testing.T) {
	os.Unsetenv("BYOKEY_CONFIG")
	dir, err := os.UserConfigDir()
	if err != nil {
		t.Skip("no user config dir on this platform")
	}
	got := defaultConfigPath()
	want := dir + "/byokey/settings.json"
	if got != want {
		t.Errorf("defaultConfigPath() = %q, want %q", got, want)
	}
}

func TestIsKnownProvider(t *testing.T) {
	if !isKnownProvider(credential.Claude) {
		t.Errorf("expected claude to be known")
	}
	if isKnownProvider(credential.ProviderId("not-a-provider")) {
		t.Errorf("expected made-up provider id to be unknown")
	}
}

func TestKnownProvidersHasNineEntries(t *testing.T) {
	if got := len(knownProviders()); got != 9 {
		t.Errorf("knownProviders() returned %d entries, want 9", got)
	}
}
