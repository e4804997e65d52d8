package authmanager

import (
	"context"

	"github.com/AprilNEA/BYOKEY/internal/credential"
)

// RefreshOutcome distinguishes a hard failure (credential unrecoverable,
// re-authentication required) from a soft failure (transient, retry later)
// per the refresh protocol.
type RefreshOutcome int

const (
	// RefreshHardFailure means the refresh token was rejected outright
	// (400/401 from the token endpoint, or the provider has no refresh
	// capability at all) — the credential is unrecoverable without a fresh
	// login.
	RefreshHardFailure RefreshOutcome = iota
	// RefreshSoftFailure means a transient condition (5xx, network error)
	// prevented the refresh; the existing credential state is left
	// unchanged and the caller should retry after the cooldown.
	RefreshSoftFailure
)

// RefreshError wraps a refresh failure with its outcome classification.
type RefreshError struct {
	Outcome RefreshOutcome
	Cause   error
}

func (e *RefreshError) Error() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	if e.Outcome == RefreshHardFailure {
		return "refresh rejected, re-authentication required"
	}
	return "refresh failed transiently"
}

func (e *RefreshError) Unwrap() error { return e.Cause }

// RefreshFunc performs the provider-specific token-endpoint call. It must
// preserve cred.RefreshToken when the token response omits a new one
// (Google-style OAuth behavior); the Manager also restores the previous
// refresh token whenever the returned credential carries none.
type RefreshFunc func(ctx context.Context, cred credential.Credential) (credential.Credential, error)

// NotSupported returns a RefreshFunc for providers with no refresh
// capability at all (iFlow): every call is a hard failure telling the
// caller to re-authenticate.
func NotSupported(provider string) RefreshFunc {
	return func(ctx context.Context, cred credential.Credential) (credential.Credential, error) {
		return credential.Credential{}, &RefreshError{Outcome: RefreshHardFailure, Cause: errNotSupported{provider}}
	}
}

type errNotSupported struct{ provider string }

func (e errNotSupported) Error() string {
	return e.provider + ": refresh not supported, please re-authenticate"
}
