// Package oauth drives each provider's login ceremony to completion,
// yielding a credential.Credential plus a derived account id and label.
//
// Flows are polymorphic over a {Start, Finish} capability pair rather than
// an inheritance tree: PKCE+loopback, device-code, device-code+PKCE hybrid,
// and out-of-band paste each implement Flow, and provider-specific quirks
// (Copilot's token swap, iFlow's basic-auth exchange, Qwen's hybrid
// challenge) live inside their own Flow value rather than in shared
// conditional logic. FetchBootstrap fetches and caches a client id/secret
// pair on its own; it is not a Flow, and BuildFlow does not call it.
package oauth

import (
	"context"
	"time"

	"github.com/AprilNEA/BYOKEY/internal/credential"
)

// StartResult is what the caller (CLI/tray — out of scope here, consumed
// as an interface) shows the user: either a URL to open in a browser, or a
// user/device code pair to display.
type StartResult struct {
	AuthURL         string
	DeviceCode      string
	UserCode        string
	VerificationURI string
	Interval        time.Duration
	ExpiresAt       time.Time
}

// Result is the successful outcome of a completed flow.
type Result struct {
	Credential credential.Credential
	AccountID  string
	Label      string
}

// Flow is the capability contract every login ceremony implements.
// Start begins the ceremony and returns what to show the user. Finish
// blocks (polling or waiting for a redirect, per variant) until the
// ceremony completes, the caller cancels ctx, or the provider rejects it.
type Flow interface {
	Start(ctx context.Context) (StartResult, error)
	Finish(ctx context.Context) (Result, error)
}
