// Package credential defines the provider/credential/account data model
// shared by the store, the auth manager, and the executors.
package credential

import (
	"encoding/json"
	"time"
)

// ProviderId identifies an upstream. The set is closed: executors and the
// model registry switch exhaustively over it.
type ProviderId string

const (
	Claude     ProviderId = "claude"
	Codex      ProviderId = "codex"
	Copilot    ProviderId = "copilot"
	Gemini     ProviderId = "gemini"
	Kiro       ProviderId = "kiro"
	Antigravity ProviderId = "antigravity"
	Qwen       ProviderId = "qwen"
	Kimi       ProviderId = "kimi"
	IFlow      ProviderId = "iflow"
)

// AllProviders lists the closed ProviderId set, used by the registry and CLI
// for validation and enumeration.
var AllProviders = []ProviderId{Claude, Codex, Copilot, Gemini, Kiro, Antigravity, Qwen, Kimi, IFlow}

// Valid reports whether p is one of the known providers.
func (p ProviderId) Valid() bool {
	for _, v := range AllProviders {
		if v == p {
			return true
		}
	}
	return false
}

// Kind discriminates the Credential variant.
type Kind int

const (
	KindAbsent Kind = iota
	KindAPIKey
	KindOAuthToken
)

// Credential is the tagged union described by the data model: Absent,
// ApiKey, or OAuthToken. Only one of the Kind-specific fields is meaningful
// at a time; callers must switch on Kind.
type Credential struct {
	Kind Kind

	// ApiKey fields.
	APIKey string

	// OAuthToken fields.
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time // nil means no known expiry: Expired() reports false for it.
	IDToken      string
	// Extras carries provider-specific hints: Copilot's endpoint URL,
	// Kiro's session region, etc. Values are opaque strings.
	Extras map[string]string

	// Unknown holds any credential_blob fields the store's decoder didn't
	// recognize (a future schema version's addition, or a field this
	// binary predates). Carried opaquely so a read-modify-write by an
	// older binary doesn't drop it.
	Unknown json.RawMessage
}

// Absent returns the zero credential meaning "no credential known".
func Absent() Credential { return Credential{Kind: KindAbsent} }

// NewAPIKey wraps a configuration-supplied key. ApiKey credentials never
// expire and are never mutated by the auth manager.
func NewAPIKey(key string) Credential {
	return Credential{Kind: KindAPIKey, APIKey: key}
}

// Expired reports whether an OAuthToken credential's expiry instant has
// passed as of now. ApiKey and Absent are never "expired" in this sense;
// callers must check Kind separately for NotAuthenticated handling.
func (c Credential) Expired(now time.Time) bool {
	if c.Kind != KindOAuthToken {
		return false
	}
	if c.ExpiresAt == nil {
		return false
	}
	return now.After(*c.ExpiresAt)
}

// NotAuthenticated reports whether this credential can never be used again
// without a fresh login: it is Absent, or it is an expired OAuthToken with
// no refresh_token to recover with.
func (c Credential) NotAuthenticated(now time.Time) bool {
	switch c.Kind {
	case KindAbsent:
		return true
	case KindOAuthToken:
		return c.Expired(now) && c.RefreshToken == ""
	default:
		return false
	}
}

// Account identifies one stored credential slot for a provider.
type Account struct {
	Provider  ProviderId
	AccountID string
	Label     string
	IsActive  bool

	CreatedAt        time.Time
	LastRefreshedAt  time.Time
	LastUsedAt       time.Time
}

// RequestFingerprint tags a single dispatched request for usage counting and
// tracing.
type RequestFingerprint struct {
	Provider  ProviderId
	AccountID string
	Streaming bool
}
