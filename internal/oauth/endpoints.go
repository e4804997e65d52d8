package oauth

import "github.com/AprilNEA/BYOKEY/internal/credential"

// DefaultEndpoints returns the compiled-in Endpoints table pkce_flow.go's
// own doc comment anticipates ("config or a compiled-in provider table").
// URLs, scopes, and (where not redacted upstream) client ids are grounded
// verbatim on original_source/crates/auth/src/{claude,codex,copilot,gemini,
// antigravity,qwen,kimi,iflow,kiro}.rs's CLIENT_ID/AUTH_URL/TOKEN_URL/
// DEVICE_CODE_URL/SCOPES constants. Gemini and Antigravity's own client id
// and secret were redacted in that source (Google restricts redistribution
// of its installed-app OAuth client secrets), and kiro.rs never declared one
// at all — operators must supply BYOKEY_GEMINI_CLIENT_ID/
// BYOKEY_ANTIGRAVITY_CLIENT_ID/BYOKEY_KIRO_CLIENT_ID themselves (see
// cmd/byokey/serve.go's buildEndpoints); a placeholder here would just fail
// at the upstream token endpoint either way.
func DefaultEndpoints() map[credential.ProviderId]Endpoints {
	return map[credential.ProviderId]Endpoints{
		credential.Claude: {
			AuthURL:  "https://claude.ai/oauth/authorize",
			TokenURL: "https://console.anthropic.com/v1/oauth/token",
			ClientID: "9d1c250a-e61b-44d9-88ed-5944d1962f5e",
			Scopes:   []string{"user:profile", "user:inference"},
		},
		credential.Codex: {
			AuthURL:  "https://auth.openai.com/oauth/authorize",
			TokenURL: "https://auth.openai.com/oauth/token",
			ClientID: "app_EMoamEEZ73f0CkXaXp7hrann",
			Scopes:   []string{"openid", "email", "profile", "offline_access"},
		},
		credential.Copilot: {
			DeviceAuthURL: "https://github.com/login/device/code",
			TokenURL:      "https://github.com/login/oauth/access_token",
			ClientID:      "Iv1.b507a08c87ecfe98",
		},
		credential.Gemini: {
			AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
			Scopes:   []string{"openid", "email", "https://www.googleapis.com/auth/generative-language.retriever"},
		},
		credential.Antigravity: {
			AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
			Scopes: []string{
				"openid", "email", "profile",
				"https://www.googleapis.com/auth/cloud-platform",
				"https://www.googleapis.com/auth/userinfo.email",
			},
		},
		credential.Qwen: {
			DeviceAuthURL: "https://chat.qwen.ai/api/v1/oauth2/device/code",
			TokenURL:      "https://chat.qwen.ai/api/v1/oauth2/token",
			ClientID:      "f0304373b74a44d2b584a3fb70ca9e56",
			Scopes:        []string{"openid", "profile", "email", "model.completion"},
		},
		credential.Kimi: {
			DeviceAuthURL: "https://auth.kimi.com/api/oauth/device_authorization",
			TokenURL:      "https://auth.kimi.com/api/oauth/token",
			ClientID:      "17e5f671-d194-4dfb-9706-5516cb48c098",
			Scopes:        []string{"openid", "offline_access"},
		},
		credential.IFlow: {
			AuthURL:  "https://iflow.cn/oauth",
			TokenURL: "https://iflow.cn/oauth/token",
		},
		credential.Kiro: {
			DeviceAuthURL: "https://prod.us-east-1.auth.desktop.kiro.dev/device_authorization",
			TokenURL:      "https://prod.us-east-1.auth.desktop.kiro.dev/token",
		},
	}
}
