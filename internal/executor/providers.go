package executor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/dialect"
	"github.com/AprilNEA/BYOKEY/internal/httpclient"
)

// bearerAuth sets a plain "Authorization: Bearer <token>" header, using the
// credential's APIKey when present and AccessToken otherwise — the shape
// every OpenAI-compatible upstream in the pack (Codex, Qwen, Kimi, iFlow)
// shares.
func bearerAuth(httpReq *http.Request, cred credential.Credential) {
	httpReq.Header.Set("Authorization", "Bearer "+bearerToken(cred))
}

func bearerToken(cred credential.Credential) string {
	if cred.Kind == credential.KindAPIKey {
		return cred.APIKey
	}
	return cred.AccessToken
}

// NewCodexExecutor talks OpenAI's own chat-completions API, the format
// Codex (ChatGPT's coding backend) natively speaks.
// Grounded on original_source/crates/provider/src/codex.rs's API_URL.
func NewCodexExecutor(client httpclient.Client) *HTTPExecutor {
	const apiURL = "https://api.openai.com/v1/chat/completions"
	return NewHTTPExecutor(credential.Codex, dialect.OpenAI, client,
		func(credential.Credential, Request) string { return apiURL },
		bearerAuth,
	)
}

// NewQwenExecutor talks Qwen's OpenAI-compatible endpoint. Grounded on
// original_source/crates/provider/src/qwen.rs's API_URL.
func NewQwenExecutor(client httpclient.Client) *HTTPExecutor {
	const apiURL = "https://portal.qwen.ai/v1/chat/completions"
	return NewHTTPExecutor(credential.Qwen, dialect.OpenAI, client,
		func(credential.Credential, Request) string { return apiURL },
		bearerAuth,
	)
}

// NewKimiExecutor talks Kimi's OpenAI-compatible coding endpoint. Grounded
// on original_source/crates/provider/src/kimi.rs's API_URL.
func NewKimiExecutor(client httpclient.Client) *HTTPExecutor {
	const apiURL = "https://api.kimi.com/coding/v1/chat/completions"
	return NewHTTPExecutor(credential.Kimi, dialect.OpenAI, client,
		func(credential.Credential, Request) string { return apiURL },
		bearerAuth,
	)
}

// NewIFlowExecutor talks iFlow's OpenAI-compatible endpoint, authenticating
// with the long-lived API key the OAuth flow traded the access token for
// (internal/oauth/iflow.go stores it as AccessToken). Grounded on
// original_source/crates/provider/src/iflow.rs's API_URL.
func NewIFlowExecutor(client httpclient.Client) *HTTPExecutor {
	const apiURL = "https://apis.iflow.cn/v1/chat/completions"
	return NewHTTPExecutor(credential.IFlow, dialect.OpenAI, client,
		func(credential.Credential, Request) string { return apiURL },
		bearerAuth,
	)
}

// NewCopilotExecutor talks GitHub Copilot's chat-completions API. Grounded
// on original_source/crates/provider/src/copilot.rs (editor-version,
// editor-plugin-version headers) and internal/oauth/copilot.go, which
// stashes the Copilot session endpoint in cred.Extras["endpoint"] when the
// GitHub device-code token was swapped for a Copilot session.
func NewCopilotExecutor(client httpclient.Client) *HTTPExecutor {
	const defaultAPIURL = "https://api.githubcopilot.com/chat/completions"
	return NewHTTPExecutor(credential.Copilot, dialect.OpenAI, client,
		func(cred credential.Credential, _ Request) string {
			if ep := cred.Extras["endpoint"]; ep != "" {
				return ep + "/chat/completions"
			}
			return defaultAPIURL
		},
		func(httpReq *http.Request, cred credential.Credential) {
			httpReq.Header.Set("Authorization", "Bearer "+bearerToken(cred))
			httpReq.Header.Set("Editor-Version", "vscode/1.95.0")
			httpReq.Header.Set("Editor-Plugin-Version", "copilot-chat/0.22.0")
		},
	)
}

// NewKiroExecutor talks Kiro's Anthropic-compatible Messages API.
// Grounded on original_source/crates/provider/src/kiro.rs (Anthropic
// dialect, anthropic-version header, Bearer auth only — Kiro has no
// x-api-key mode).
func NewKiroExecutor(client httpclient.Client) *HTTPExecutor {
	const apiURL = "https://api.kiro.dev/v1/messages"
	const anthropicVersion = "2023-06-01"
	return NewHTTPExecutor(credential.Kiro, dialect.Anthropic, client,
		func(credential.Credential, Request) string { return apiURL },
		func(httpReq *http.Request, cred credential.Credential) {
			httpReq.Header.Set("Authorization", "Bearer "+bearerToken(cred))
			httpReq.Header.Set("anthropic-version", anthropicVersion)
		},
	)
}

// NewClaudeExecutor talks Anthropic's own Messages API, switching between
// x-api-key (plain API keys) and Authorization: Bearer (OAuth access
// tokens) the way claude_executor.go's PrepareRequest does, plus the
// anthropic-version/anthropic-beta headers Claude requires.
func NewClaudeExecutor(client httpclient.Client) *HTTPExecutor {
	const apiURL = "https://api.anthropic.com/v1/messages?beta=true"
	const anthropicVersion = "2023-06-01"
	const betas = "claude-code-20250219,oauth-2025-04-20,interleaved-thinking-2025-05-14,fine-grained-tool-streaming-2025-05-14,prompt-caching-2024-07-31"
	return NewHTTPExecutor(credential.Claude, dialect.Anthropic, client,
		func(credential.Credential, Request) string { return apiURL },
		func(httpReq *http.Request, cred credential.Credential) {
			httpReq.Header.Set("anthropic-version", anthropicVersion)
			httpReq.Header.Set("anthropic-beta", betas)
			if cred.Kind == credential.KindAPIKey {
				httpReq.Header.Set("x-api-key", cred.APIKey)
				return
			}
			httpReq.Header.Set("Authorization", "Bearer "+cred.AccessToken)
		},
	)
}

// NewGeminiExecutor talks Google's native generateContent API, switching
// between x-goog-api-key (plain API keys) and Authorization: Bearer (OAuth
// access tokens) per original_source/crates/provider/src/gemini.rs's
// auth_header split; the request path carries the model and action, so
// the URLBuilder reads req.Model rather than a fixed constant.
func NewGeminiExecutor(client httpclient.Client) *HTTPExecutor {
	return NewHTTPExecutor(credential.Gemini, dialect.Gemini, client,
		func(cred credential.Credential, req Request) string {
			action := "generateContent"
			if req.Stream {
				action = "streamGenerateContent?alt=sse"
			}
			return fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:%s", req.Model, action)
		},
		func(httpReq *http.Request, cred credential.Credential) {
			if cred.Kind == credential.KindAPIKey {
				httpReq.Header.Set("x-goog-api-key", cred.APIKey)
				return
			}
			httpReq.Header.Set("Authorization", "Bearer "+cred.AccessToken)
		},
	)
}

// antigravityURLs holds the Cloud Code primary/sandbox hosts, tried in
// order. Grounded on original_source/crates/provider/src/antigravity.rs's
// PRIMARY_URL/FALLBACK_URL pair.
var antigravityURLs = [2]string{
	"https://daily-cloudcode-pa.googleapis.com",
	"https://daily-cloudcode-pa.sandbox.googleapis.com",
}

func antigravityAuth(httpReq *http.Request, cred credential.Credential) {
	httpReq.Header.Set("Authorization", "Bearer "+bearerToken(cred))
	httpReq.Header.Set("User-Agent", "antigravity/1.104.0 darwin/arm64")
}

func antigravityAction(req Request) string {
	if req.Stream {
		return "streamGenerateContent?alt=sse"
	}
	return "generateContent"
}

// AntigravityExecutor talks the Cloud Code ("Antigravity") backend, which
// wraps a Gemini-shaped body behind a custom envelope. It does not use the
// generic HTTPExecutor because antigravity.rs retries the sandbox host on
// a network error or HTTP 429 from the primary host — a per-provider
// failover no other provider in the pack needs.
type AntigravityExecutor struct {
	client httpclient.Client
}

// NewAntigravityExecutor constructs an AntigravityExecutor.
func NewAntigravityExecutor(client httpclient.Client) *AntigravityExecutor {
	return &AntigravityExecutor{client: client}
}

func (e *AntigravityExecutor) Identifier() credential.ProviderId { return credential.Antigravity }
func (e *AntigravityExecutor) NativeDialect() dialect.Dialect    { return dialect.Gemini }

// Do tries the primary Cloud Code host first, then the sandbox host on a
// transport error or HTTP 429 from the primary, matching antigravity.rs's
// failover behavior.
func (e *AntigravityExecutor) Do(ctx context.Context, cred credential.Credential, req Request) (*http.Response, error) {
	var lastErr error
	for i, base := range antigravityURLs {
		url := fmt.Sprintf("%s/v1beta/models/%s:%s", base, req.Model, antigravityAction(req))
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(req.Body))
		if err != nil {
			return nil, fmt.Errorf("executor: antigravity: build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		antigravityAuth(httpReq, cred)

		httpResp, err := e.client.Do(httpReq)
		if err != nil {
			lastErr = err
			continue
		}
		if httpResp.StatusCode == http.StatusTooManyRequests && i < len(antigravityURLs)-1 {
			_ = httpResp.Body.Close()
			continue
		}
		if httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden {
			_ = httpResp.Body.Close()
			return nil, &CredentialExpired{Provider: credential.Antigravity, Status: httpResp.StatusCode}
		}
		decoded, err := decodeResponseBody(httpResp.Body, httpResp.Header.Get("Content-Encoding"))
		if err != nil {
			_ = httpResp.Body.Close()
			return nil, fmt.Errorf("executor: antigravity: decode response: %w", err)
		}
		httpResp.Body = decoded
		return httpResp, nil
	}
	return nil, fmt.Errorf("executor: antigravity: all hosts failed: %w", lastErr)
}
