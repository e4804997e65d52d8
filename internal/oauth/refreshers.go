package oauth

import (
	"context"
	"net/url"
	"time"

	"github.com/AprilNEA/BYOKEY/internal/authmanager"
	"github.com/AprilNEA/BYOKEY/internal/clock"
	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/httpclient"
)

// BuildRefreshers constructs the per-provider authmanager.RefreshFunc map
// the Auth Manager needs, one function per credential.ProviderId BuildFlow
// knows how to authenticate. Providers whose upstream issues a real OAuth2
// refresh_token (Claude, Codex, Gemini, Antigravity, Kiro, Qwen, Kimi) share
// genericRefresh against endpoints[provider].TokenURL; Copilot re-exchanges
// the GitHub access token stashed in Extras for a new session instead
// (per copilot.go's own "refreshed lazily" design); iFlow's stored
// credential is a long-lived API key with no refresh grant at all, per
// iflow.go's NewIFlowExchange comment, so it reports a hard failure asking
// the caller to re-authenticate.
func BuildRefreshers(endpoints map[credential.ProviderId]Endpoints, client httpclient.Client, clk clock.Clock) map[credential.ProviderId]authmanager.RefreshFunc {
	out := make(map[credential.ProviderId]authmanager.RefreshFunc, 9)
	for _, p := range []credential.ProviderId{
		credential.Claude, credential.Codex, credential.Gemini, credential.Antigravity,
		credential.Kiro, credential.Qwen, credential.Kimi,
	} {
		ep := endpoints[p]
		out[p] = genericRefresh(string(p), ep, client, clk)
	}
	out[credential.Copilot] = copilotRefresh(client)
	out[credential.IFlow] = authmanager.NotSupported(string(credential.IFlow))
	return out
}

// genericRefresh performs a standard grant_type=refresh_token exchange.
// It preserves cred.RefreshToken when the token endpoint's response omits
// one, per RefreshFunc's documented contract (Google-style providers only
// rotate the refresh token occasionally).
func genericRefresh(provider string, ep Endpoints, client httpclient.Client, clk clock.Clock) authmanager.RefreshFunc {
	return func(ctx context.Context, cred credential.Credential) (credential.Credential, error) {
		if cred.RefreshToken == "" {
			return credential.Credential{}, &authmanager.RefreshError{Outcome: authmanager.RefreshHardFailure, Cause: errNoRefreshToken{provider}}
		}

		form := url.Values{}
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", cred.RefreshToken)
		if ep.ClientID != "" {
			form.Set("client_id", ep.ClientID)
		}

		tr, err := postForm(ctx, client, provider, ep.TokenURL, form, "", "")
		if err != nil {
			return credential.Credential{}, classifyRefreshErr(err)
		}

		next := credentialFromToken(tr, clk)
		if next.RefreshToken == "" {
			next.RefreshToken = cred.RefreshToken
		}
		return next, nil
	}
}

// copilotRefresh re-runs the GitHub-token-to-Copilot-session exchange using
// the GitHub access token exchangeCopilotSession stashed in Extras at login
// time; GitHub's own token does not expire on the timescale Copilot
// sessions do, so this is a re-exchange rather than a refresh-token grant.
func copilotRefresh(client httpclient.Client) authmanager.RefreshFunc {
	return func(ctx context.Context, cred credential.Credential) (credential.Credential, error) {
		githubToken := cred.Extras["github_token"]
		if githubToken == "" {
			return credential.Credential{}, &authmanager.RefreshError{Outcome: authmanager.RefreshHardFailure, Cause: errNoRefreshToken{"copilot"}}
		}
		session, err := exchangeCopilotSession(ctx, client, githubToken)
		if err != nil {
			return credential.Credential{}, classifyRefreshErr(err)
		}
		next := cred
		next.AccessToken = session.token
		if session.expiresAtUnix > 0 {
			t := time.Unix(session.expiresAtUnix, 0)
			next.ExpiresAt = &t
		}
		if next.Extras == nil {
			next.Extras = map[string]string{}
		}
		next.Extras["endpoint"] = session.endpoint
		return next, nil
	}
}

func classifyRefreshErr(err error) error {
	fe, ok := err.(*FlowError)
	if !ok {
		return &authmanager.RefreshError{Outcome: authmanager.RefreshSoftFailure, Cause: err}
	}
	switch fe.Kind {
	case UpstreamRejected:
		return &authmanager.RefreshError{Outcome: authmanager.RefreshHardFailure, Cause: fe}
	default:
		return &authmanager.RefreshError{Outcome: authmanager.RefreshSoftFailure, Cause: fe}
	}
}

type errNoRefreshToken struct{ provider string }

func (e errNoRefreshToken) Error() string {
	return e.provider + ": no refresh token on file, please re-authenticate"
}
