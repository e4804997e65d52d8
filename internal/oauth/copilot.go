package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AprilNEA/BYOKEY/internal/clock"
	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/httpclient"
)

const (
	copilotTokenExchangeURL = "https://api.github.com/copilot_internal/v2/token"
	githubUserURL           = "https://api.github.com/user"
)

// NewCopilotPostProcess builds the DeviceCodeFlow.PostProcess for Copilot:
// after the GitHub device-code exchange yields a GitHub access token, it is
// swapped for a Copilot session (bearer token + API endpoint hint) via a
// second call, and the account id is derived from GitHub's /user login
// rather than an id_token (GitHub's device flow issues none). Copilot's
// per-request endpoint-hint expiry is undocumented; it is treated as opaque
// and refreshed lazily on first failure rather than proactively tracked.
func NewCopilotPostProcess(client httpclient.Client, clk clock.Clock) PostProcess {
	return func(ctx context.Context, tr tokenResponse) (Result, error) {
		githubToken := tr.AccessToken

		session, err := exchangeCopilotSession(ctx, client, githubToken)
		if err != nil {
			return Result{}, err
		}

		login, err := githubLogin(ctx, client, githubToken)
		if err != nil {
			return Result{}, err
		}

		var expiresAt *time.Time
		if session.expiresAtUnix > 0 {
			t := time.Unix(session.expiresAtUnix, 0)
			expiresAt = &t
		}

		return Result{
			Credential: credential.Credential{
				Kind:        credential.KindOAuthToken,
				AccessToken: session.token,
				ExpiresAt:   expiresAt,
				Extras:      map[string]string{"endpoint": session.endpoint, "github_token": githubToken},
			},
			AccountID: login,
		}, nil
	}
}

type copilotSessionResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds, per Copilot's own endpoint
	Endpoints struct {
		API string `json:"api"`
	} `json:"endpoints"`
}

type copilotSession struct {
	token         string
	endpoint      string
	expiresAtUnix int64
}

func exchangeCopilotSession(ctx context.Context, client httpclient.Client, githubToken string) (copilotSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, copilotTokenExchangeURL, nil)
	if err != nil {
		return copilotSession{}, &FlowError{Kind: MalformedResponse, Provider: "copilot", Cause: err}
	}
	req.Header.Set("Authorization", "token "+githubToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return copilotSession{}, &FlowError{Kind: NetworkError, Provider: "copilot", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return copilotSession{}, &FlowError{Kind: NetworkError, Provider: "copilot", Cause: err}
	}
	if resp.StatusCode/100 != 2 {
		return copilotSession{}, &FlowError{Kind: UpstreamRejected, Provider: "copilot", Code: fmt.Sprintf("http_%d", resp.StatusCode), BodyExcerpt: excerpt(body)}
	}

	var sr copilotSessionResponse
	if err := json.Unmarshal(body, &sr); err != nil || sr.Token == "" {
		return copilotSession{}, &FlowError{Kind: MalformedResponse, Provider: "copilot", BodyExcerpt: excerpt(body)}
	}
	return copilotSession{token: sr.Token, endpoint: sr.Endpoints.API, expiresAtUnix: sr.ExpiresAt}, nil
}

func githubLogin(ctx context.Context, client httpclient.Client, githubToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, githubUserURL, nil)
	if err != nil {
		return "", &FlowError{Kind: MalformedResponse, Provider: "copilot", Cause: err}
	}
	req.Header.Set("Authorization", "token "+githubToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return "", &FlowError{Kind: NetworkError, Provider: "copilot", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", &FlowError{Kind: NetworkError, Provider: "copilot", Cause: err}
	}
	if resp.StatusCode/100 != 2 {
		return "", &FlowError{Kind: UpstreamRejected, Provider: "copilot", Code: fmt.Sprintf("http_%d", resp.StatusCode), BodyExcerpt: excerpt(body)}
	}

	var user struct {
		Login string `json:"login"`
	}
	if err := json.Unmarshal(body, &user); err != nil || user.Login == "" {
		return "", &FlowError{Kind: MalformedResponse, Provider: "copilot", BodyExcerpt: excerpt(body)}
	}
	return user.Login, nil
}
