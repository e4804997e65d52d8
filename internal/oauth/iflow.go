package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/AprilNEA/BYOKEY/internal/httpclient"
)

// NewIFlowExchange builds the OOBPasteFlow.Exchange for iFlow: the pasted
// authorization code is exchanged for an OAuth access_token using HTTP
// Basic Auth (client_id:client_secret), then that access_token is traded
// for a long-lived API key via a second call — iFlow's executor uses the
// API key, not the OAuth token, for chat requests.
func NewIFlowExchange(endpoints Endpoints, client httpclient.Client, apiKeyURL string) func(ctx context.Context, code string) (tokenResponse, error) {
	return func(ctx context.Context, code string) (tokenResponse, error) {
		form := url.Values{}
		form.Set("grant_type", "authorization_code")
		form.Set("code", code)

		tr, err := postForm(ctx, client, "iflow", endpoints.TokenURL, form, endpoints.ClientID, endpoints.ClientSecret)
		if err != nil {
			return tokenResponse{}, err
		}

		apiKey, err := exchangeIFlowAPIKey(ctx, client, apiKeyURL, tr.AccessToken)
		if err != nil {
			return tokenResponse{}, err
		}
		// The API key rides in AccessToken so credentialFromToken's shape is
		// reused unchanged; iFlow's stored credential is effectively an
		// ApiKey-shaped OAuthToken (its executor sends it as a bearer key
		// and never refreshes it the normal OAuth way).
		tr.AccessToken = apiKey
		tr.ExpiresIn = 0
		return tr, nil
	}
}

func exchangeIFlowAPIKey(ctx context.Context, client httpclient.Client, apiKeyURL, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiKeyURL, nil)
	if err != nil {
		return "", &FlowError{Kind: MalformedResponse, Provider: "iflow", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", &FlowError{Kind: NetworkError, Provider: "iflow", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", &FlowError{Kind: NetworkError, Provider: "iflow", Cause: err}
	}
	if resp.StatusCode/100 != 2 {
		return "", &FlowError{Kind: UpstreamRejected, Provider: "iflow", Code: fmt.Sprintf("http_%d", resp.StatusCode), BodyExcerpt: excerpt(body)}
	}

	var out struct {
		APIKey string `json:"api_key"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.APIKey == "" {
		return "", &FlowError{Kind: MalformedResponse, Provider: "iflow", BodyExcerpt: excerpt(body)}
	}
	return out.APIKey, nil
}
