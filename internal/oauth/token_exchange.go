package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/httpclient"
)

// tokenResponse is the common shape of an OAuth2 token endpoint response.
// Extra fields providers add are preserved in Raw for extras derivation.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`

	Raw map[string]any `json:"-"`
}

// postForm POSTs application/x-www-form-urlencoded form to tokenURL and
// decodes a tokenResponse, classifying non-2xx and malformed bodies into
// the FlowError taxonomy.
func postForm(ctx context.Context, client httpclient.Client, provider, tokenURL string, form url.Values, basicUser, basicPass string) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, &FlowError{Kind: MalformedResponse, Provider: provider, Cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if basicUser != "" {
		req.SetBasicAuth(basicUser, basicPass)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return tokenResponse{}, &FlowError{Kind: Timeout, Provider: provider, Cause: ctx.Err()}
		}
		return tokenResponse{}, &FlowError{Kind: NetworkError, Provider: provider, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return tokenResponse{}, &FlowError{Kind: NetworkError, Provider: provider, Cause: err}
	}

	var tr tokenResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &tr); err != nil {
			return tokenResponse{}, &FlowError{Kind: MalformedResponse, Provider: provider, BodyExcerpt: excerpt(body), Cause: err}
		}
		_ = json.Unmarshal(body, &tr.Raw)
	}

	if resp.StatusCode/100 != 2 || tr.Error != "" {
		code := tr.Error
		if code == "" {
			code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		return tokenResponse{}, &FlowError{Kind: UpstreamRejected, Provider: provider, Code: code, BodyExcerpt: tr.ErrorDesc}
	}
	if tr.AccessToken == "" {
		return tokenResponse{}, &FlowError{Kind: MalformedResponse, Provider: provider, BodyExcerpt: excerpt(body)}
	}
	return tr, nil
}

func excerpt(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max]
	}
	return s
}

func (tr tokenResponse) expiresAt(now time.Time) *time.Time {
	if tr.ExpiresIn <= 0 {
		return nil
	}
	t := now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	return &t
}

// credentialFromToken builds an OAuthToken credential from a token endpoint
// response, using clk for the expiry-instant computation.
func credentialFromToken(tr tokenResponse, clk clockNow) credential.Credential {
	return credential.Credential{
		Kind:         credential.KindOAuthToken,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		IDToken:      tr.IDToken,
		ExpiresAt:    tr.expiresAt(clk.Now()),
	}
}

// clockNow is the minimal seam credentialFromToken needs; clock.Clock
// satisfies it.
type clockNow interface {
	Now() time.Time
}
