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

	"github.com/AprilNEA/BYOKEY/internal/clock"
	"github.com/AprilNEA/BYOKEY/internal/httpclient"
)

const (
	defaultDeviceInterval = 5 * time.Second
	slowDownIncrement     = 5 * time.Second
)

type deviceAuthResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int64  `json:"expires_in"`
	Interval        int64  `json:"interval"`
}

// PostProcess lets a provider transform the raw token response into the
// final Result — e.g. Copilot swaps the GitHub access token for a Copilot
// endpoint hint via a second call and derives the account id from GitHub's
// /user endpoint instead of an id_token.
type PostProcess func(ctx context.Context, tr tokenResponse) (Result, error)

// DeviceCodeFlow implements the device-code variant used by Copilot, Kiro,
// and Kimi. When PKCEChallenge is set, it implements the device-code+PKCE
// hybrid used by Qwen instead.
type DeviceCodeFlow struct {
	Provider      string
	Endpoints     Endpoints
	Client        httpclient.Client
	Clock         clock.Clock
	PostProcess   PostProcess
	PKCEChallenge bool

	deviceCode string
	verifier   string
	interval   time.Duration
}

func NewDeviceCodeFlow(provider string, endpoints Endpoints, client httpclient.Client, clk clock.Clock, post PostProcess) *DeviceCodeFlow {
	return &DeviceCodeFlow{Provider: provider, Endpoints: endpoints, Client: client, Clock: clk, PostProcess: post}
}

func (f *DeviceCodeFlow) Start(ctx context.Context) (StartResult, error) {
	form := url.Values{}
	form.Set("client_id", f.Endpoints.ClientID)
	if len(f.Endpoints.Scopes) > 0 {
		form.Set("scope", joinScopes(f.Endpoints.Scopes))
	}
	if f.PKCEChallenge {
		verifier, err := newVerifier()
		if err != nil {
			return StartResult{}, &FlowError{Kind: MalformedResponse, Provider: f.Provider, Cause: err}
		}
		f.verifier = verifier
		form.Set("code_challenge", challengeFromVerifier(verifier))
		form.Set("code_challenge_method", "S256")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Endpoints.DeviceAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return StartResult{}, &FlowError{Kind: MalformedResponse, Provider: f.Provider, Cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return StartResult{}, &FlowError{Kind: NetworkError, Provider: f.Provider, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return StartResult{}, &FlowError{Kind: NetworkError, Provider: f.Provider, Cause: err}
	}
	if resp.StatusCode/100 != 2 {
		return StartResult{}, &FlowError{Kind: UpstreamRejected, Provider: f.Provider, Code: fmt.Sprintf("http_%d", resp.StatusCode), BodyExcerpt: excerpt(body)}
	}

	var dar deviceAuthResponse
	if err := json.Unmarshal(body, &dar); err != nil || dar.DeviceCode == "" {
		return StartResult{}, &FlowError{Kind: MalformedResponse, Provider: f.Provider, BodyExcerpt: excerpt(body)}
	}

	f.deviceCode = dar.DeviceCode
	f.interval = defaultDeviceInterval
	if dar.Interval > 0 {
		f.interval = time.Duration(dar.Interval) * time.Second
	}

	now := f.Clock.Now()
	return StartResult{
		DeviceCode:      dar.DeviceCode,
		UserCode:        dar.UserCode,
		VerificationURI: dar.VerificationURI,
		Interval:        f.interval,
		ExpiresAt:       now.Add(time.Duration(dar.ExpiresIn) * time.Second),
	}, nil
}

func (f *DeviceCodeFlow) Finish(ctx context.Context) (Result, error) {
	if f.deviceCode == "" {
		return Result{}, &FlowError{Kind: MalformedResponse, Provider: f.Provider, Cause: fmt.Errorf("Finish called before Start")}
	}

	interval := f.interval
	for {
		select {
		case <-ctx.Done():
			return Result{}, &FlowError{Kind: UserCanceled, Provider: f.Provider, Cause: ctx.Err()}
		case <-f.Clock.After(interval):
		}

		form := url.Values{}
		form.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")
		form.Set("device_code", f.deviceCode)
		form.Set("client_id", f.Endpoints.ClientID)
		if f.PKCEChallenge {
			form.Set("code_verifier", f.verifier)
		}

		tr, err := postForm(ctx, f.Client, f.Provider, f.Endpoints.TokenURL, form, "", "")
		if err == nil {
			if f.PostProcess != nil {
				return f.PostProcess(ctx, tr)
			}
			accountID, label := deriveAccountID(tr.IDToken, tr.RefreshToken)
			return Result{Credential: credentialFromToken(tr, f.Clock), AccountID: accountID, Label: label}, nil
		}

		var flowErr *FlowError
		if fe, ok := err.(*FlowError); ok {
			flowErr = fe
		}
		if flowErr == nil || flowErr.Kind != UpstreamRejected {
			return Result{}, err
		}
		switch flowErr.Code {
		case "authorization_pending":
			continue
		case "slow_down":
			interval += slowDownIncrement
			continue
		case "access_denied":
			return Result{}, &FlowError{Kind: UserCanceled, Provider: f.Provider}
		case "expired_token":
			return Result{}, &FlowError{Kind: Timeout, Provider: f.Provider, Code: "expired_token"}
		default:
			return Result{}, flowErr
		}
	}
}
