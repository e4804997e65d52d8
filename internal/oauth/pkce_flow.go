package oauth

import (
	"context"
	"fmt"
	"net/url"

	"github.com/AprilNEA/BYOKEY/internal/clock"
	"github.com/AprilNEA/BYOKEY/internal/httpclient"
)

// Endpoints names the URLs and client identity a flow exchanges tokens
// against. Populated per provider by the caller (config or a compiled-in
// provider table); the flow engine itself is provider-agnostic.
type Endpoints struct {
	AuthURL       string
	TokenURL      string
	DeviceAuthURL string
	ClientID      string
	ClientSecret  string
	Scopes        []string
	RedirectHost  string // not read by any flow: the redirect URI is always http://127.0.0.1:<port>/callback
}

// PKCELoopbackFlow implements the authorization-code+PKCE-with-local-
// loopback variant used by Claude, Codex, Gemini, and Antigravity.
type PKCELoopbackFlow struct {
	Provider  string
	Endpoints Endpoints
	Client    httpclient.Client
	Clock     clock.Clock

	verifier string
	state    string
	listener *loopbackListener
}

func NewPKCELoopbackFlow(provider string, endpoints Endpoints, client httpclient.Client, clk clock.Clock) *PKCELoopbackFlow {
	return &PKCELoopbackFlow{Provider: provider, Endpoints: endpoints, Client: client, Clock: clk}
}

func (f *PKCELoopbackFlow) Start(ctx context.Context) (StartResult, error) {
	verifier, err := newVerifier()
	if err != nil {
		return StartResult{}, &FlowError{Kind: MalformedResponse, Provider: f.Provider, Cause: err}
	}
	state, err := newState()
	if err != nil {
		return StartResult{}, &FlowError{Kind: MalformedResponse, Provider: f.Provider, Cause: err}
	}
	ll, err := newLoopbackListener()
	if err != nil {
		return StartResult{}, &FlowError{Kind: NetworkError, Provider: f.Provider, Cause: err}
	}

	f.verifier = verifier
	f.state = state
	f.listener = ll

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", f.Endpoints.ClientID)
	q.Set("redirect_uri", ll.RedirectURI())
	q.Set("state", state)
	q.Set("code_challenge", challengeFromVerifier(verifier))
	q.Set("code_challenge_method", "S256")
	if len(f.Endpoints.Scopes) > 0 {
		q.Set("scope", joinScopes(f.Endpoints.Scopes))
	}

	return StartResult{AuthURL: f.Endpoints.AuthURL + "?" + q.Encode()}, nil
}

func (f *PKCELoopbackFlow) Finish(ctx context.Context) (Result, error) {
	if f.listener == nil {
		return Result{}, &FlowError{Kind: MalformedResponse, Provider: f.Provider, Cause: fmt.Errorf("Finish called before Start")}
	}
	defer f.listener.Close()

	cb, err := f.listener.Await(ctx)
	if err != nil {
		return Result{}, err
	}
	if cb.err != nil {
		return Result{}, cb.err
	}
	if cb.state != f.state {
		return Result{}, &FlowError{Kind: StateMismatch, Provider: f.Provider}
	}
	if cb.code == "" {
		return Result{}, &FlowError{Kind: MalformedResponse, Provider: f.Provider}
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", cb.code)
	form.Set("redirect_uri", f.listener.RedirectURI())
	form.Set("client_id", f.Endpoints.ClientID)
	form.Set("code_verifier", f.verifier)

	tr, err := postForm(ctx, f.Client, f.Provider, f.Endpoints.TokenURL, form, "", "")
	if err != nil {
		return Result{}, err
	}

	accountID, label := deriveAccountID(tr.IDToken, tr.RefreshToken)
	return Result{
		Credential: credentialFromToken(tr, f.Clock),
		AccountID:  accountID,
		Label:      label,
	}, nil
}

func joinScopes(scopes []string) string {
	out := ""
	for i, s := range scopes {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}
