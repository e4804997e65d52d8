package oauth

import (
	"context"
	"fmt"
	"net/url"

	"github.com/AprilNEA/BYOKEY/internal/clock"
	"github.com/AprilNEA/BYOKEY/internal/httpclient"
)

// OOBPasteFlow implements the authorization-code-with-out-of-band-paste
// variant used by iFlow: the browser flow shows the user a code which they
// copy back into the caller (CLI/tray, out of scope here). SubmitCode
// delivers that pasted value; Finish blocks until it arrives.
type OOBPasteFlow struct {
	Provider  string
	Endpoints Endpoints
	Client    httpclient.Client
	Clock     clock.Clock
	// Exchange performs the provider-specific token exchange for the pasted
	// code. iFlow authenticates that exchange with HTTP Basic Auth and then
	// swaps the resulting OAuth access_token for an API key via a second,
	// Bearer-authenticated call; those quirks live in the Exchange func
	// supplied by the caller.
	Exchange func(ctx context.Context, code string) (tokenResponse, error)

	codeCh chan string
}

func NewOOBPasteFlow(provider string, endpoints Endpoints, client httpclient.Client, clk clock.Clock, exchange func(ctx context.Context, code string) (tokenResponse, error)) *OOBPasteFlow {
	return &OOBPasteFlow{Provider: provider, Endpoints: endpoints, Client: client, Clock: clk, Exchange: exchange, codeCh: make(chan string, 1)}
}

func (f *OOBPasteFlow) Start(ctx context.Context) (StartResult, error) {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", f.Endpoints.ClientID)
	if len(f.Endpoints.Scopes) > 0 {
		q.Set("scope", joinScopes(f.Endpoints.Scopes))
	}
	return StartResult{AuthURL: f.Endpoints.AuthURL + "?" + q.Encode()}, nil
}

// SubmitCode delivers the code the user pasted back from the browser. It
// must be called at most once; a second call is dropped silently since
// only the first pasted code can win the race with Finish.
func (f *OOBPasteFlow) SubmitCode(code string) {
	select {
	case f.codeCh <- code:
	default:
	}
}

func (f *OOBPasteFlow) Finish(ctx context.Context) (Result, error) {
	var code string
	select {
	case code = <-f.codeCh:
	case <-ctx.Done():
		return Result{}, &FlowError{Kind: UserCanceled, Provider: f.Provider, Cause: ctx.Err()}
	}
	if code == "" {
		return Result{}, &FlowError{Kind: MalformedResponse, Provider: f.Provider, Cause: fmt.Errorf("empty pasted code")}
	}

	tr, err := f.Exchange(ctx, code)
	if err != nil {
		return Result{}, err
	}
	accountID, label := deriveAccountID(tr.IDToken, tr.RefreshToken)
	return Result{Credential: credentialFromToken(tr, f.Clock), AccountID: accountID, Label: label}, nil
}
