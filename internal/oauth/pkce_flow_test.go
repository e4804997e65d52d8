package oauth

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/AprilNEA/BYOKEY/internal/clock"
)

func TestPKCELoopbackFlowStateMismatchRejected(t *testing.T) {
	client := &fakeClient{}
	f := NewPKCELoopbackFlow("claude", Endpoints{AuthURL: "https://example/auth", TokenURL: "https://example/token", ClientID: "cid"}, client, clock.NewFixed(time.Now()))

	start, err := f.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if start.AuthURL == "" {
		t.Fatal("expected non-empty auth URL")
	}

	// Simulate a callback with the wrong state by talking directly to the
	// loopback listener's redirect URI.
	redirectURI := f.listener.RedirectURI()
	go func() {
		u, _ := url.Parse(redirectURI)
		q := u.Query()
		q.Set("code", "abc")
		q.Set("state", "wrong-state")
		u.RawQuery = q.Encode()
		resp, err := http.Get(u.String())
		if err == nil {
			resp.Body.Close()
		}
	}()

	_, err = f.Finish(context.Background())
	fe, ok := err.(*FlowError)
	if !ok || fe.Kind != StateMismatch {
		t.Fatalf("err = %v, want StateMismatch", err)
	}
}

func TestPKCELoopbackFlowSuccess(t *testing.T) {
	client := &fakeClient{responses: []fakeResponse{
		{status: 200, body: `{"access_token":"AT","refresh_token":"RT","expires_in":3600}`},
	}}
	now := time.Now()
	f := NewPKCELoopbackFlow("codex", Endpoints{AuthURL: "https://example/auth", TokenURL: "https://example/token", ClientID: "cid"}, client, clock.NewFixed(now))

	start, err := f.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = start

	redirectURI := f.listener.RedirectURI()
	state := f.state
	go func() {
		u, _ := url.Parse(redirectURI)
		q := u.Query()
		q.Set("code", "goodcode")
		q.Set("state", state)
		u.RawQuery = q.Encode()
		resp, err := http.Get(u.String())
		if err == nil {
			resp.Body.Close()
		}
	}()

	res, err := f.Finish(context.Background())
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if res.Credential.AccessToken != "AT" || res.Credential.RefreshToken != "RT" {
		t.Fatalf("unexpected credential: %+v", res.Credential)
	}
	if res.Credential.ExpiresAt == nil || !res.Credential.ExpiresAt.Equal(now.Add(3600*time.Second)) {
		t.Fatalf("unexpected expiry: %+v", res.Credential.ExpiresAt)
	}
}
