package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/AprilNEA/BYOKEY/internal/authmanager"
	"github.com/AprilNEA/BYOKEY/internal/byokeyerr"
	"github.com/AprilNEA/BYOKEY/internal/clock"
	"github.com/AprilNEA/BYOKEY/internal/config"
	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/dialect"
	"github.com/AprilNEA/BYOKEY/internal/executor"
	"github.com/AprilNEA/BYOKEY/internal/registry"
	"github.com/AprilNEA/BYOKEY/internal/store"
)

// fakeExecutor is a scripted executor.Executor: each call pops the next
// canned response/error pair, recording every request it was given.
type fakeExecutor struct {
	id       credential.ProviderId
	dialect  dialect.Dialect
	calls    []executor.Request
	creds    []credential.Credential
	step     int
	statuses []int
	bodies   []string
	errs     []error
}

func (f *fakeExecutor) Identifier() credential.ProviderId { return f.id }
func (f *fakeExecutor) NativeDialect() dialect.Dialect    { return f.dialect }

func (f *fakeExecutor) Do(ctx context.Context, cred credential.Credential, req executor.Request) (*http.Response, error) {
	f.calls = append(f.calls, req)
	f.creds = append(f.creds, cred)
	i := f.step
	f.step++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	status := 200
	if i < len(f.statuses) {
		status = f.statuses[i]
	}
	body := "{}"
	if i < len(f.bodies) {
		body = f.bodies[i]
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}, nil
}

const anthropicOKBody = `{"model":"claude-3-7-sonnet","role":"assistant","content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`

func newFixture(t *testing.T, exec *fakeExecutor, refreshers map[credential.ProviderId]authmanager.RefreshFunc) (*Dispatcher, *store.Memory, *clock.Fixed) {
	t.Helper()

	cfg := &config.Config{
		Providers: map[credential.ProviderId]*config.ProviderConfig{
			credential.Claude: {
				ModelAliases: map[string]string{"fast-model": "claude-3-7-sonnet"},
			},
		},
	}
	snap := config.NewSnapshot(cfg)

	reg := registry.Build(cfg, map[credential.ProviderId][]string{
		credential.Claude: {"claude-3-7-sonnet"},
	})

	mem := store.NewMemory()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	if err := mem.Put(context.Background(), store.Record{
		Account: credential.Account{Provider: credential.Claude, AccountID: "acct-1", IsActive: true},
		Credential: credential.Credential{
			Kind:        credential.KindOAuthToken,
			AccessToken: "tok-1",
		},
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	if refreshers == nil {
		refreshers = map[credential.ProviderId]authmanager.RefreshFunc{}
	}
	auth := authmanager.New(mem, clk, refreshers)

	executors := map[credential.ProviderId]executor.Executor{credential.Claude: exec}
	d := New(snap, auth, executors, mem, clk, reg)
	return d, mem, clk
}

func TestDispatchResolvesAliasAndTranslatesDialects(t *testing.T) {
	exec := &fakeExecutor{id: credential.Claude, dialect: dialect.Anthropic, bodies: []string{anthropicOKBody}}
	d, _, _ := newFixture(t, exec, nil)

	body := []byte(`{"model":"fast-model","messages":[{"role":"user","content":"hi"}]}`)
	res, err := d.Dispatch(context.Background(), DispatchRequest{DialectIn: dialect.OpenAI, Body: body})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(exec.calls) != 1 {
		t.Fatalf("expected exactly one executor call, got %d", len(exec.calls))
	}
	var sent map[string]any
	if err := json.Unmarshal(exec.calls[0].Body, &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if sent["model"] != "claude-3-7-sonnet" {
		t.Fatalf("upstream model = %v, want resolved alias", sent["model"])
	}

	var out map[string]any
	if err := json.Unmarshal(res.Body, &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	choices, _ := out["choices"].([]any)
	if len(choices) == 0 {
		t.Fatalf("expected openai-shaped choices in response: %s", res.Body)
	}
}

func TestDispatchAppliesThinkingSuffix(t *testing.T) {
	exec := &fakeExecutor{id: credential.Claude, dialect: dialect.Anthropic, bodies: []string{anthropicOKBody}}
	d, _, _ := newFixture(t, exec, nil)

	body := []byte(`{"model":"claude-3-7-sonnet-thinking-high","messages":[{"role":"user","content":"hi"}]}`)
	_, err := d.Dispatch(context.Background(), DispatchRequest{DialectIn: dialect.OpenAI, Body: body})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	var sent map[string]any
	if err := json.Unmarshal(exec.calls[0].Body, &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if sent["model"] != "claude-3-7-sonnet" {
		t.Fatalf("thinking suffix should have been stripped from upstream model, got %v", sent["model"])
	}
	thinking, _ := sent["thinking"].(map[string]any)
	if thinking == nil {
		t.Fatalf("expected thinking block in upstream request: %v", sent)
	}
	if budget, _ := thinking["budget_tokens"].(float64); int(budget) != 32768 {
		t.Fatalf("budget_tokens = %v, want 32768 for -thinking-high", thinking["budget_tokens"])
	}
}

func TestDispatchRefreshesOnceOnCredentialExpiredThenSucceeds(t *testing.T) {
	exec := &fakeExecutor{
		id:       credential.Claude,
		dialect:  dialect.Anthropic,
		errs:     []error{&executor.CredentialExpired{Provider: credential.Claude, Status: 401}, nil},
		bodies:   []string{"", anthropicOKBody},
		statuses: []int{0, 200},
	}
	refreshCalls := 0
	refreshers := map[credential.ProviderId]authmanager.RefreshFunc{
		credential.Claude: func(ctx context.Context, cred credential.Credential) (credential.Credential, error) {
			refreshCalls++
			cred.AccessToken = "tok-2"
			return cred, nil
		},
	}
	d, _, _ := newFixture(t, exec, refreshers)

	body := []byte(`{"model":"claude-3-7-sonnet","messages":[{"role":"user","content":"hi"}]}`)
	res, err := d.Dispatch(context.Background(), DispatchRequest{DialectIn: dialect.OpenAI, Body: body})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if refreshCalls != 1 {
		t.Fatalf("refreshCalls = %d, want 1", refreshCalls)
	}
	if len(exec.calls) != 2 {
		t.Fatalf("expected 2 executor calls (original + retry), got %d", len(exec.calls))
	}
	if exec.creds[1].AccessToken != "tok-2" {
		t.Fatalf("retry should use refreshed credential, got %+v", exec.creds[1])
	}
	if res == nil {
		t.Fatalf("expected a result after successful retry")
	}
}

func TestDispatchFailsAfterSecondRejectionPostRefresh(t *testing.T) {
	exec := &fakeExecutor{
		id:      credential.Claude,
		dialect: dialect.Anthropic,
		errs: []error{
			&executor.CredentialExpired{Provider: credential.Claude, Status: 401},
			&executor.CredentialExpired{Provider: credential.Claude, Status: 401},
		},
	}
	refreshers := map[credential.ProviderId]authmanager.RefreshFunc{
		credential.Claude: func(ctx context.Context, cred credential.Credential) (credential.Credential, error) {
			cred.AccessToken = "tok-2"
			return cred, nil
		},
	}
	d, _, _ := newFixture(t, exec, refreshers)

	body := []byte(`{"model":"claude-3-7-sonnet","messages":[{"role":"user","content":"hi"}]}`)
	_, err := d.Dispatch(context.Background(), DispatchRequest{DialectIn: dialect.OpenAI, Body: body})
	if err == nil {
		t.Fatalf("expected an error after the retry also fails")
	}
	if len(exec.calls) != 2 {
		t.Fatalf("expected exactly 2 executor calls (no further retries), got %d", len(exec.calls))
	}
}

func TestDispatchPropagatesUpstreamErrorStatus(t *testing.T) {
	exec := &fakeExecutor{id: credential.Claude, dialect: dialect.Anthropic, statuses: []int{429}, bodies: []string{`{"error":"rate limited"}`}}
	d, _, _ := newFixture(t, exec, nil)

	body := []byte(`{"model":"claude-3-7-sonnet","messages":[{"role":"user","content":"hi"}]}`)
	_, err := d.Dispatch(context.Background(), DispatchRequest{DialectIn: dialect.OpenAI, Body: body})
	if err == nil {
		t.Fatalf("expected an error for a 429 upstream response")
	}
	be, ok := err.(*byokeyerr.Error)
	if !ok {
		t.Fatalf("err = %T, want *byokeyerr.Error", err)
	}
	if be.UpstreamStatus != 429 {
		t.Fatalf("UpstreamStatus = %d, want 429", be.UpstreamStatus)
	}
}

func TestDispatchRejectsUnknownModel(t *testing.T) {
	exec := &fakeExecutor{id: credential.Claude, dialect: dialect.Anthropic}
	d, _, _ := newFixture(t, exec, nil)

	body := []byte(`{"model":"no-such-model","messages":[{"role":"user","content":"hi"}]}`)
	_, err := d.Dispatch(context.Background(), DispatchRequest{DialectIn: dialect.OpenAI, Body: body})
	if !byokeyerr.IsKind(err, byokeyerr.KindModelUnknown) {
		t.Fatalf("err = %v, want ModelUnknown", err)
	}
	if len(exec.calls) != 0 {
		t.Fatalf("executor should not have been called for an unresolved model")
	}
}

func TestDispatchRecordsLastUsedOnSuccess(t *testing.T) {
	exec := &fakeExecutor{id: credential.Claude, dialect: dialect.Anthropic, bodies: []string{anthropicOKBody}}
	d, mem, clk := newFixture(t, exec, nil)
	clk.Advance(time.Hour)

	body := []byte(`{"model":"claude-3-7-sonnet","messages":[{"role":"user","content":"hi"}]}`)
	if _, err := d.Dispatch(context.Background(), DispatchRequest{DialectIn: dialect.OpenAI, Body: body}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	rec, err := mem.Get(context.Background(), credential.Claude, "acct-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.Account.LastUsedAt.Equal(clk.Now()) {
		t.Fatalf("LastUsedAt = %v, want %v", rec.Account.LastUsedAt, clk.Now())
	}
}

func TestDispatchStreamPumpsUpstreamEventsInOrder(t *testing.T) {
	sseBody := "event: message_start\n" +
		"data: {\"type\":\"message_start\",\"message\":{\"id\":\"m1\",\"model\":\"claude-3-7-sonnet\"}}\n\n" +
		"event: content_block_start\n" +
		"data: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"hi\"}}\n\n" +
		"event: content_block_stop\n" +
		"data: {\"type\":\"content_block_stop\",\"index\":0}\n\n" +
		"event: message_delta\n" +
		"data: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":1}}\n\n" +
		"event: message_stop\n" +
		"data: {\"type\":\"message_stop\"}\n\n"

	exec := &fakeExecutor{id: credential.Claude, dialect: dialect.Anthropic, bodies: []string{sseBody}}
	d, _, _ := newFixture(t, exec, nil)

	var out bytes.Buffer
	body := []byte(`{"model":"claude-3-7-sonnet","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	err := d.DispatchStream(context.Background(), DispatchRequest{DialectIn: dialect.OpenAI, Body: body}, &out)
	if err != nil {
		t.Fatalf("DispatchStream: %v", err)
	}
	if !exec.calls[0].Stream {
		t.Fatalf("expected Stream=true on the upstream request")
	}
	if !strings.Contains(out.String(), "\"hi\"") && !strings.Contains(out.String(), "hi") {
		t.Fatalf("expected delta text to reach downstream output, got %q", out.String())
	}
	if !strings.Contains(out.String(), "[DONE]") && !strings.Contains(out.String(), "stop") {
		t.Fatalf("expected a terminal marker in downstream output, got %q", out.String())
	}
}
