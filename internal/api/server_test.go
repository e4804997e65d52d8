package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AprilNEA/BYOKEY/internal/authmanager"
	"github.com/AprilNEA/BYOKEY/internal/clock"
	"github.com/AprilNEA/BYOKEY/internal/config"
	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/dialect"
	"github.com/AprilNEA/BYOKEY/internal/dispatcher"
	"github.com/AprilNEA/BYOKEY/internal/executor"
	"github.com/AprilNEA/BYOKEY/internal/registry"
	"github.com/AprilNEA/BYOKEY/internal/store"
)

const anthropicOKBody = `{"model":"claude-3-7-sonnet","role":"assistant","content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`

type fakeExecutor struct {
	id      credential.ProviderId
	dialect dialect.Dialect
	body    string
}

func (f *fakeExecutor) Identifier() credential.ProviderId { return f.id }
func (f *fakeExecutor) NativeDialect() dialect.Dialect    { return f.dialect }

func (f *fakeExecutor) Do(ctx context.Context, cred credential.Credential, req executor.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(strings.NewReader(f.body)),
		Header:     make(http.Header),
	}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{
		Providers: map[credential.ProviderId]*config.ProviderConfig{
			credential.Claude: {},
		},
	}
	snap := config.NewSnapshot(cfg)
	reg := registry.Build(cfg, map[credential.ProviderId][]string{
		credential.Claude: {"claude-3-7-sonnet"},
	})

	mem := store.NewMemory()
	clk := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err := mem.Put(context.Background(), store.Record{
		Account:    credential.Account{Provider: credential.Claude, AccountID: "acct-1", IsActive: true},
		Credential: credential.Credential{Kind: credential.KindOAuthToken, AccessToken: "tok"},
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	auth := authmanager.New(mem, clk, map[credential.ProviderId]authmanager.RefreshFunc{})
	execs := map[credential.ProviderId]executor.Executor{
		credential.Claude: &fakeExecutor{id: credential.Claude, dialect: dialect.Anthropic, body: anthropicOKBody},
	}
	disp := dispatcher.New(snap, auth, execs, mem, clk, reg)
	return NewServer(snap, disp)
}

func TestHandleChatCompletionsNonStreaming(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"model":"claude-3-7-sonnet","messages":[{"role":"user","content":"hi"}]}`)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := out["choices"]; !ok {
		t.Fatalf("expected openai-shaped choices: %s", rec.Body.String())
	}
}

func TestHandleChatCompletionsUnknownModelReturns404(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"model":"no-such-model","messages":[{"role":"user","content":"hi"}]}`)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("status = %d, want 404, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHandleListModels(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data, _ := out["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("expected exactly 1 registered model, got %v", out["data"])
	}
}

func TestHandleGeminiNativeSplitsModelAndAction(t *testing.T) {
	model, action := splitModelAction("gemini-2.0-flash:streamGenerateContent")
	if model != "gemini-2.0-flash" || action != "streamGenerateContent" {
		t.Fatalf("model=%q action=%q", model, action)
	}
}

func TestHandleAmpLoginRedirects(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/amp/v1/login", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://ampcode.com/login" {
		t.Fatalf("Location = %q", loc)
	}
}
