// Package dispatcher is the Request Dispatcher: for each inbound call it
// resolves a model to a provider, acquires a credential, translates the
// body into the provider's wire dialect, executes the call, and translates
// the response back — retrying exactly once after a forced refresh when
// the upstream reports the credential as expired.
package dispatcher

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

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

// Dispatcher owns the routing decision and the translate/execute/translate
// round trip. One Dispatcher is shared process-wide; SetRegistry swaps in a
// freshly built Registry without disturbing in-flight requests (they keep
// whatever *registry.Registry they already loaded). The config watcher does
// not call SetRegistry, so aliases, exclusions and enabled flags from a
// reloaded config do not reach the Registry.
type Dispatcher struct {
	cfg       *config.Snapshot
	auth      *authmanager.Manager
	executors map[credential.ProviderId]executor.Executor
	store     store.TokenStore
	clock     clock.Clock
	reg       atomic.Pointer[registry.Registry]
}

// New constructs a Dispatcher. reg is the initial Registry snapshot;
// SetRegistry publishes later ones.
func New(cfg *config.Snapshot, auth *authmanager.Manager, executors map[credential.ProviderId]executor.Executor, s store.TokenStore, clk clock.Clock, reg *registry.Registry) *Dispatcher {
	d := &Dispatcher{cfg: cfg, auth: auth, executors: executors, store: s, clock: clk}
	d.reg.Store(reg)
	return d
}

// SetRegistry publishes a freshly built Registry, taking effect for every
// request dispatched from this point on.
func (d *Dispatcher) SetRegistry(reg *registry.Registry) {
	d.reg.Store(reg)
}

// ListModels returns every enabled, non-excluded model name, for /v1/models.
func (d *Dispatcher) ListModels() []string {
	return d.reg.Load().List()
}

// DispatchRequest is one inbound call, already classified by the API
// layer's route (its wire dialect) but not yet resolved to a provider.
type DispatchRequest struct {
	DialectIn dialect.Dialect
	Body      []byte

	// Model/Stream are read from Body for OpenAI/Anthropic callers (leave
	// zero-valued and Dispatch will peek them); the Gemini native route
	// carries both out-of-band in the URL, so the API handler sets them
	// explicitly there.
	Model  string
	Stream bool
}

// DispatchResult is the outcome of a non-streaming Dispatch call.
type DispatchResult struct {
	Body []byte
}

// PeekModelAndStream extracts the "model"/"stream" fields from an OpenAI
// or Anthropic request body without fully decoding it — both dialects name
// these fields identically at the top level, and gjson's path-addressed
// scalar read is exactly the tool for a peek like this (contrast
// internal/dialect's full tree rebuild, which needs encoding/json instead;
// see DESIGN.md's gjson-vs-encoding/json split).
func PeekModelAndStream(body []byte) (model string, stream bool) {
	return gjson.GetBytes(body, "model").String(), gjson.GetBytes(body, "stream").Bool()
}

// resolved bundles everything Dispatch/DispatchStream need once routing and
// credential acquisition have both succeeded.
type resolved struct {
	provider      credential.ProviderId
	upstreamModel string
	dialectOut    dialect.Dialect
	cred          credential.Credential
	accountID     string
	providerCfg   *config.ProviderConfig
}

// route resolves model+alias+thinking-suffix to a provider and upstream
// model name, and acquires a credential for it. It does not execute
// anything — both Dispatch and DispatchStream share this step before
// branching on streaming vs buffered.
func (d *Dispatcher) route(ctx context.Context, callerModel string) (resolved, dialect.ModelThinkingSuffix, error) {
	cfg := d.cfg.Load()
	reg := d.reg.Load()

	aliased := reg.ResolveAlias(callerModel)
	cleanModel, suffix := dialect.ParseModelSuffix(aliased)

	entry, err := reg.Resolve(cleanModel)
	if err != nil {
		return resolved{}, suffix, err
	}

	effective := entry.Provider
	if backend := cfg.Provider(entry.Provider).Backend; backend != "" {
		effective = backend
	}

	r, err := d.acquireFor(ctx, effective, entry.UpstreamModel, cfg)
	if err != nil {
		providerCfg := cfg.Provider(entry.Provider)
		if providerCfg.Fallback != "" {
			fb, ferr := d.acquireFor(ctx, providerCfg.Fallback, entry.UpstreamModel, cfg)
			if ferr == nil {
				log.Warnf("dispatcher: primary provider %s unavailable, falling back to %s", entry.Provider, providerCfg.Fallback)
				return fb, suffix, nil
			}
		}
		return resolved{}, suffix, err
	}
	return r, suffix, nil
}

func (d *Dispatcher) acquireFor(ctx context.Context, provider credential.ProviderId, upstreamModel string, cfg *config.Config) (resolved, error) {
	providerCfg := cfg.Provider(provider)

	exec, ok := d.executors[provider]
	if !ok {
		return resolved{}, byokeyerr.New(byokeyerr.KindInternal, "no executor registered for provider %s", provider)
	}

	var sel authmanager.Selector = authmanager.ActiveSelector{}
	if providerCfg.MultiAccount {
		sel = authmanager.RoundRobinSelector{}
	}

	cred, accountID, err := d.auth.Acquire(ctx, provider, sel, providerCfg.APIKey)
	if err != nil {
		return resolved{}, err
	}

	return resolved{
		provider:      provider,
		upstreamModel: upstreamModel,
		dialectOut:    exec.NativeDialect(),
		cred:          cred,
		accountID:     accountID,
		providerCfg:   providerCfg,
	}, nil
}

func (d *Dispatcher) translateOut(r resolved, suffix dialect.ModelThinkingSuffix, in *DispatchRequest) ([]byte, error) {
	body, err := dialect.TranslateRequestWithMutation(in.DialectIn, r.dialectOut, in.Model, in.Body, func(req *dialect.Request) {
		req.Model = r.upstreamModel
		dialect.ApplyThinkingSuffix(req, suffix)
	})
	if err != nil {
		return nil, err
	}
	return config.ApplyPayloadRules(body, r.providerCfg.PayloadRules)
}

// Dispatch handles a non-streaming request end to end.
func (d *Dispatcher) Dispatch(ctx context.Context, in DispatchRequest) (*DispatchResult, error) {
	if in.Model == "" && in.DialectIn != dialect.Gemini {
		in.Model, in.Stream = PeekModelAndStream(in.Body)
	}

	r, suffix, err := d.route(ctx, in.Model)
	if err != nil {
		return nil, err
	}

	translated, err := d.translateOut(r, suffix, &in)
	if err != nil {
		return nil, err
	}

	httpResp, err := d.executeWithRetry(ctx, &r, executor.Request{Model: r.upstreamModel, Body: translated, Stream: false})
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, byokeyerr.Wrap(byokeyerr.KindUpstreamError, err, "read upstream response")
	}
	if httpResp.StatusCode >= 400 {
		return nil, &byokeyerr.Error{
			Kind:           byokeyerr.KindUpstreamError,
			Message:        "upstream returned an error",
			UpstreamStatus: httpResp.StatusCode,
			BodyExcerpt:    excerpt(respBody),
		}
	}

	out, err := dialect.TranslateResponse(r.dialectOut, in.DialectIn, r.upstreamModel, respBody)
	if err != nil {
		return nil, byokeyerr.Wrap(byokeyerr.KindInternal, err, "translate response")
	}

	d.touchLastUsed(ctx, r)
	return &DispatchResult{Body: out}, nil
}

// executeWithRetry runs exec.Do, and on CredentialExpired forces exactly
// one refresh-and-retry before giving up, per the dispatcher's step 5.
func (d *Dispatcher) executeWithRetry(ctx context.Context, r *resolved, req executor.Request) (*http.Response, error) {
	exec := d.executors[r.provider]
	resp, err := exec.Do(ctx, r.cred, req)
	if err == nil {
		return resp, nil
	}

	expired, ok := err.(*executor.CredentialExpired)
	if !ok {
		return nil, byokeyerr.Wrap(byokeyerr.KindUpstreamError, err, "%s: executor call failed", r.provider)
	}

	refreshed, rerr := d.auth.ForceRefresh(ctx, r.provider, r.accountID)
	if rerr != nil {
		return nil, rerr
	}
	resp, err = exec.Do(ctx, refreshed, req)
	if err != nil {
		return nil, byokeyerr.Wrap(byokeyerr.KindUpstreamError, err, "%s: retry after refresh failed (original rejection: status %d)", r.provider, expired.Status)
	}
	r.cred = refreshed
	return resp, nil
}

func (d *Dispatcher) touchLastUsed(ctx context.Context, r resolved) {
	rec, err := d.store.Get(ctx, r.provider, r.accountID)
	if err != nil {
		return
	}
	if rec.Credential.Kind == credential.KindAPIKey {
		return
	}
	rec.Account.LastUsedAt = d.clock.Now()
	if err := d.store.Put(ctx, rec); err != nil {
		log.Warnf("dispatcher: failed to record last_used for %s/%s: %v", r.provider, r.accountID, err)
	}
}

// excerpt trims an upstream error body to a size safe to echo back to the
// caller in a domain error's BodyExcerpt.
func excerpt(body []byte) string {
	const max = 2048
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
