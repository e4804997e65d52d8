// Package authmanager serves a valid credential on demand, coordinating at
// most one concurrent refresh per (provider, account) and honoring a 30
// second refresh cooldown to avoid stampeding a provider during an outage.
package authmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	log "github.com/sirupsen/logrus"

	"github.com/AprilNEA/BYOKEY/internal/byokeyerr"
	"github.com/AprilNEA/BYOKEY/internal/clock"
	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/store"
)

// CooldownWindow is the minimum interval between refresh attempts for a
// single (provider, account) key.
const CooldownWindow = 30 * time.Second

type key struct {
	provider  credential.ProviderId
	accountID string
}

func (k key) String() string { return fmt.Sprintf("%s:%s", k.provider, k.accountID) }

type cooldownEntry struct {
	attemptedAt time.Time
	cred        credential.Credential
	err         error
}

// Manager is the Auth Manager. One Manager instance is shared process-wide;
// its cache map uses a read-write lock (the design notes' "many readers,
// writer only when inserting") and per-key refresh calls are collapsed by
// golang.org/x/sync/singleflight, the idiomatic equivalent of the per-key
// mutex map the component design calls for.
type Manager struct {
	store       store.TokenStore
	clock       clock.Clock
	refreshers  map[credential.ProviderId]RefreshFunc

	mu        sync.RWMutex
	cooldowns map[key]*cooldownEntry

	sg singleflight.Group
}

// New constructs a Manager backed by s, using clk as its time source and
// refreshers for the provider-specific refresh calls.
func New(s store.TokenStore, clk clock.Clock, refreshers map[credential.ProviderId]RefreshFunc) *Manager {
	return &Manager{
		store:      s,
		clock:      clk,
		refreshers: refreshers,
		cooldowns:  make(map[key]*cooldownEntry),
	}
}

// Acquire returns a credential for provider, guaranteed non-expired at the
// moment of return, or a typed failure. apiKeyOverride, when non-empty, is
// a configuration-declared api_key that short-circuits the store entirely:
// ApiKey credentials are virtual and are never persisted or refreshed.
func (m *Manager) Acquire(ctx context.Context, provider credential.ProviderId, sel Selector, apiKeyOverride string) (credential.Credential, string, error) {
	if apiKeyOverride != "" {
		return credential.NewAPIKey(apiKeyOverride), "", nil
	}

	accountID, err := sel.resolve(ctx, m.store, provider, m.clock, m.isCoolingDownWithError(provider))
	if err != nil {
		return credential.Credential{}, "", byokeyerr.Wrap(byokeyerr.KindNotAuthenticated, err, "no usable account for provider %s", provider)
	}

	rec, err := m.store.Get(ctx, provider, accountID)
	if err != nil {
		return credential.Credential{}, "", byokeyerr.Wrap(byokeyerr.KindNotAuthenticated, err, "credential not found for %s/%s", provider, accountID)
	}

	cred, err := m.ensureValid(ctx, provider, rec.Account, rec.Credential)
	if err != nil {
		return credential.Credential{}, "", err
	}
	return cred, accountID, nil
}

// ForceRefresh re-authenticates accountID against provider even though the
// locally cached credential does not look expired, for the case where the
// upstream itself rejected it (executor.CredentialExpired). It is the
// dispatcher's one-retry-after-refresh path from spec step 5: "On
// CredentialExpired, AuthManager.refresh then retry once."
func (m *Manager) ForceRefresh(ctx context.Context, provider credential.ProviderId, accountID string) (credential.Credential, error) {
	rec, err := m.store.Get(ctx, provider, accountID)
	if err != nil {
		return credential.Credential{}, byokeyerr.Wrap(byokeyerr.KindNotAuthenticated, err, "credential not found for %s/%s", provider, accountID)
	}
	if rec.Credential.Kind == credential.KindAPIKey {
		return rec.Credential, nil
	}

	refresher, ok := m.refreshers[provider]
	if !ok {
		return credential.Credential{}, byokeyerr.New(byokeyerr.KindInternal, "no refresher registered for provider %s", provider)
	}

	k := key{provider: provider, accountID: accountID}
	v, err, _ := m.sg.Do(k.String(), func() (any, error) {
		return m.doRefresh(ctx, provider, rec.Account, rec.Credential, refresher)
	})
	if err != nil {
		return credential.Credential{}, err
	}
	return v.(credential.Credential), nil
}

func (m *Manager) ensureValid(ctx context.Context, provider credential.ProviderId, account credential.Account, cred credential.Credential) (credential.Credential, error) {
	accountID := account.AccountID
	now := m.clock.Now()

	if cred.Kind == credential.KindAPIKey {
		return cred, nil
	}
	if !cred.Expired(now) {
		return cred, nil
	}
	if cred.NotAuthenticated(now) {
		return credential.Credential{}, byokeyerr.New(byokeyerr.KindNotAuthenticated, "%s/%s: token expired with no refresh token", provider, accountID)
	}

	k := key{provider: provider, accountID: accountID}

	if entry := m.cachedCooldown(k); entry != nil && now.Sub(entry.attemptedAt) < CooldownWindow {
		if entry.err != nil {
			return credential.Credential{}, entry.err
		}
		return entry.cred, nil
	}

	refresher, ok := m.refreshers[provider]
	if !ok {
		return credential.Credential{}, byokeyerr.New(byokeyerr.KindInternal, "no refresher registered for provider %s", provider)
	}

	v, err, _ := m.sg.Do(k.String(), func() (any, error) {
		return m.doRefresh(ctx, provider, account, cred, refresher)
	})
	if err != nil {
		return credential.Credential{}, err
	}
	return v.(credential.Credential), nil
}

func (m *Manager) cachedCooldown(k key) *cooldownEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cooldowns[k]
}

// isCoolingDownWithError returns a predicate telling a Selector whether an
// account just failed a refresh within CooldownWindow, so round-robin
// routing can skip it in favor of an account that hasn't just errored.
func (m *Manager) isCoolingDownWithError(provider credential.ProviderId) func(accountID string) bool {
	return func(accountID string) bool {
		entry := m.cachedCooldown(key{provider: provider, accountID: accountID})
		if entry == nil || entry.err == nil {
			return false
		}
		return m.clock.Now().Sub(entry.attemptedAt) < CooldownWindow
	}
}

// doRefresh performs the provider refresh call and records the result in
// the cooldown cache whether it succeeds or fails, so a sequential caller
// within the cooldown window reuses this outcome without hitting the
// provider again.
func (m *Manager) doRefresh(ctx context.Context, provider credential.ProviderId, account credential.Account, cred credential.Credential, refresher RefreshFunc) (credential.Credential, error) {
	accountID := account.AccountID
	k := key{provider: provider, accountID: accountID}
	attemptedAt := m.clock.Now()

	newCred, err := refresher(ctx, cred)

	entry := &cooldownEntry{attemptedAt: attemptedAt}
	if err != nil {
		re, _ := err.(*RefreshError)
		if re != nil && re.Outcome == RefreshHardFailure {
			log.Warnf("authmanager: %s/%s refresh rejected, marking not authenticated: %v", provider, accountID, err)
			cred.RefreshToken = ""
			cred.ExpiresAt = &attemptedAt
			revoked := account
			revoked.LastRefreshedAt = attemptedAt
			if putErr := m.store.Put(ctx, store.Record{Account: revoked, Credential: cred}); putErr != nil {
				log.Warnf("authmanager: failed to persist revoked state for %s/%s: %v", provider, accountID, putErr)
			}
			entry.err = byokeyerr.Wrap(byokeyerr.KindNotAuthenticated, err, "%s/%s: re-authentication required", provider, accountID)
		} else {
			log.Warnf("authmanager: %s/%s refresh failed transiently: %v", provider, accountID, err)
			entry.err = byokeyerr.Wrap(byokeyerr.KindTransientAuth, err, "%s/%s: transient refresh failure", provider, accountID)
		}
		m.mu.Lock()
		m.cooldowns[k] = entry
		m.mu.Unlock()
		return credential.Credential{}, entry.err
	}

	// Google-style OAuth omits refresh_token on a refreshed response; the
	// prior one remains valid and must be preserved.
	if newCred.RefreshToken == "" {
		newCred.RefreshToken = cred.RefreshToken
	}

	updated := account
	updated.LastRefreshedAt = attemptedAt
	if err := m.store.Put(ctx, store.Record{Account: updated, Credential: newCred}); err != nil {
		log.Warnf("authmanager: failed to persist refreshed credential for %s/%s: %v", provider, accountID, err)
	}

	entry.cred = newCred
	m.mu.Lock()
	m.cooldowns[k] = entry
	m.mu.Unlock()
	return newCred, nil
}
