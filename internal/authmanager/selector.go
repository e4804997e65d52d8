package authmanager

import (
	"context"
	"fmt"
	"sort"

	"github.com/AprilNEA/BYOKEY/internal/clock"
	"github.com/AprilNEA/BYOKEY/internal/credential"
	"github.com/AprilNEA/BYOKEY/internal/store"
)

// Selector picks which stored account to use for a provider. isCoolingDown,
// when non-nil, reports whether an account just failed a refresh within the
// cooldown window and should be skipped even though it is not
// NotAuthenticated yet.
type Selector interface {
	resolve(ctx context.Context, s store.TokenStore, provider credential.ProviderId, clk clock.Clock, isCoolingDown func(accountID string) bool) (string, error)
}

// ActiveSelector picks the provider's currently-active account. A provider
// with exactly one account degrades to that account even if none is marked
// active.
type ActiveSelector struct{}

func (ActiveSelector) resolve(ctx context.Context, s store.TokenStore, provider credential.ProviderId, _ clock.Clock, _ func(string) bool) (string, error) {
	accounts, err := s.ListAccounts(ctx, provider)
	if err != nil {
		return "", err
	}
	for _, a := range accounts {
		if a.IsActive {
			return a.AccountID, nil
		}
	}
	if len(accounts) == 1 {
		return accounts[0].AccountID, nil
	}
	return "", fmt.Errorf("authmanager: no active account for provider %q", provider)
}

// SpecificSelector pins acquisition to one named account.
type SpecificSelector struct {
	AccountID string
}

func (sel SpecificSelector) resolve(ctx context.Context, s store.TokenStore, provider credential.ProviderId, _ clock.Clock, _ func(string) bool) (string, error) {
	return sel.AccountID, nil
}

// RoundRobinSelector picks among accounts that are neither NotAuthenticated
// nor cooling down the one with the oldest last_used timestamp, breaking ties by account id.
// Single-account providers degrade to Active automatically since there is
// only one candidate to pick. An account that just failed a refresh and is
// still inside its cooldown window is skipped even if its stored credential
// has not yet crossed into NotAuthenticated, supplementing the spec's plain
// not-authenticated filter with the original implementation's per-account
// error cooldown.
type RoundRobinSelector struct{}

func (RoundRobinSelector) resolve(ctx context.Context, s store.TokenStore, provider credential.ProviderId, clk clock.Clock, isCoolingDown func(string) bool) (string, error) {
	accounts, err := s.ListAccounts(ctx, provider)
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("authmanager: no accounts for provider %q", provider)
	}
	now := clk.Now()
	candidates := make([]credential.Account, 0, len(accounts))
	for _, a := range accounts {
		if isCoolingDown != nil && isCoolingDown(a.AccountID) {
			continue
		}
		rec, err := s.Get(ctx, provider, a.AccountID)
		if err != nil {
			continue
		}
		if rec.Credential.NotAuthenticated(now) {
			continue
		}
		candidates = append(candidates, a)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("authmanager: all accounts for provider %q are unavailable", provider)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].LastUsedAt.Equal(candidates[j].LastUsedAt) {
			return candidates[i].LastUsedAt.Before(candidates[j].LastUsedAt)
		}
		return candidates[i].AccountID < candidates[j].AccountID
	})
	return candidates[0].AccountID, nil
}
