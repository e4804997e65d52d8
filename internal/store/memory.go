package store

import (
	"context"
	"sort"
	"sync"

	"github.com/AprilNEA/BYOKEY/internal/credential"
)

type memKey struct {
	provider  credential.ProviderId
	accountID string
}

// Memory is an in-memory TokenStore used by tests and by the dispatcher's
// unit tests; it never touches disk.
type Memory struct {
	mu   sync.RWMutex
	recs map[memKey]Record
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{recs: make(map[memKey]Record)}
}

func (m *Memory) Get(_ context.Context, provider credential.ProviderId, accountID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[memKey{provider, accountID}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) Put(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey{rec.Account.Provider, rec.Account.AccountID}
	if rec.Account.IsActive {
		for k, existing := range m.recs {
			if k.provider == rec.Account.Provider && k != key {
				existing.Account.IsActive = false
				m.recs[k] = existing
			}
		}
	}
	m.recs[key] = rec
	return nil
}

func (m *Memory) Delete(_ context.Context, provider credential.ProviderId, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, memKey{provider, accountID})
	return nil
}

func (m *Memory) ListAccounts(_ context.Context, provider credential.ProviderId) ([]credential.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []credential.Account
	for k, rec := range m.recs {
		if k.provider == provider {
			out = append(out, rec.Account)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (m *Memory) SetActive(_ context.Context, provider credential.ProviderId, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for k, rec := range m.recs {
		if k.provider != provider {
			continue
		}
		rec.Account.IsActive = k.accountID == accountID
		m.recs[k] = rec
		if rec.Account.IsActive {
			found = true
		}
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (m *Memory) Close() error { return nil }
