package credentials

import (
	"context"
	"sort"
	"sync"

	"shopconnect/internal/shop"
)

type memStore struct {
	mu    sync.RWMutex
	creds map[shop.Hostname]Credential
}

// NewMemoryStore keeps credentials in process; nothing survives a restart.
func NewMemoryStore() Store {
	return &memStore{creds: map[shop.Hostname]Credential{}}
}

func (m *memStore) Get(ctx context.Context, h shop.Hostname) (Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.creds[h]; ok {
		return c, nil
	}
	return Credential{}, ErrNotFound
}

func (m *memStore) Put(ctx context.Context, c Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[c.Shop] = c
	return nil
}

func (m *memStore) Remove(ctx context.Context, h shop.Hostname) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.creds[h]
	delete(m.creds, h)
	return ok, nil
}

func (m *memStore) List(ctx context.Context) ([]shop.Hostname, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]shop.Hostname, 0, len(m.creds))
	for h := range m.creds {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
