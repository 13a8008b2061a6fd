package oauthstate

import (
	"context"
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"shopconnect/internal/shop"
)

// Memory keeps states in process. Use Redis when several instances share traffic.
type Memory struct {
	mu sync.Mutex
	c  *gocache.Cache
}

// NewMemory returns a registry whose entries expire after ttl (DefaultTTL when <= 0).
// Expired entries are swept every minute.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{c: gocache.New(ttl, time.Minute)}
}

func (m *Memory) Issue(ctx context.Context, h shop.Hostname) (string, error) {
	for i := 0; i < 3; i++ {
		state, err := newState()
		if err != nil {
			return "", err
		}
		// Add fails on an outstanding key, so a state is never reused.
		if err := m.c.Add(state, h, gocache.DefaultExpiration); err == nil {
			return state, nil
		}
	}
	return "", errors.New("oauth state: could not allocate a unique state")
}

func (m *Memory) Consume(ctx context.Context, state string) (shop.Hostname, error) {
	if state == "" {
		return "", ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.c.Get(state)
	if !ok {
		return "", ErrNotFound
	}
	m.c.Delete(state)
	h, _ := v.(shop.Hostname)
	return h, nil
}

// Len reports stored states, including expired ones the janitor has not swept yet.
func (m *Memory) Len() int { return m.c.ItemCount() }
