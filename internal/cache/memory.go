package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is an in-process Provider used when no Valkey address is
// configured. Expiry is lazy; the sweep below bounds growth for long-lived
// processes.
type MemoryProvider struct {
	mu      sync.RWMutex
	items   map[string]memoryItem
	maxKeys int
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates an in-memory cache holding at most maxKeys
// entries; zero means 4096.
func NewMemoryProvider(maxKeys int) *MemoryProvider {
	if maxKeys <= 0 {
		maxKeys = 4096
	}
	return &MemoryProvider{items: make(map[string]memoryItem), maxKeys: maxKeys}
}

// Get fetches bytes by key, returning ErrCacheMiss when absent or expired.
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	it, ok := p.items[key]
	p.mu.RUnlock()

	if !ok {
		return nil, ErrCacheMiss
	}
	if !it.expiresAt.IsZero() && time.Now().After(it.expiresAt) {
		p.mu.Lock()
		delete(p.items, key)
		p.mu.Unlock()
		return nil, ErrCacheMiss
	}
	out := make([]byte, len(it.value))
	copy(out, it.value)
	return out, nil
}

// Set stores a copy of value with an optional TTL.
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) >= p.maxKeys {
		p.sweepLocked()
	}
	p.items[key] = memoryItem{value: stored, expiresAt: expires}
	return nil
}

// Del removes a key.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.items, key)
	p.mu.Unlock()
	return nil
}

// Ping always reports healthy.
func (p *MemoryProvider) Ping(context.Context) error { return nil }

// Close drops all entries.
func (p *MemoryProvider) Close() error {
	p.mu.Lock()
	p.items = make(map[string]memoryItem)
	p.mu.Unlock()
	return nil
}

// sweepLocked drops expired entries; if none expired it evicts the entry
// closest to expiry so writes always succeed.
func (p *MemoryProvider) sweepLocked() {
	now := time.Now()
	var oldestKey string
	var oldestAt time.Time
	dropped := false
	for k, it := range p.items {
		if !it.expiresAt.IsZero() && now.After(it.expiresAt) {
			delete(p.items, k)
			dropped = true
			continue
		}
		if oldestKey == "" || (!it.expiresAt.IsZero() && it.expiresAt.Before(oldestAt)) {
			oldestKey = k
			oldestAt = it.expiresAt
		}
	}
	if !dropped && oldestKey != "" {
		delete(p.items, oldestKey)
	}
}
