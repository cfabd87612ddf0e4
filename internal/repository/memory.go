package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryKeyStore is a single-process KeyStore, used in tests and when Redis is unavailable.
type MemoryKeyStore struct {
	mu         sync.Mutex
	keys       map[string]time.Time
	rateLimits map[string]*rateLimitEntry
	now        func() time.Time
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{
		keys:       make(map[string]time.Time),
		rateLimits: make(map[string]*rateLimitEntry),
		now:        time.Now,
	}
}

func (r *MemoryKeyStore) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if expiresAt, ok := r.keys[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	r.keys[key] = now.Add(ttl)
	return true, nil
}

func (r *MemoryKeyStore) Release(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, key)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryKeyStore) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
