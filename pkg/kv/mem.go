package kv

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// MemStore is an in-process Store backed by patrickmn/go-cache, used by
// tests and as the default document-loader cache when no Postgres KV is
// configured.
type MemStore struct {
	// Do not embed or use the type directly; the wrapper narrows the
	// public surface to the kv.Store contract.
	c *cache.Cache
}

// NewMemStore creates an empty in-memory Store. Entries without a TTL
// never expire; go-cache handles per-entry expiration internally so this
// package does not need its own sweep loop.
func NewMemStore() *MemStore {
	return &MemStore{c: cache.New(cache.NoExpiration, cache.NoExpiration)}
}

func (m *MemStore) Get(_ context.Context, key Key) ([]byte, bool, error) {
	v, ok := m.c.Get(hashKey(key))
	if !ok {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

func (m *MemStore) Set(_ context.Context, key Key, value []byte, opts SetOptions) error {
	m.c.Set(hashKey(key), value, ttlOrForever(opts.TTL))
	return nil
}

func (m *MemStore) SetIfAbsent(_ context.Context, key Key, value []byte, opts SetOptions) (bool, error) {
	if err := m.c.Add(hashKey(key), value, ttlOrForever(opts.TTL)); err != nil {
		// go-cache.Add's only failure mode is "already present and unexpired".
		return false, nil
	}
	return true, nil
}

func (m *MemStore) Delete(_ context.Context, key Key) error {
	m.c.Delete(hashKey(key))
	return nil
}

func ttlOrForever(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return cache.NoExpiration
	}
	return ttl
}
