package storage

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/Veraticus/taxomap/internal/model"
	"github.com/Veraticus/taxomap/internal/service"
)

// CachedStore is an in-process read-through layer over a MappingStore.
// Upserts evict the key, so the next read returns the backing store's view
// including the preserved created_at. A read only fills the cache if no upsert
// of the same key completed while it was reading the backing store.
type CachedStore struct {
	service.MappingStore
	cache *gocache.Cache
	gens  map[string]uint64
	mu    sync.Mutex
}

// NewCachedStore wraps store with a memory cache. A ttl <= 0 keeps entries
// until they are evicted by an upsert. A cleanupInterval <= 0 disables the
// background janitor; expired entries are then dropped lazily on read.
func NewCachedStore(store service.MappingStore, ttl, cleanupInterval time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &CachedStore{
		MappingStore: store,
		cache:        gocache.New(ttl, cleanupInterval),
		gens:         make(map[string]uint64),
	}
}

// GetMapping serves key from memory, falling back to the backing store.
// Misses are not cached.
func (c *CachedStore) GetMapping(ctx context.Context, key string) (*model.MappingRecord, error) {
	if val, found := c.cache.Get(key); found {
		rec := val.(model.MappingRecord)
		return &rec, nil
	}

	c.mu.Lock()
	gen := c.gens[key]
	c.mu.Unlock()

	rec, err := c.MappingStore.GetMapping(ctx, key)
	if err != nil || rec == nil {
		return rec, err
	}

	c.mu.Lock()
	if c.gens[key] == gen {
		c.cache.SetDefault(key, *rec)
	}
	c.mu.Unlock()
	return rec, nil
}

// UpsertMapping writes through and evicts key.
func (c *CachedStore) UpsertMapping(ctx context.Context, rec *model.MappingRecord) error {
	if rec != nil {
		defer c.evict(rec.Key)
	}
	return c.MappingStore.UpsertMapping(ctx, rec)
}

// evict drops key and invalidates any backing read of it still in flight.
func (c *CachedStore) evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	c.cache.Delete(key)
}

// Len returns the number of cached records.
func (c *CachedStore) Len() int {
	return c.cache.ItemCount()
}

// Flush drops every cached record.
func (c *CachedStore) Flush() {
	c.cache.Flush()
}
