package price

import (
	"context"
	"sync"
	"time"

	"cryptotrack-alerts/internal/types"

	"golang.org/x/sync/singleflight"
)

// Fetcher is anything that produces a snapshot for an asset.
type Fetcher interface {
	Fetch(ctx context.Context, asset string) (types.Snapshot, error)
}

type cacheItem struct {
	snapshot   types.Snapshot
	expiration time.Time
}

// Cache remembers successful snapshots per asset. Failures are never cached.
// A zero ttl keeps entries for the lifetime of the cache, which is how a sweep uses it.
type Cache struct {
	next Fetcher
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	items    map[string]cacheItem
	inflight singleflight.Group
}

func NewCache(next Fetcher, ttl time.Duration) *Cache {
	return &Cache{next: next, ttl: ttl, now: time.Now, items: make(map[string]cacheItem)}
}

func (c *Cache) Fetch(ctx context.Context, asset string) (types.Snapshot, error) {
	key := NormalizeAsset(asset)
	if snapshot, ok := c.get(key); ok {
		return snapshot, nil
	}

	// Concurrent misses on one asset share a single upstream call.
	v, err, _ := c.inflight.Do(key, func() (interface{}, error) {
		if snapshot, ok := c.get(key); ok {
			return snapshot, nil
		}
		snapshot, err := c.next.Fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		c.set(key, snapshot)
		return snapshot, nil
	})
	if err != nil {
		return types.Snapshot{}, err
	}
	return v.(types.Snapshot), nil
}

func (c *Cache) get(asset string) (types.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[asset]
	if !found {
		return types.Snapshot{}, false
	}
	if c.ttl > 0 && !c.now().Before(item.expiration) {
		delete(c.items, asset)
		return types.Snapshot{}, false
	}
	return item.snapshot, true
}

func (c *Cache) set(asset string, snapshot types.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[asset] = cacheItem{snapshot: snapshot, expiration: c.now().Add(c.ttl)}
}
