// Package cache holds the category-catalog cache. The catalog is small,
// user-managed and rarely changes during a classification run, so callers
// read through a TTL cache instead of hitting storage on every transaction.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pbialon/budgie/internal/core"
)

// Loader fetches the catalog from storage.
type Loader func(ctx context.Context) ([]core.Category, error)

// Catalog is a read-through cache over the category catalog. A cached
// snapshot stays valid until the TTL elapses or Refresh is called; the
// categorization core itself stays a pure function of its inputs.
type Catalog struct {
	loader Loader
	ttl    time.Duration

	group singleflight.Group

	mu         sync.Mutex
	categories []core.Category
	fetchedAt  time.Time
}

// NewCatalog creates a catalog cache around a storage loader.
func NewCatalog(loader Loader, ttl time.Duration) *Catalog {
	return &Catalog{loader: loader, ttl: ttl}
}

// Categories returns the cached snapshot, loading it when stale. Concurrent
// loads of a cold cache are collapsed into a single storage call.
func (c *Catalog) Categories(ctx context.Context) ([]core.Category, error) {
	c.mu.Lock()
	if c.categories != nil && time.Since(c.fetchedAt) < c.ttl {
		snapshot := c.categories
		c.mu.Unlock()
		return snapshot, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("catalog", func() (any, error) {
		cats, err := c.loader(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.categories = cats
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		return cats, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]core.Category), nil
}

// Refresh drops the cached snapshot; the next read hits storage. Call after
// category writes.
func (c *Catalog) Refresh() {
	c.mu.Lock()
	c.categories = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
