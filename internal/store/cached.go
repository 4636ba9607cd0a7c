package store

import (
	"context"
	"time"

	"github.com/arzan03/mediadrop/internal/models"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediadrop_store_cache_hits_total",
		Help: "Binding lookups served from the in-process cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediadrop_store_cache_misses_total",
		Help: "Binding lookups that went to the backing store.",
	})
)

// Cached fronts a durable store with a per-instance LRU of point lookups.
// Misses are not cached. Other instances sharing the backend may consume a
// binding that is still cached here, so ttl should stay short.
type Cached struct {
	Store
	cache *expirable.LRU[string, *models.MediaBinding]
}

func NewCached(inner Store, size int, ttl time.Duration) *Cached {
	return &Cached{
		Store: inner,
		cache: expirable.NewLRU[string, *models.MediaBinding](size, nil, ttl),
	}
}

func (c *Cached) Get(ctx context.Context, code string) (*models.MediaBinding, error) {
	if b, ok := c.cache.Get(code); ok {
		cacheHitsTotal.Inc()
		cp := *b
		return &cp, nil
	}
	cacheMissesTotal.Inc()

	b, err := c.Store.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	cp := *b
	c.cache.Add(code, &cp)
	return b, nil
}

func (c *Cached) Delete(ctx context.Context, code string) (bool, error) {
	c.cache.Remove(code)
	return c.Store.Delete(ctx, code)
}

func (c *Cached) DeleteIfCreatedAt(ctx context.Context, code string, createdAt time.Time) (bool, error) {
	c.cache.Remove(code)
	return c.Store.DeleteIfCreatedAt(ctx, code, createdAt)
}

func (c *Cached) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	for _, b := range c.cache.Values() {
		if !b.CreatedAt.After(cutoff) {
			c.cache.Remove(b.Code)
		}
	}
	return c.Store.DeleteCreatedBefore(ctx, cutoff)
}

func (c *Cached) Clear(ctx context.Context) error {
	c.cache.Purge()
	return c.Store.Clear(ctx)
}
