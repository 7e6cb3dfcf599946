// Package scalecache remembers, per template, the scale that last matched.
package scalecache

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/soocke/pixel-scheduler-go/store"
)

const frontSize = 256

// Cache is a durable template -> scale map with an in-process LRU front.
// Store errors are logged and treated as cache misses.
type Cache struct {
	store  store.Store
	front  *lru.Cache[string, float64]
	logger *slog.Logger
}

func New(s store.Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	front, _ := lru.New[string, float64](frontSize)
	return &Cache{store: s, front: front, logger: logger}
}

func (c *Cache) Get(ctx context.Context, name string) (float64, bool) {
	if v, ok := c.front.Get(name); ok {
		return v, true
	}
	v, err := store.GetFloat(ctx, c.store, store.NSScaleCache, name, 0)
	if err != nil {
		c.logger.Warn("scale cache read failed", "template", name, "error", err)
		return 0, false
	}
	if v <= 0 {
		return 0, false
	}
	c.front.Add(name, v)
	return v, true
}

func (c *Cache) Put(ctx context.Context, name string, scale float64) {
	if scale <= 0 {
		return
	}
	if v, ok := c.front.Peek(name); ok && v == scale {
		return
	}
	if err := c.store.Put(ctx, store.NSScaleCache, name, scale); err != nil {
		c.logger.Warn("scale cache write failed", "template", name, "error", err)
		return
	}
	c.front.Add(name, scale)
}

// Remove forgets the scale for name.
func (c *Cache) Remove(ctx context.Context, name string) error {
	c.front.Remove(name)
	return c.store.Remove(ctx, store.NSScaleCache, name)
}

// Entries returns every persisted template scale.
func (c *Cache) Entries(ctx context.Context) (map[string]float64, error) {
	keys, err := c.store.Keys(ctx, store.NSScaleCache)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(keys))
	for _, k := range keys {
		v, err := store.GetFloat(ctx, c.store, store.NSScaleCache, k, 0)
		if err != nil {
			return nil, err
		}
		if v > 0 {
			out[k] = v
		}
	}
	return out, nil
}

// Clear forgets every template scale and reports how many were removed.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	c.front.Purge()
	return store.Clear(ctx, c.store, store.NSScaleCache)
}
