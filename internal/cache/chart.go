package cache

import (
	"fmt"
	"time"
)

// ChartCache holds rendered chart images. Keys include the view generation
// that produced the data, so a new snapshot never hits an old image.
type ChartCache struct {
	lru *LRUCache[[]byte]
}

func NewChartCache(maxSize int, ttl time.Duration) *ChartCache {
	return &ChartCache{lru: NewLRUCache[[]byte](maxSize, ttl)}
}

// ChartKey identifies one rendering of one snapshot.
func ChartKey(generation uint64, width, height int) string {
	return fmt.Sprintf("chart:%d:%dx%d", generation, width, height)
}

// GetOrRender returns the cached image for key or renders and stores it.
// Render errors are not cached.
func (c *ChartCache) GetOrRender(key string, render func() ([]byte, error)) ([]byte, bool, error) {
	if img, ok := c.lru.Get(key); ok {
		return img, true, nil
	}
	img, err := render()
	if err != nil {
		return nil, false, err
	}
	c.lru.Set(key, img)
	return img, false, nil
}

// CleanExpired lets the Manager clean this cache.
func (c *ChartCache) CleanExpired() int { return c.lru.CleanExpired() }

func (c *ChartCache) Size() int { return c.lru.Size() }

// Stats returns hit and miss counters since creation.
func (c *ChartCache) Stats() (hits, misses uint64) { return c.lru.Stats() }
