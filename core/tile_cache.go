package core

import (
	"fmt"
	"strconv"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/signalsfoundry/layered-infill/tiles"
)

// DefaultCacheMaxCost bounds the scaled-tile cache, counted in vertices.
const DefaultCacheMaxCost int64 = 4 << 20

// CacheRecorder receives scaled-tile cache outcomes.
type CacheRecorder interface {
	ObserveTileCache(hit bool)
}

// TileCache memoises scaled copies of tiles keyed by pattern, height and
// scale. It is safe for concurrent use.
type TileCache struct {
	cache   *ristretto.Cache[string, *tiles.Tile]
	metrics CacheRecorder
}

// NewTileCache returns a cache holding at most maxCost vertices worth of
// scaled tiles. metrics may be nil.
func NewTileCache(maxCost int64, metrics CacheRecorder) (*TileCache, error) {
	if maxCost <= 0 {
		maxCost = DefaultCacheMaxCost
	}
	cache, err := ristretto.NewCache[string, *tiles.Tile](&ristretto.Config[string, *tiles.Tile]{
		NumCounters:        10000,
		MaxCost:            maxCost,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create tile cache: %w", err)
	}
	return &TileCache{cache: cache, metrics: metrics}, nil
}

func tileCacheKey(t *tiles.Tile, k float64) string {
	return t.Pattern + "|" + strconv.FormatInt(t.Z, 10) + "|" + strconv.FormatFloat(k, 'g', -1, 64)
}

// Scaled returns t scaled by k. A scale of exactly 1 returns t itself.
func (c *TileCache) Scaled(t *tiles.Tile, k float64) (*tiles.Tile, error) {
	if k == 1 {
		return t, nil
	}
	if c == nil {
		return scaleTile(t, k)
	}
	key := tileCacheKey(t, k)
	if cached, ok := c.cache.Get(key); ok {
		c.observe(true)
		return cached, nil
	}
	c.observe(false)

	scaled, err := scaleTile(t, k)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, scaled, int64(scaled.Fill.VertexCount()+1))
	c.cache.Wait()
	return scaled, nil
}

func (c *TileCache) observe(hit bool) {
	if c.metrics != nil {
		c.metrics.ObserveTileCache(hit)
	}
}

// Close releases the cache's background goroutines.
func (c *TileCache) Close() {
	if c == nil {
		return
	}
	c.cache.Close()
}
