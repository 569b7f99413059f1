package providers

import (
	"fmt"
	"time"

	"github.com/coocood/freecache"
)

// ResponseCache stores raw upstream bodies. Keys never contain the API key.
type ResponseCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
}

// MaxCachedBody is the largest body the cache is sized to hold. A 16-day
// forecast with every field stays well below it.
const MaxCachedBody = 32 << 10

// freecache splits memory into 256 segments and rejects entries larger than
// a quarter of one segment.
const minCacheBytes = 256 * 4 * MaxCachedBody

// FreeCache is a ResponseCache backed by a fixed-size freecache.
type FreeCache struct {
	cache *freecache.Cache
}

// NewResponseCache returns a freecache of sizeMB megabytes, or a no-op cache
// when sizeMB is not positive. Sizes too small for MaxCachedBody are raised.
func NewResponseCache(sizeMB int) ResponseCache {
	if sizeMB <= 0 {
		return noopCache{}
	}
	return &FreeCache{cache: freecache.NewCache(max(sizeMB*1024*1024, minCacheBytes))}
}

func (c *FreeCache) Get(key string) ([]byte, bool) {
	val, err := c.cache.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	return val, true
}

// Set stores value for ttl, rounded up to whole seconds. A zero ttl stores
// nothing.
func (c *FreeCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	secs := int((ttl + time.Second - 1) / time.Second)
	if err := c.cache.Set([]byte(key), value, secs); err != nil {
		return fmt.Errorf("cache %d bytes: %w", len(value), err)
	}
	return nil
}

type noopCache struct{}

func (noopCache) Get(string) ([]byte, bool)               { return nil, false }
func (noopCache) Set(string, []byte, time.Duration) error { return nil }
