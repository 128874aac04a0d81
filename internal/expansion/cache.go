package expansion

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache stores expanded query lists keyed by (model, normalized query). It
// is an injected capability so tests can substitute doubles; implementations
// must be safe for concurrent use.
type Cache interface {
	Get(key string) ([]string, bool)
	Add(key string, queries []string)
}

// LRUCache is the production Cache, a fixed-size in-memory LRU.
type LRUCache struct {
	inner *lru.Cache[string, []string]
}

// NewLRUCache creates an LRUCache holding up to size entries.
func NewLRUCache(size int) (*LRUCache, error) {
	inner, err := lru.New[string, []string](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{inner: inner}, nil
}

func (c *LRUCache) Get(key string) ([]string, bool) {
	return c.inner.Get(key)
}

func (c *LRUCache) Add(key string, queries []string) {
	c.inner.Add(key, queries)
}
