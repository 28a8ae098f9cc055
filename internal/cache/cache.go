// Package cache holds recently fetched products so that discovery paths
// referencing the same product share one fetch. It is a performance aid
// only: a miss always falls back to the network.
package cache

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JakeFAU/storefront-scanner/internal/storefront"
)

// DefaultSize bounds the cache when no size is configured.
const DefaultSize = 15000

// ProductCache is a bounded product cache keyed by storefront base URL and
// handle. Lookups do not refresh recency and re-adding an existing key is
// a no-op, so eviction removes the oldest inserted entry. A nil
// *ProductCache is valid and caches nothing.
type ProductCache struct {
	entries *lru.Cache[string, storefront.Product]
}

// New builds a cache holding at most size products.
func New(size int) (*ProductCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, storefront.Product](size)
	if err != nil {
		return nil, fmt.Errorf("create product cache: %w", err)
	}
	return &ProductCache{entries: entries}, nil
}

// Get returns the cached product for handle on base.
func (c *ProductCache) Get(base, handle string) (storefront.Product, bool) {
	if c == nil {
		return storefront.Product{}, false
	}
	return c.entries.Peek(key(base, handle))
}

// Contains reports whether handle on base is cached.
func (c *ProductCache) Contains(base, handle string) bool {
	if c == nil {
		return false
	}
	return c.entries.Contains(key(base, handle))
}

// Add caches p under its handle unless it is already present.
func (c *ProductCache) Add(base string, p storefront.Product) {
	if c == nil || p.Handle == "" {
		return
	}
	c.entries.ContainsOrAdd(key(base, p.Handle), p)
}

// Len returns the number of cached products.
func (c *ProductCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

func key(base, handle string) string {
	return strings.ToLower(strings.TrimRight(base, "/")) + "|" + handle
}
