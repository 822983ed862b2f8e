// Package cache provides a TTL-bounded LRU cache used by the embedding layer
// to avoid re-vectorizing repeated text, with namespace-scoped invalidation
// so a model change can drop all entries written under the old model.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// VectorCache caches embedding vectors keyed by namespaced content hashes.
type VectorCache interface {
	// Get returns the cached vector for the key, if present and unexpired.
	Get(key string) ([]float64, bool)

	// Add stores a vector under the key, evicting the least recently used
	// entry when the cache is full.
	Add(key string, vector []float64)

	// InvalidateNamespace removes all entries whose key carries the given
	// namespace prefix. Backends without namespace support drop everything.
	InvalidateNamespace(namespace string)

	// SupportsNamespaces reports whether InvalidateNamespace is scoped to
	// the namespace or falls back to a full purge.
	SupportsNamespaces() bool

	// Len returns the number of live entries.
	Len() int
}

// Key builds a namespaced cache key. Namespace and key are joined with a
// colon, matching the prefix InvalidateNamespace strips against.
func Key(namespace, key string) string {
	return namespace + ":" + key
}

// LRU is a VectorCache backed by an expirable LRU. Entries are evicted on
// capacity pressure and expire after the configured TTL. A zero TTL means
// entries never expire.
type LRU struct {
	mu  sync.Mutex
	lru *expirable.LRU[string, []float64]
}

var _ VectorCache = (*LRU)(nil)

// NewLRU creates an LRU cache holding up to size entries for at most ttl.
func NewLRU(size int, ttl time.Duration) *LRU {
	if size < 1 {
		size = 1024
	}
	return &LRU{
		lru: expirable.NewLRU[string, []float64](size, nil, ttl),
	}
}

// Get returns the cached vector for the key.
func (c *LRU) Get(key string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

// Add stores a vector under the key.
func (c *LRU) Add(key string, vector []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, vector)
}

// InvalidateNamespace removes every entry under the namespace prefix.
func (c *LRU) InvalidateNamespace(namespace string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := namespace + ":"
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

// SupportsNamespaces always reports true for the LRU backend.
func (c *LRU) SupportsNamespaces() bool {
	return true
}

// Len returns the number of live entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
