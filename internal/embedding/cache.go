package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/engramdev/engram/internal/cache"
)

// CachedEmbedder wraps an Embedder with a content-hash keyed vector cache.
//
// The text is truncated to MaxEmbedChars before hashing, so an over-long
// text and its truncated form hash identically and share one cache entry
// and one provider call. Keys are namespaced by model name: switching
// models never serves vectors generated by the old model, and
// InvalidateModel can drop one model's entries without touching others.
type CachedEmbedder struct {
	inner Embedder
	cache cache.VectorCache
}

// NewCachedEmbedder wraps inner with the given cache.
func NewCachedEmbedder(inner Embedder, c cache.VectorCache) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: c}
}

var _ Embedder = (*CachedEmbedder)(nil)

// Embed returns the cached vector when present, otherwise delegates to the
// wrapped embedder and caches the result. Provider errors are never cached.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	key := e.cacheKey(text)

	if vector, ok := e.cache.Get(key); ok {
		return vector, nil
	}

	vector, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.cache.Add(key, vector)
	return vector, nil
}

// Model returns the wrapped embedder's model name.
func (e *CachedEmbedder) Model() string {
	return e.inner.Model()
}

// InvalidateModel drops all cached vectors generated by the wrapped model.
func (e *CachedEmbedder) InvalidateModel() {
	e.cache.InvalidateNamespace(e.inner.Model())
}

func (e *CachedEmbedder) cacheKey(text string) string {
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(Truncate(text))))
	return cache.Key(e.inner.Model(), hash)
}
