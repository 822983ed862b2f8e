package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/cache"
)

// fakeEmbedder counts calls and returns a fixed vector.
type fakeEmbedder struct {
	model  string
	calls  int
	vector []float64
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) Model() string { return f.model }

func TestCachedEmbedderDeduplicates(t *testing.T) {
	fake := &fakeEmbedder{model: "test-model", vector: []float64{1, 2}}
	cached := NewCachedEmbedder(fake, cache.NewLRU(10, 0))
	ctx := context.Background()

	v1, err := cached.Embed(ctx, "hello world")
	require.NoError(t, err)
	v2, err := cached.Embed(ctx, "hello world")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, fake.calls, "second call served from cache")

	_, err = cached.Embed(ctx, "different text")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)
}

func TestCachedEmbedderTruncatesBeforeHashing(t *testing.T) {
	fake := &fakeEmbedder{model: "test-model", vector: []float64{1}}
	cached := NewCachedEmbedder(fake, cache.NewLRU(10, 0))
	ctx := context.Background()

	long := strings.Repeat("a", MaxEmbedChars+500)
	truncated := long[:MaxEmbedChars]

	_, err := cached.Embed(ctx, long)
	require.NoError(t, err)
	_, err = cached.Embed(ctx, truncated)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.calls, "over-long text and its truncation share a cache entry")
}

func TestCachedEmbedderNeverCachesErrors(t *testing.T) {
	fake := &fakeEmbedder{model: "test-model", err: errors.New("boom")}
	cached := NewCachedEmbedder(fake, cache.NewLRU(10, 0))
	ctx := context.Background()

	_, err := cached.Embed(ctx, "text")
	require.Error(t, err)

	fake.err = nil
	fake.vector = []float64{1}
	_, err = cached.Embed(ctx, "text")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls, "failure was retried, not cached")
}

func TestInvalidateModel(t *testing.T) {
	fake := &fakeEmbedder{model: "test-model", vector: []float64{1}}
	cached := NewCachedEmbedder(fake, cache.NewLRU(10, 0))
	ctx := context.Background()

	_, err := cached.Embed(ctx, "text")
	require.NoError(t, err)

	cached.InvalidateModel()

	_, err = cached.Embed(ctx, "text")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls, "cache entry dropped on invalidation")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short"))
	assert.Len(t, Truncate(strings.Repeat("x", MaxEmbedChars*2)), MaxEmbedChars)
}
