package embedder

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize bounds the in-memory embedding cache.
const DefaultCacheSize = 10000

// Cache memoizes text -> vector for the duration of a run. Entries are keyed
// by the exact input string; callers canonicalize text beforehand if they
// want canonical keys. Concurrent misses for the same key collapse into a
// single provider call, and misses for different keys never block each other.
// The cache is not persisted across process runs.
type Cache struct {
	store *lru.Cache[string, []float32]
	group singleflight.Group
}

// NewCache creates an embedding cache with LRU eviction.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	store, err := lru.New[string, []float32](maxLen)
	if err != nil {
		// Unreachable with a positive size.
		store, _ = lru.New[string, []float32](DefaultCacheSize)
	}
	return &Cache{store: store}
}

// GetOrCompute returns the cached vector for text, or computes it via enc,
// stores it, and returns it. The returned slice is a copy; callers may not
// mutate cached state.
func (c *Cache) GetOrCompute(ctx context.Context, text string, enc Embedder) ([]float32, error) {
	if v, ok := c.store.Get(text); ok {
		return copyVector(v), nil
	}

	// singleflight serializes concurrent computation of the same key so the
	// provider sees at most one encode per distinct text.
	v, err, _ := c.group.Do(text, func() (interface{}, error) {
		// Double-checked: another flight may have populated the entry
		// between our lookup and Do acquiring the key.
		if cached, ok := c.store.Get(text); ok {
			return cached, nil
		}

		vec, err := enc.Encode(ctx, text)
		if err != nil {
			return nil, err
		}
		c.store.Add(text, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}

	return copyVector(v.([]float32)), nil
}

// Len returns the number of cached embeddings.
func (c *Cache) Len() int {
	return c.store.Len()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.store.Purge()
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
