package embed

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"
)

const (
	defaultCacheCapacity = 1000
	defaultCacheTTL      = time.Hour
)

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Size      int     `json:"size"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

type cacheEntry struct {
	vector    []float32
	createdAt time.Time
}

// Cache wraps an Embedder with an in-memory TTL cache keyed by a hash of
// the input text. At capacity the oldest entry is evicted. Safe for
// concurrent use.
type Cache struct {
	inner    Embedder
	capacity int
	ttl      time.Duration

	mu        sync.RWMutex
	entries   map[[32]byte]cacheEntry
	hits      int64
	misses    int64
	evictions int64

	now func() time.Time // for tests
}

var _ Embedder = (*Cache)(nil)

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCapacity sets the maximum number of cached vectors.
func WithCapacity(n int) CacheOption {
	return func(c *Cache) { c.capacity = n }
}

// WithTTL sets how long a cached vector stays valid.
func WithTTL(d time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = d }
}

// NewCache wraps inner with a cache (capacity 1000, TTL 1h by default).
func NewCache(inner Embedder, opts ...CacheOption) *Cache {
	c := &Cache{
		inner:    inner,
		capacity: defaultCacheCapacity,
		ttl:      defaultCacheTTL,
		entries:  make(map[[32]byte]cacheEntry),
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Embed returns the cached vector for text or delegates to the inner
// embedder and caches the result.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	key := sha256.Sum256([]byte(text))

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if c.now().Sub(e.createdAt) < c.ttl {
			c.hits++
			c.mu.Unlock()
			return e.vector, nil
		}
		delete(c.entries, key)
	}
	c.misses++
	c.mu.Unlock()

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.entries[key] = cacheEntry{vector: vec, createdAt: c.now()}
	c.mu.Unlock()
	return vec, nil
}

// EmbedBatch embeds each text through the cache.
func (c *Cache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := c.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

// Dimension returns the inner embedder's dimensionality.
func (c *Cache) Dimension() int { return c.inner.Dimension() }

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Size:      len(c.entries),
		Evictions: c.evictions,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func (c *Cache) evictOldestLocked() {
	var (
		oldestKey [32]byte
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.createdAt.Before(oldestAt) {
			oldestKey, oldestAt, found = k, e.createdAt, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}
