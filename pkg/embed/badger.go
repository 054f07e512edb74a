package embed

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// badgerRecord is the on-disk value for a cached embedding.
type badgerRecord struct {
	Vector    []float32 `msgpack:"vector"`
	Model     string    `msgpack:"model"`
	CreatedAt time.Time `msgpack:"created_at"`
}

// BadgerCache wraps an Embedder with a persistent BadgerDB cache so
// embeddings survive process restarts. Values are msgpack-encoded and
// expire via Badger entry TTLs.
type BadgerCache struct {
	inner Embedder
	db    *badger.DB
	model string
	ttl   time.Duration
}

var _ Embedder = (*BadgerCache)(nil)

// BadgerCacheOptions configures a BadgerCache.
type BadgerCacheOptions struct {
	// Dir is the directory for the cache data files. Required unless
	// InMemory is set.
	Dir string

	// InMemory runs the cache without disk persistence. Useful in tests.
	InMemory bool

	// Model tags stored vectors; a stored vector from a different model
	// is treated as a miss.
	Model string

	// TTL bounds entry lifetime. Zero means entries never expire.
	TTL time.Duration
}

// NewBadgerCache opens (or creates) a persistent embedding cache.
// Close must be called to release the database.
func NewBadgerCache(inner Embedder, opts BadgerCacheOptions) (*BadgerCache, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("embed: BadgerCacheOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("embed: open cache: %w", err)
	}
	return &BadgerCache{inner: inner, db: db, model: opts.Model, ttl: opts.TTL}, nil
}

// Close releases the underlying database.
func (c *BadgerCache) Close() error { return c.db.Close() }

// Embed returns the persisted vector for text or delegates to the inner
// embedder and persists the result. Persistence failures degrade to the
// uncached path.
func (c *BadgerCache) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	key := cacheKey(text)

	var rec badgerRecord
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return msgpack.Unmarshal(val, &rec)
		})
	})
	if err == nil && rec.Model == c.model && len(rec.Vector) > 0 {
		return rec.Vector, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	val, err := msgpack.Marshal(badgerRecord{
		Vector:    vec,
		Model:     c.model,
		CreatedAt: time.Now(),
	})
	if err == nil {
		// Best effort: a full disk must not fail the embedding itself.
		_ = c.db.Update(func(txn *badger.Txn) error {
			entry := badger.NewEntry(key, val)
			if c.ttl > 0 {
				entry = entry.WithTTL(c.ttl)
			}
			return txn.SetEntry(entry)
		})
	}
	return vec, nil
}

// EmbedBatch embeds each text through the cache.
func (c *BadgerCache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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
func (c *BadgerCache) Dimension() int { return c.inner.Dimension() }

func cacheKey(text string) []byte {
	sum := sha256.Sum256([]byte(text))
	return append([]byte("emb/"), sum[:]...)
}
