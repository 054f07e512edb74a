// Package resolve maps external memory IDs (mem_...) to the backing
// store's internal node IDs.
//
// Graph edge queries need internal IDs, but everything user-facing works
// with external IDs, so this lookup sits on every write path. A TTL cache
// keeps it off the network for repeat lookups; [Batch] resolves many IDs
// with bounded parallelism.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ontomem/omc/pkg/helix"
)

// ErrNotFound indicates the external ID has no memory in the store.
var ErrNotFound = errors.New("resolve: memory not found")

// Querier is the store surface the resolver needs.
// *helix.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, name string, params, out any) error
}

// Stats reports resolver cache counters.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Invalidations int64 `json:"invalidations"`
	Evictions     int64 `json:"evictions"`
	Size          int   `json:"size"`
}

const (
	defaultCapacity = 10000
	defaultTTL      = 5 * time.Minute
)

type entry struct {
	internalID string
	cachedAt   time.Time
}

// Resolver resolves external memory IDs to internal node IDs with a TTL
// cache. Safe for concurrent use.
type Resolver struct {
	db       Querier
	capacity int
	ttl      time.Duration
	logger   *slog.Logger

	mu            sync.Mutex
	cache         map[string]entry
	hits          int64
	misses        int64
	invalidations int64
	evictions     int64

	now func() time.Time // for tests
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCapacity sets the maximum cached mappings.
func WithCapacity(n int) Option {
	return func(r *Resolver) { r.capacity = n }
}

// WithTTL sets how long a cached mapping stays valid.
func WithTTL(d time.Duration) Option {
	return func(r *Resolver) { r.ttl = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a resolver backed by db.
func New(db Querier, opts ...Option) *Resolver {
	r := &Resolver{
		db:       db,
		capacity: defaultCapacity,
		ttl:      defaultTTL,
		cache:    make(map[string]entry),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	r.logger = r.logger.With("component", "resolve")
	return r
}

// Resolve returns the internal node ID for the external memory ID,
// consulting the cache first. A store miss returns an error satisfying
// errors.Is(err, ErrNotFound).
func (r *Resolver) Resolve(ctx context.Context, memoryID string) (string, error) {
	if memoryID == "" {
		return "", fmt.Errorf("resolve: empty memory ID")
	}

	r.mu.Lock()
	if e, ok := r.cache[memoryID]; ok {
		if r.now().Sub(e.cachedAt) < r.ttl {
			r.hits++
			r.mu.Unlock()
			return e.internalID, nil
		}
		delete(r.cache, memoryID)
		r.evictions++
	}
	r.misses++
	r.mu.Unlock()

	var out struct {
		ID string `json:"id"`
	}
	err := r.db.Query(ctx, "getMemory", map[string]string{"memory_id": memoryID}, &out)
	if err != nil {
		if errors.Is(err, helix.ErrNotFound) {
			return "", fmt.Errorf("resolve: %s: %w", memoryID, ErrNotFound)
		}
		return "", fmt.Errorf("resolve: %s: %w", memoryID, err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("resolve: %s: %w", memoryID, ErrNotFound)
	}

	r.mu.Lock()
	if len(r.cache) >= r.capacity {
		r.evictOldestLocked()
	}
	r.cache[memoryID] = entry{internalID: out.ID, cachedAt: r.now()}
	r.mu.Unlock()
	return out.ID, nil
}

// Invalidate drops the cached mapping for memoryID, if any.
// Call after deleting or rewriting a memory.
func (r *Resolver) Invalidate(memoryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cache[memoryID]; ok {
		delete(r.cache, memoryID)
		r.invalidations++
	}
}

// Stats returns a snapshot of cache counters.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Hits:          r.hits,
		Misses:        r.misses,
		Invalidations: r.invalidations,
		Evictions:     r.evictions,
		Size:          len(r.cache),
	}
}

func (r *Resolver) evictOldestLocked() {
	var (
		oldestID string
		oldestAt time.Time
		found    bool
	)
	for id, e := range r.cache {
		if !found || e.cachedAt.Before(oldestAt) {
			oldestID, oldestAt, found = id, e.cachedAt, true
		}
	}
	if found {
		delete(r.cache, oldestID)
		r.evictions++
	}
}
