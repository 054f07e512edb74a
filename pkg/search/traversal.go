package search

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ontomem/omc/pkg/embed"
)

// Phase score weights.
const (
	vectorPhaseVectorWeight   = 0.7
	vectorPhaseTemporalWeight = 0.3

	graphPhaseSemanticWeight = 0.3
	graphPhaseGraphWeight    = 0.5
	graphPhaseTemporalWeight = 0.2
)

// traversalEdgeWeights maps connection groups to expansion weights.
// Causal edges carry the most signal, contradictions the least.
var traversalEdgeWeights = []struct {
	field    string
	relation string
	weight   float64
}{
	{"because_out", "BECAUSE", 0.95},
	{"implies_out", "IMPLIES", 0.9},
	{"because_in", "BECAUSE", 0.85},
	{"implies_in", "IMPLIES", 0.8},
	{"contradicts_out", "CONTRADICTS", 0.7},
	{"contradicts_in", "CONTRADICTS", 0.6},
}

// TraversalConfig tunes a smart-traversal search.
type TraversalConfig struct {
	VectorTopK       int
	GraphDepth       int
	MinVectorScore   float64
	MinCombinedScore float64

	// EdgeTypes restricts expansion to the named relation types.
	// Empty means all.
	EdgeTypes []string

	// DecayDays controls temporal freshness decay.
	DecayDays float64

	// TemporalCutoffHours drops vector hits older than the window.
	// Zero means unbounded.
	TemporalCutoffHours float64
}

// TraversalConfigForMode derives a config from a mode's defaults.
func TraversalConfigForMode(mode Mode) TraversalConfig {
	d := mode.Defaults()
	return TraversalConfig{
		VectorTopK:          d.VectorTopK,
		GraphDepth:          d.GraphDepth,
		MinVectorScore:      d.MinVectorScore,
		MinCombinedScore:    d.MinCombinedScore,
		DecayDays:           30,
		TemporalCutoffHours: d.TemporalDays * 24,
	}
}

// TraversalStats reports cache behavior and phase counts.
type TraversalStats struct {
	CacheHits    uint64  `json:"cache_hits"`
	CacheMisses  uint64  `json:"cache_misses"`
	CacheHitRate float64 `json:"cache_hit_rate"`
	CacheSize    int     `json:"cache_size"`
}

type cachedResults struct {
	results  []Result
	cachedAt time.Time
}

// Traversal is the two-phase vector-then-graph search strategy with a
// keyed result cache.
type Traversal struct {
	db     Querier
	logger *slog.Logger

	mu       sync.Mutex
	cache    map[string]cachedResults
	capacity int
	ttl      time.Duration
	hits     uint64
	misses   uint64

	now func() time.Time
}

// TraversalOption configures a Traversal.
type TraversalOption func(*Traversal)

// WithTraversalCache sets the result cache capacity and TTL.
func WithTraversalCache(capacity int, ttl time.Duration) TraversalOption {
	return func(t *Traversal) { t.capacity = capacity; t.ttl = ttl }
}

// WithTraversalLogger sets the logger.
func WithTraversalLogger(l *slog.Logger) TraversalOption {
	return func(t *Traversal) { t.logger = l }
}

// NewTraversal creates a smart-traversal strategy backed by db.
func NewTraversal(db Querier, opts ...TraversalOption) *Traversal {
	t := &Traversal{
		db:       db,
		logger:   slog.Default(),
		cache:    make(map[string]cachedResults),
		capacity: 100,
		ttl:      5 * time.Minute,
		now:      time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	t.logger = t.logger.With("component", "traversal")
	return t
}

// Search runs the three phases: vector candidates, graph expansion, and
// rank-and-filter. Results are cached by embedding, user, and config.
func (t *Traversal) Search(ctx context.Context, embedding []float32, userID string, cfg TraversalConfig) ([]Result, error) {
	key := traversalCacheKey(embedding, userID, cfg)
	if results, ok := t.cacheGet(key); ok {
		return results, nil
	}

	now := t.now()

	hits, err := fetchVectorCandidates(ctx, t.db, embedding, userID, cfg.VectorTopK)
	if err != nil {
		return nil, fmt.Errorf("search: vector phase: %w", err)
	}

	var seeds []Result
	for _, h := range hits {
		if h.Score < cfg.MinVectorScore {
			continue
		}
		if !withinHours(h.CreatedAt, cfg.TemporalCutoffHours, now) {
			continue
		}
		temporal := temporalFreshness(h.CreatedAt, cfg.DecayDays, now)
		seeds = append(seeds, Result{
			MemoryID:      h.MemoryID,
			Content:       h.Content,
			MemoryType:    h.MemoryType,
			UserID:        h.UserID,
			CreatedAt:     h.CreatedAt,
			VectorScore:   h.Score,
			TemporalScore: temporal,
			Combined:      clamp01(vectorPhaseVectorWeight*h.Score + vectorPhaseTemporalWeight*temporal),
			Source:        "vector",
		})
	}
	if len(seeds) == 0 {
		t.cachePut(key, nil)
		return nil, nil
	}

	expanded := t.expand(ctx, seeds, embedding, cfg, now)
	final := rankResults(append(seeds, expanded...), cfg.MinCombinedScore)

	t.cachePut(key, final)
	t.logger.Debug("traversal complete",
		"seeds", len(seeds), "expanded", len(expanded), "final", len(final))
	return final, nil
}

// connectionNode is one neighbor from getMemoryLogicalConnections.
type connectionNode struct {
	MemoryID   string    `json:"memory_id"`
	Content    string    `json:"content"`
	MemoryType string    `json:"memory_type"`
	UserID     string    `json:"user_id"`
	CreatedAt  string    `json:"created_at"`
	IsDeleted  int       `json:"is_deleted"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// expand walks typed edges out to cfg.GraphDepth, scoring each neighbor
// against its parent. A shared visited set keeps the walk finite.
func (t *Traversal) expand(ctx context.Context, seeds []Result, embedding []float32, cfg TraversalConfig, now time.Time) []Result {
	if cfg.GraphDepth == 0 {
		return nil
	}

	allowed := make(map[string]bool, len(cfg.EdgeTypes))
	for _, e := range cfg.EdgeTypes {
		allowed[e] = true
	}

	visited := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		visited[s.MemoryID] = true
	}

	var out []Result
	frontier := seeds
	for depth := 1; depth <= cfg.GraphDepth && len(frontier) > 0; depth++ {
		var next []Result
		for _, parent := range frontier {
			var conns map[string][]connectionNode
			err := t.db.Query(ctx, "getMemoryLogicalConnections",
				map[string]string{"memory_id": parent.MemoryID}, &conns)
			if err != nil {
				t.logger.Debug("connection fetch failed", "memory", parent.MemoryID, "err", err)
				continue
			}

			for _, ew := range traversalEdgeWeights {
				if len(allowed) > 0 && !allowed[ew.relation] {
					continue
				}
				for _, n := range conns[ew.field] {
					if n.MemoryID == "" || visited[n.MemoryID] || n.IsDeleted != 0 {
						continue
					}
					visited[n.MemoryID] = true

					semantic := 0.5
					if len(n.Embedding) > 0 {
						semantic = rescaleCosine(embed.Cosine(embedding, n.Embedding))
					}
					graphScore := clamp01(ew.weight * parent.Combined)
					temporal := temporalFreshness(n.CreatedAt, cfg.DecayDays, now)
					r := Result{
						MemoryID:      n.MemoryID,
						Content:       n.Content,
						MemoryType:    n.MemoryType,
						UserID:        n.UserID,
						CreatedAt:     n.CreatedAt,
						GraphScore:    graphScore,
						TemporalScore: temporal,
						Combined: clamp01(graphPhaseSemanticWeight*semantic +
							graphPhaseGraphWeight*graphScore +
							graphPhaseTemporalWeight*temporal),
						Depth:  depth,
						Source: "graph",
					}
					out = append(out, r)
					next = append(next, r)
				}
			}
		}
		frontier = next
	}
	return out
}

// rankResults dedupes by memory ID keeping the highest combined score,
// drops results below the floor, and sorts descending.
func rankResults(results []Result, minCombined float64) []Result {
	best := make(map[string]Result, len(results))
	for _, r := range results {
		if prev, ok := best[r.MemoryID]; !ok || r.Combined > prev.Combined {
			best[r.MemoryID] = r
		}
	}
	ranked := make([]Result, 0, len(best))
	for _, r := range best {
		if r.Combined >= minCombined {
			ranked = append(ranked, r)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].Combined > ranked[j].Combined
	})
	return ranked
}

// rescaleCosine maps cosine similarity from [-1,1] into [0,1].
func rescaleCosine(c float64) float64 {
	return clamp01((c + 1) / 2)
}

// Stats returns a snapshot of cache behavior.
func (t *Traversal) Stats() TraversalStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.hits + t.misses
	rate := 0.0
	if total > 0 {
		rate = float64(t.hits) / float64(total)
	}
	return TraversalStats{
		CacheHits:    t.hits,
		CacheMisses:  t.misses,
		CacheHitRate: rate,
		CacheSize:    len(t.cache),
	}
}

func (t *Traversal) cacheGet(key string) ([]Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.cache[key]
	if ok && t.now().Sub(entry.cachedAt) < t.ttl {
		t.hits++
		return entry.results, true
	}
	if ok {
		delete(t.cache, key)
	}
	t.misses++
	return nil, false
}

func (t *Traversal) cachePut(key string, results []Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.cache) >= t.capacity {
		var oldestKey string
		oldest := time.Time{}
		for k, e := range t.cache {
			if oldestKey == "" || e.cachedAt.Before(oldest) {
				oldestKey, oldest = k, e.cachedAt
			}
		}
		delete(t.cache, oldestKey)
	}
	t.cache[key] = cachedResults{results: results, cachedAt: t.now()}
}

// traversalCacheKey hashes the embedding, user, and config into a cache
// key so any parameter change misses.
func traversalCacheKey(embedding []float32, userID string, cfg TraversalConfig) string {
	h := sha256.New()
	var buf [4]byte
	for _, v := range embedding {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		h.Write(buf[:])
	}
	h.Write([]byte(userID))
	h.Write([]byte(strconv.Itoa(cfg.VectorTopK)))
	h.Write([]byte(strconv.Itoa(cfg.GraphDepth)))
	h.Write([]byte(strconv.FormatFloat(cfg.MinVectorScore, 'g', -1, 64)))
	h.Write([]byte(strconv.FormatFloat(cfg.MinCombinedScore, 'g', -1, 64)))
	for _, e := range cfg.EdgeTypes {
		h.Write([]byte(e))
	}
	return hex.EncodeToString(h.Sum(nil))
}
