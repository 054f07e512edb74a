// Package search implements the three retrieval strategies over the
// graph store: smart traversal (vector then graph expansion with
// combined scoring), onto-search (concept and tag weighted ranking),
// and chain-search (typed reasoning-chain expansion).
//
// All strategies start from a query embedding, pull candidates through
// smartVectorSearchWithChunks, and exclude soft-deleted memories.
package search

import (
	"context"
	"math"
	"time"
)

// Querier is the store surface this package needs.
// *helix.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, name string, params, out any) error
}

// Result is one scored search hit.
type Result struct {
	MemoryID      string  `json:"memory_id"`
	Content       string  `json:"content"`
	MemoryType    string  `json:"memory_type"`
	UserID        string  `json:"user_id"`
	CreatedAt     string  `json:"created_at"`
	VectorScore   float64 `json:"vector_score"`
	GraphScore    float64 `json:"graph_score"`
	TemporalScore float64 `json:"temporal_score"`
	Combined      float64 `json:"combined_score"`
	Depth         int     `json:"depth"`
	Source        string  `json:"source"` // "vector" or "graph"
}

// vectorHit is one record from smartVectorSearchWithChunks.
type vectorHit struct {
	MemoryID   string  `json:"memory_id"`
	Content    string  `json:"content"`
	MemoryType string  `json:"memory_type"`
	UserID     string  `json:"user_id"`
	CreatedAt  string  `json:"created_at"`
	Score      float64 `json:"score"`
	IsDeleted  int     `json:"is_deleted"`

	Embedding []float32 `json:"embedding,omitempty"`
}

// fetchVectorCandidates runs the shared vector phase: query the store,
// merge chunk hits with their parents, dedupe by memory ID, and drop
// soft-deleted records and other users' memories.
func fetchVectorCandidates(ctx context.Context, db Querier, embedding []float32, userID string, limit int) ([]vectorHit, error) {
	var out struct {
		Memories       []vectorHit `json:"memories"`
		ParentMemories []vectorHit `json:"parent_memories"`
	}
	err := db.Query(ctx, "smartVectorSearchWithChunks", map[string]any{
		"query_vector": embedding,
		"limit":        limit,
	}, &out)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var hits []vectorHit
	for _, h := range append(out.Memories, out.ParentMemories...) {
		if h.MemoryID == "" || seen[h.MemoryID] {
			continue
		}
		seen[h.MemoryID] = true
		if h.IsDeleted != 0 {
			continue
		}
		if userID != "" && h.UserID != "" && h.UserID != userID {
			continue
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// parseTime parses the store's timestamp formats.
func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// temporalFreshness scores recency as exp(-days_old/decay), clamped to
// [0,1]. Unparseable timestamps score a neutral 0.5.
func temporalFreshness(createdAt string, decayDays float64, now time.Time) float64 {
	created, ok := parseTime(createdAt)
	if !ok {
		return 0.5
	}
	daysOld := now.Sub(created).Seconds() / 86400
	return clamp01(math.Exp(-daysOld / decayDays))
}

// withinHours reports whether createdAt falls inside the trailing
// window. A nil window or unparseable timestamp always passes.
func withinHours(createdAt string, hours float64, now time.Time) bool {
	if hours <= 0 {
		return true
	}
	created, ok := parseTime(createdAt)
	if !ok {
		return true
	}
	return !created.Before(now.Add(-time.Duration(hours * float64(time.Hour))))
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
