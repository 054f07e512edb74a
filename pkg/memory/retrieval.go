package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// RetrievalDepth controls how much context retrieval assembles.
type RetrievalDepth string

const (
	// DepthShallow returns matched memories only.
	DepthShallow RetrievalDepth = "shallow"

	// DepthMedium reconstructs chunked memories and gathers one hop of
	// reasoning context.
	DepthMedium RetrievalDepth = "medium"

	// DepthDeep reconstructs chunks and gathers two hops of context.
	DepthDeep RetrievalDepth = "deep"
)

// ParseDepth maps a string to a RetrievalDepth, defaulting to medium.
func ParseDepth(s string) RetrievalDepth {
	switch strings.ToLower(s) {
	case "shallow":
		return DepthShallow
	case "deep":
		return DepthDeep
	default:
		return DepthMedium
	}
}

// searchMode maps a depth to the search engine mode it rides on.
func (d RetrievalDepth) searchMode() string {
	switch d {
	case DepthShallow:
		return "recent"
	case DepthDeep:
		return "deep"
	default:
		return "contextual"
	}
}

// SearchHit is one scored result from a search engine.
type SearchHit struct {
	MemoryID string         `json:"memory_id"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Searcher is the search surface retrieval rides on.
type Searcher interface {
	Search(ctx context.Context, query string, embedding []float32, userID string, limit int, mode string) ([]SearchHit, error)
}

// ReasoningChain is one logical relation in a retrieval result.
type ReasoningChain struct {
	FromMemoryID string `json:"from_memory_id"`
	ToMemoryID   string `json:"to_memory_id"`
	RelationType string `json:"relation_type"`
	Strength     int    `json:"strength"`
}

// EntityRef is an entity attached to a retrieved memory.
type EntityRef struct {
	EntityID   string `json:"entity_id"`
	Name       string `json:"name"`
	EntityType string `json:"entity_type"`
}

// RetrievalResult is the assembled answer to a retrieval query.
type RetrievalResult struct {
	Memories            []Memory         `json:"memories"`
	ChunksReconstructed int              `json:"chunks_reconstructed"`
	ReasoningChains     []ReasoningChain `json:"reasoning_chains,omitempty"`
	Entities            []EntityRef      `json:"entities,omitempty"`
	Metadata            map[string]any   `json:"metadata,omitempty"`
}

// Reconstructor reassembles chunked memories into their full content.
type Reconstructor struct {
	db     Querier
	logger *slog.Logger
}

// NewReconstructor creates a chunk reconstructor backed by db.
func NewReconstructor(db Querier, logger *slog.Logger) *Reconstructor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconstructor{db: db, logger: logger.With("component", "retrieval")}
}

// Reconstruct returns the memory's full content and chunk count. Unchunked
// memories come back as-is with a zero count. A chunk-fetch failure
// degrades to empty content so retrieval can continue with siblings.
func (r *Reconstructor) Reconstruct(ctx context.Context, memoryID string) (string, int, error) {
	var out struct {
		HasChunks bool   `json:"has_chunks"`
		Content   string `json:"content"`
		Chunks    []struct {
			Text     string `json:"text"`
			Position int    `json:"position"`
		} `json:"chunks"`
	}
	err := r.db.Query(ctx, "getMemoryWithChunks",
		map[string]string{"memory_id": memoryID}, &out)
	if err != nil {
		r.logger.Warn("chunk fetch failed", "memory", memoryID, "err", err)
		return "", 0, nil
	}
	if !out.HasChunks {
		return out.Content, 0, nil
	}

	sort.Slice(out.Chunks, func(i, j int) bool {
		return out.Chunks[i].Position < out.Chunks[j].Position
	})
	parts := make([]string, len(out.Chunks))
	for i, c := range out.Chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, " "), len(out.Chunks), nil
}

// Retriever runs search and assembles full retrieval results.
type Retriever struct {
	search        Searcher
	reconstructor *Reconstructor
	db            Querier
	logger        *slog.Logger
}

// NewRetriever creates a retrieval manager.
func NewRetriever(db Querier, search Searcher, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		search:        search,
		reconstructor: NewReconstructor(db, logger),
		db:            db,
		logger:        logger.With("component", "retrieval"),
	}
}

// RetrieveOptions tunes a retrieval call.
type RetrieveOptions struct {
	Depth            RetrievalDepth
	Limit            int
	IncludeReasoning bool
	IncludeEntities  bool
}

// Retrieve searches, reconstructs chunked results, and at medium and deep
// depth gathers per-memory reasoning relations and entities.
func (r *Retriever) Retrieve(ctx context.Context, query string, embedding []float32, userID string, opts RetrieveOptions) (*RetrievalResult, error) {
	if opts.Depth == "" {
		opts.Depth = DepthMedium
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	mode := opts.Depth.searchMode()

	hits, err := r.search.Search(ctx, query, embedding, userID, opts.Limit, mode)
	if err != nil {
		return nil, fmt.Errorf("memory: retrieve: %w", err)
	}

	result := &RetrievalResult{
		Metadata: map[string]any{
			"depth": string(opts.Depth),
			"mode":  mode,
			"query": query,
		},
	}

	for _, hit := range hits {
		m := Memory{
			MemoryID:   hit.MemoryID,
			Content:    hit.Content,
			UserID:     userID,
			MemoryType: metaString(hit.Metadata, "memory_type", TypeFact),
		}
		if opts.Depth != DepthShallow {
			full, chunks, _ := r.reconstructor.Reconstruct(ctx, hit.MemoryID)
			if chunks > 0 {
				m.Content = full
				result.ChunksReconstructed += chunks
			}
		}
		result.Memories = append(result.Memories, m)
	}

	if opts.Depth == DepthShallow {
		return result, nil
	}

	maxDepth := 1
	if opts.Depth == DepthDeep {
		maxDepth = 2
	}
	for _, m := range result.Memories {
		if opts.IncludeReasoning {
			result.ReasoningChains = append(result.ReasoningChains,
				r.reasoningRelations(ctx, m.MemoryID, maxDepth)...)
		}
		if opts.IncludeEntities {
			result.Entities = append(result.Entities,
				r.memoryEntities(ctx, m.MemoryID)...)
		}
	}
	return result, nil
}

func (r *Retriever) reasoningRelations(ctx context.Context, memoryID string, maxDepth int) []ReasoningChain {
	var out struct {
		Relations []struct {
			FromID       string `json:"from_id"`
			ToID         string `json:"to_id"`
			RelationType string `json:"relation_type"`
			Strength     int    `json:"strength"`
		} `json:"relations"`
	}
	err := r.db.Query(ctx, "getMemoryReasoningRelations", map[string]any{
		"memory_id": memoryID,
		"max_depth": maxDepth,
	}, &out)
	if err != nil {
		r.logger.Debug("reasoning relations unavailable", "memory", memoryID, "err", err)
		return nil
	}
	chains := make([]ReasoningChain, len(out.Relations))
	for i, rel := range out.Relations {
		chains[i] = ReasoningChain{
			FromMemoryID: rel.FromID,
			ToMemoryID:   rel.ToID,
			RelationType: rel.RelationType,
			Strength:     rel.Strength,
		}
	}
	return chains
}

func (r *Retriever) memoryEntities(ctx context.Context, memoryID string) []EntityRef {
	var out struct {
		Entities []EntityRef `json:"entities"`
	}
	err := r.db.Query(ctx, "getMemoryEntities",
		map[string]string{"memory_id": memoryID}, &out)
	if err != nil {
		r.logger.Debug("entities unavailable", "memory", memoryID, "err", err)
		return nil
	}
	return out.Entities
}

func metaString(m map[string]any, key, def string) string {
	if m == nil {
		return def
	}
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return def
}
