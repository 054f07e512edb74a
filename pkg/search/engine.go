package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ontomem/omc/pkg/embed"
	"github.com/ontomem/omc/pkg/memory"
)

// Engine is the search façade: it picks a strategy per mode and adapts
// the results to the retrieval surface. Modes with smart traversal run
// the two-phase vector-graph strategy; full mode falls back to the
// weighted onto-search scan.
type Engine struct {
	db        Querier
	traversal *Traversal
	onto      *OntoSearch
	chain     *ChainSearch
	embedder  embed.Embedder
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineEmbedder lets the engine compute query embeddings when the
// caller passes none.
func WithEngineEmbedder(e embed.Embedder) EngineOption {
	return func(en *Engine) { en.embedder = e }
}

// WithEngineLogger sets the logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(en *Engine) { en.logger = l }
}

// NewEngine creates a search engine backed by db.
func NewEngine(db Querier, opts ...EngineOption) *Engine {
	en := &Engine{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(en)
	}
	en.traversal = NewTraversal(db, WithTraversalLogger(en.logger))
	en.onto = NewOntoSearch(db, en.logger)
	en.chain = NewChainSearch(db, en.logger)
	en.logger = en.logger.With("component", "search")
	return en
}

// Search runs the strategy behind the named mode and returns ranked
// hits. It satisfies the retrieval surface in pkg/memory.
func (en *Engine) Search(ctx context.Context, query string, embedding []float32, userID string, limit int, mode string) ([]memory.SearchHit, error) {
	m := ParseMode(mode)
	defaults := m.Defaults()
	if limit <= 0 || limit > defaults.MaxResults {
		limit = defaults.MaxResults
	}

	var err error
	embedding, err = en.ensureEmbedding(ctx, query, embedding)
	if err != nil {
		return nil, err
	}

	if !defaults.UseSmartTraversal {
		results, err := en.onto.Search(ctx, query, embedding, userID, OntoConfigForMode(m))
		if err != nil {
			return nil, err
		}
		return ontoHits(results, limit), nil
	}

	results, err := en.traversal.Search(ctx, embedding, userID, TraversalConfigForMode(m))
	if err != nil {
		return nil, err
	}
	return traversalHits(results, limit), nil
}

// OntoSearch runs the weighted concept-and-tag strategy directly.
func (en *Engine) OntoSearch(ctx context.Context, query string, embedding []float32, userID string, mode string) ([]OntoResult, error) {
	embedding, err := en.ensureEmbedding(ctx, query, embedding)
	if err != nil {
		return nil, err
	}
	return en.onto.Search(ctx, query, embedding, userID, OntoConfigForMode(ParseMode(mode)))
}

// ChainSearch expands reasoning chains using the named preset.
func (en *Engine) ChainSearch(ctx context.Context, query string, embedding []float32, userID string, limit int, preset string) (*ChainResult, error) {
	embedding, err := en.ensureEmbedding(ctx, query, embedding)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	return en.chain.Search(ctx, query, embedding, userID, limit, ChainConfigForPreset(preset))
}

// Stats exposes the traversal cache stats.
func (en *Engine) Stats() TraversalStats { return en.traversal.Stats() }

func (en *Engine) ensureEmbedding(ctx context.Context, query string, embedding []float32) ([]float32, error) {
	if len(embedding) > 0 {
		return embedding, nil
	}
	if en.embedder == nil {
		return nil, fmt.Errorf("search: no embedding for query and no embedder configured")
	}
	vec, err := en.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}
	return vec, nil
}

func traversalHits(results []Result, limit int) []memory.SearchHit {
	if len(results) > limit {
		results = results[:limit]
	}
	hits := make([]memory.SearchHit, len(results))
	for i, r := range results {
		hits[i] = memory.SearchHit{
			MemoryID: r.MemoryID,
			Content:  r.Content,
			Score:    r.Combined,
			Metadata: map[string]any{
				"memory_type": r.MemoryType,
				"created_at":  r.CreatedAt,
				"source":      r.Source,
				"depth":       r.Depth,
			},
		}
	}
	return hits
}

func ontoHits(results []OntoResult, limit int) []memory.SearchHit {
	if len(results) > limit {
		results = results[:limit]
	}
	hits := make([]memory.SearchHit, len(results))
	for i, r := range results {
		hits[i] = memory.SearchHit{
			MemoryID: r.MemoryID,
			Content:  r.Content,
			Score:    r.FinalScore,
			Metadata: map[string]any{
				"memory_type": r.MemoryType,
				"created_at":  r.CreatedAt,
				"source":      r.Source,
			},
		}
	}
	return hits
}
