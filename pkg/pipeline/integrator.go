package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/ontomem/omc/pkg/embed"
)

// Integration defaults.
const (
	// DefaultFinderThreshold is the minimum cosine similarity for a
	// candidate to count as similar.
	DefaultFinderThreshold = 0.7

	// DefaultMaxSimilar caps how many candidates the finder keeps.
	DefaultMaxSimilar = 5

	// heuristicRelationThreshold is the similarity above which the
	// heuristic inferrer emits a RELATES_TO relation.
	heuristicRelationThreshold = 0.75
)

// Relation is one inferred relation from a new memory to an existing one.
type Relation struct {
	TargetID     string
	RelationType string
	Confidence   float64
	Reasoning    string
}

// Finder locates memories similar to a new one by real cosine
// similarity between stored embeddings and the new memory's embedding.
type Finder struct {
	db         Querier
	threshold  float64
	maxSimilar int
	logger     *slog.Logger
}

// NewFinder creates a similar-memory finder.
func NewFinder(db Querier, threshold float64, maxSimilar int, logger *slog.Logger) *Finder {
	if threshold == 0 {
		threshold = DefaultFinderThreshold
	}
	if maxSimilar <= 0 {
		maxSimilar = DefaultMaxSimilar
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{db: db, threshold: threshold, maxSimilar: maxSimilar, logger: logger.With("component", "finder")}
}

type finderHit struct {
	MemoryID  string    `json:"memory_id"`
	Content   string    `json:"content"`
	UserID    string    `json:"user_id"`
	CreatedAt string    `json:"created_at"`
	IsDeleted int       `json:"is_deleted"`
	Embedding []float32 `json:"embedding"`
	Score     float64   `json:"score"`
}

// FindSimilar returns up to maxSimilar candidates above the similarity
// threshold, excluding excludeID and other users' memories. Similarity
// is always computed against the query embedding; a store-reported
// score is only a fallback when no stored vector came back.
func (f *Finder) FindSimilar(ctx context.Context, embedding []float32, userID, excludeID string) ([]SimilarMemory, error) {
	var out struct {
		Memories       []finderHit `json:"memories"`
		ParentMemories []finderHit `json:"parent_memories"`
	}
	err := f.db.Query(ctx, "smartVectorSearchWithChunks", map[string]any{
		"query_vector": embedding,
		"limit":        f.maxSimilar * 2,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("pipeline: find similar: %w", err)
	}

	seen := make(map[string]bool)
	var candidates []SimilarMemory
	for _, h := range append(out.Memories, out.ParentMemories...) {
		if h.MemoryID == "" || seen[h.MemoryID] {
			continue
		}
		seen[h.MemoryID] = true
		if h.MemoryID == excludeID || h.IsDeleted != 0 {
			continue
		}
		if userID != "" && h.UserID != "" && h.UserID != userID {
			continue
		}

		score := h.Score
		if len(h.Embedding) > 0 {
			score = embed.Cosine(embedding, h.Embedding)
		}
		if score < f.threshold {
			continue
		}
		candidates = append(candidates, SimilarMemory{
			ID:        h.MemoryID,
			Content:   h.Content,
			Score:     score,
			CreatedAt: h.CreatedAt,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > f.maxSimilar {
		candidates = candidates[:f.maxSimilar]
	}
	return candidates, nil
}

// InferRelations derives relations from a new memory to its similar
// candidates: every candidate at or above the heuristic threshold gets
// a RELATES_TO edge with confidence equal to the similarity.
func InferRelations(similar []SimilarMemory) []Relation {
	var relations []Relation
	for _, s := range similar {
		if s.Score < heuristicRelationThreshold {
			continue
		}
		relations = append(relations, Relation{
			TargetID:     s.ID,
			RelationType: "RELATES_TO",
			Confidence:   s.Score,
			Reasoning:    fmt.Sprintf("Semantic similarity: %.2f", s.Score),
		})
	}
	return relations
}

// EdgeCreator writes typed relation edges into the graph.
type EdgeCreator struct {
	db     Querier
	logger *slog.Logger
}

// NewEdgeCreator creates an edge creator backed by db.
func NewEdgeCreator(db Querier, logger *slog.Logger) *EdgeCreator {
	if logger == nil {
		logger = slog.Default()
	}
	return &EdgeCreator{db: db, logger: logger.With("component", "edges")}
}

// CreateRelations writes one edge per relation with the query matching
// its type. Individual failures are logged and skipped; the count of
// created edges comes back.
func (e *EdgeCreator) CreateRelations(ctx context.Context, sourceID string, relations []Relation) int {
	created := 0
	for _, rel := range relations {
		var err error
		switch rel.RelationType {
		case "IMPLIES":
			err = e.db.Query(ctx, "addMemoryImplication", map[string]any{
				"from_id":      sourceID,
				"to_id":        rel.TargetID,
				"probability":  confScore(rel.Confidence),
				"reasoning_id": truncate(rel.Reasoning, 255),
			}, nil)
		case "BECAUSE":
			err = e.db.Query(ctx, "addMemoryCausation", map[string]any{
				"from_id":      sourceID,
				"to_id":        rel.TargetID,
				"strength":     confScore(rel.Confidence),
				"reasoning_id": truncate(rel.Reasoning, 255),
			}, nil)
		case "CONTRADICTS":
			err = e.db.Query(ctx, "addMemoryContradiction", map[string]any{
				"from_id":             sourceID,
				"to_id":               rel.TargetID,
				"confidence":          confScore(rel.Confidence),
				"resolution":          "",
				"resolved":            0,
				"resolution_strategy": "coexist",
			}, nil)
		default:
			err = e.db.Query(ctx, "addMemoryRelation", map[string]any{
				"source_id":     sourceID,
				"target_id":     rel.TargetID,
				"relation_type": rel.RelationType,
				"strength":      confScore(rel.Confidence),
				"created_at":    nowRFC3339(),
				"metadata":      rel.Reasoning,
			}, nil)
		}
		if err != nil {
			e.logger.Warn("relation edge failed",
				"from", sourceID, "to", rel.TargetID, "type", rel.RelationType, "err", err)
			continue
		}
		created++
	}
	return created
}

// Integrator connects a newly created memory into the graph: it finds
// similar memories, infers relations, and writes the edges.
type Integrator struct {
	finder *Finder
	edges  *EdgeCreator
	logger *slog.Logger
}

// NewIntegrator creates a graph integrator.
func NewIntegrator(db Querier, logger *slog.Logger) *Integrator {
	return &Integrator{
		finder: NewFinder(db, 0, 0, logger),
		edges:  NewEdgeCreator(db, logger),
		logger: func() *slog.Logger {
			if logger == nil {
				logger = slog.Default()
			}
			return logger.With("component", "integrator")
		}(),
	}
}

// Integrate wires memoryID into the graph. Failures degrade to logs:
// a memory without relations is still a stored memory.
func (in *Integrator) Integrate(ctx context.Context, memoryID, userID string, embedding []float32) int {
	similar, err := in.finder.FindSimilar(ctx, embedding, userID, memoryID)
	if err != nil {
		in.logger.Warn("integration search failed", "memory", memoryID, "err", err)
		return 0
	}
	if len(similar) == 0 {
		return 0
	}
	relations := InferRelations(similar)
	created := in.edges.CreateRelations(ctx, memoryID, relations)
	in.logger.Debug("integration complete",
		"memory", memoryID, "similar", len(similar), "edges", created)
	return created
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// confScore maps a 0..1 confidence to the store's 0..100 integer scale.
func confScore(c float64) int {
	return int(math.Round(c * 100))
}
