package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ontomem/omc/pkg/embed"
)

// conceptKeywords maps query words to ontology concepts for cheap
// query classification.
var conceptKeywords = []struct {
	keyword string
	concept string
}{
	{"preference", "Preference"}, {"like", "Preference"}, {"love", "Preference"},
	{"enjoy", "Preference"}, {"hate", "Preference"}, {"dislike", "Preference"},
	{"skill", "Skill"}, {"know", "Skill"}, {"learn", "Skill"},
	{"expert", "Skill"}, {"master", "Skill"},
	{"goal", "Goal"}, {"want", "Goal"}, {"plan", "Goal"},
	{"aim", "Goal"}, {"objective", "Goal"},
	{"fact", "Fact"}, {"remember", "Fact"}, {"true", "Fact"}, {"false", "Fact"},
	{"opinion", "Opinion"}, {"think", "Opinion"}, {"believe", "Opinion"}, {"feel", "Opinion"},
	{"experience", "Experience"}, {"did", "Experience"}, {"happened", "Experience"},
	{"achievement", "Achievement"}, {"completed", "Achievement"},
	{"finished", "Achievement"}, {"succeeded", "Achievement"},
}

// knownTags are the recognized context tags extractable from queries.
var knownTags = []string{
	"python", "fastapi", "rust", "javascript", "typescript", "react",
	"django", "flask", "nodejs", "docker", "kubernetes", "aws", "gcp",
	"postgresql", "mongodb", "redis", "helixdb", "ollama", "openai",
	"async", "api", "backend", "frontend", "database", "graph",
	"work", "personal", "project", "home", "travel", "health",
	"finance", "learning", "career", "family",
	"ai", "ml", "memory", "llm", "embedding", "vector", "search",
	"programming", "coding", "development", "architecture",
}

// ontoEdgeWeights maps connection groups to graph-expansion weights.
var ontoEdgeWeights = []struct {
	field    string
	relation string
	weight   float64
}{
	{"implies_out", "IMPLIES", 0.9},
	{"implies_in", "IMPLIES", 0.8},
	{"because_out", "BECAUSE", 0.95},
	{"because_in", "BECAUSE", 0.85},
	{"relation_out", "MEMORY_RELATION", 0.7},
	{"relation_in", "MEMORY_RELATION", 0.6},
}

// OntoConfig holds the weighted-ranking parameters. Weights across
// vector/concept/tag/graph/temporal sum to 1.0.
type OntoConfig struct {
	ConceptWeight  float64
	TagWeight      float64
	VectorWeight   float64
	GraphWeight    float64
	TemporalWeight float64

	MaxConceptDepth        int
	IncludeRelatedConcepts bool
	TemporalHours          float64 // 0 = unbounded
	TemporalDecayRate      float64
	MinConceptScore        float64
	MinFinalScore          float64
	BoostExactConceptMatch float64
	BoostTagMatch          float64
	MaxConceptsPerQuery    int
	MaxTagsPerQuery        int
	VectorTopK             int
	GraphDepth             int
}

// DefaultOntoConfig returns the balanced parameter set.
func DefaultOntoConfig() OntoConfig {
	return OntoConfig{
		ConceptWeight:          0.3,
		TagWeight:              0.15,
		VectorWeight:           0.35,
		GraphWeight:            0.1,
		TemporalWeight:         0.1,
		MaxConceptDepth:        3,
		IncludeRelatedConcepts: true,
		TemporalDecayRate:      30,
		MinConceptScore:        0.1,
		MinFinalScore:          0.2,
		BoostExactConceptMatch: 0.2,
		BoostTagMatch:          0.1,
		MaxConceptsPerQuery:    5,
		MaxTagsPerQuery:        10,
		VectorTopK:             20,
		GraphDepth:             2,
	}
}

// OntoConfigForMode returns the per-mode weight overrides.
func OntoConfigForMode(mode Mode) OntoConfig {
	cfg := DefaultOntoConfig()
	switch mode {
	case ModeRecent:
		cfg.TemporalWeight = 0.4
		cfg.VectorWeight = 0.3
		cfg.ConceptWeight = 0.2
		cfg.TagWeight = 0.05
		cfg.GraphWeight = 0.05
		cfg.TemporalHours = 24
		cfg.TemporalDecayRate = 7
		cfg.MinFinalScore = 0.15
	case ModeContextual:
		cfg.ConceptWeight = 0.4
		cfg.VectorWeight = 0.3
		cfg.TagWeight = 0.15
		cfg.TemporalWeight = 0.1
		cfg.GraphWeight = 0.05
		cfg.BoostExactConceptMatch = 0.3
	case ModeDeep:
		cfg.GraphWeight = 0.3
		cfg.ConceptWeight = 0.25
		cfg.VectorWeight = 0.25
		cfg.TemporalWeight = 0.1
		cfg.TagWeight = 0.1
		cfg.GraphDepth = 3
		cfg.MaxConceptDepth = 4
	case ModeFull:
		cfg.ConceptWeight = 0.25
		cfg.VectorWeight = 0.25
		cfg.GraphWeight = 0.2
		cfg.TagWeight = 0.15
		cfg.TemporalWeight = 0.15
	}
	return cfg
}

// ConceptMatch is a query-to-concept classification.
type ConceptMatch struct {
	ConceptID  string  `json:"concept_id"`
	Confidence float64 `json:"confidence"`
	MatchType  string  `json:"match_type"`
}

// OntoResult is one weighted result with per-dimension scores.
type OntoResult struct {
	Result
	ConceptScore    float64        `json:"concept_score"`
	TagScore        float64        `json:"tag_score"`
	FinalScore      float64        `json:"final_score"`
	MatchedConcepts []ConceptMatch `json:"matched_concepts,omitempty"`
	MatchedTags     []string       `json:"matched_tags,omitempty"`
}

// ClassifyQuery maps query keywords to concept matches, capped by the
// config. Keyword hits classify at fixed 0.8 confidence.
func ClassifyQuery(query string, cfg OntoConfig) []ConceptMatch {
	lower := strings.ToLower(query)
	var matches []ConceptMatch
	for _, kw := range conceptKeywords {
		if strings.Contains(lower, kw.keyword) {
			matches = append(matches, ConceptMatch{
				ConceptID:  kw.concept,
				Confidence: 0.8,
				MatchType:  "exact",
			})
		}
	}
	if len(matches) > cfg.MaxConceptsPerQuery {
		matches = matches[:cfg.MaxConceptsPerQuery]
	}
	return matches
}

// ExtractTags pulls known tags out of the query, capped by the config.
func ExtractTags(query string, cfg OntoConfig) []string {
	lower := strings.ToLower(query)
	var tags []string
	for _, tag := range knownTags {
		if strings.Contains(lower, tag) {
			tags = append(tags, tag)
		}
	}
	if len(tags) > cfg.MaxTagsPerQuery {
		tags = tags[:cfg.MaxTagsPerQuery]
	}
	return tags
}

// OntoSearch is the concept-and-tag weighted search strategy.
type OntoSearch struct {
	db     Querier
	logger *slog.Logger
	now    func() time.Time
}

// NewOntoSearch creates an onto-search strategy backed by db.
func NewOntoSearch(db Querier, logger *slog.Logger) *OntoSearch {
	if logger == nil {
		logger = slog.Default()
	}
	return &OntoSearch{db: db, logger: logger.With("component", "ontosearch"), now: time.Now}
}

// Search classifies the query, pulls vector candidates, scores them on
// five dimensions, expands the graph one layer, and ranks by the
// weighted final score.
func (o *OntoSearch) Search(ctx context.Context, query string, embedding []float32, userID string, cfg OntoConfig) ([]OntoResult, error) {
	concepts := ClassifyQuery(query, cfg)
	tags := ExtractTags(query, cfg)
	now := o.now()

	hits, err := fetchVectorCandidates(ctx, o.db, embedding, userID, cfg.VectorTopK)
	if err != nil {
		return nil, fmt.Errorf("search: onto vector phase: %w", err)
	}

	var results []OntoResult
	for _, h := range hits {
		if !withinHours(h.CreatedAt, cfg.TemporalHours, now) {
			continue
		}
		// Score against the query vector when the stored embedding came
		// back; the store-reported score is only a fallback.
		score := h.Score
		if len(h.Embedding) > 0 {
			score = rescaleCosine(embed.Cosine(embedding, h.Embedding))
		} else if score == 0 {
			score = 0.5
		}
		results = append(results, OntoResult{Result: Result{
			MemoryID:      h.MemoryID,
			Content:       h.Content,
			MemoryType:    h.MemoryType,
			UserID:        h.UserID,
			CreatedAt:     h.CreatedAt,
			VectorScore:   score,
			TemporalScore: temporalFreshness(h.CreatedAt, cfg.TemporalDecayRate, now),
			Source:        "vector",
		}})
	}

	for i := range results {
		o.scoreConceptsAndTags(ctx, &results[i], concepts, tags, cfg)
	}

	results = append(results, o.expand(ctx, results, cfg, now)...)

	return rankOnto(results, cfg), nil
}

// scoreConceptsAndTags fills the concept and tag dimensions of one
// result from its ontology links and content.
func (o *OntoSearch) scoreConceptsAndTags(ctx context.Context, r *OntoResult, concepts []ConceptMatch, tags []string, cfg OntoConfig) {
	memoryConcepts := o.memoryConcepts(ctx, r.MemoryID)

	if len(concepts) > 0 && len(memoryConcepts) > 0 {
		total, max := 0.0, 0.0
		for _, qc := range concepts {
			max += qc.Confidence
			if memoryConcepts[qc.ConceptID] {
				total += qc.Confidence + cfg.BoostExactConceptMatch
				r.MatchedConcepts = append(r.MatchedConcepts, qc)
			}
		}
		if max > 0 {
			r.ConceptScore = clamp01(total / max)
		}
	}

	if len(tags) > 0 {
		lower := strings.ToLower(r.Content)
		matched := 0
		for _, tag := range tags {
			if strings.Contains(lower, tag) {
				matched++
				r.MatchedTags = append(r.MatchedTags, tag)
			}
		}
		r.TagScore = clamp01(float64(matched)/float64(len(tags)) + cfg.BoostTagMatch)
	}
}

// memoryConcepts returns the concept IDs a memory is linked to through
// INSTANCE_OF and BELONGS_TO_CATEGORY edges. Failures score as no links.
func (o *OntoSearch) memoryConcepts(ctx context.Context, memoryID string) map[string]bool {
	var out struct {
		InstanceOf []struct {
			ConceptID string `json:"concept_id"`
		} `json:"instance_of"`
		BelongsTo []struct {
			ConceptID string `json:"concept_id"`
		} `json:"belongs_to"`
	}
	err := o.db.Query(ctx, "getMemoryConcepts",
		map[string]string{"memory_id": memoryID}, &out)
	if err != nil {
		o.logger.Debug("concept lookup failed", "memory", memoryID, "err", err)
		return nil
	}
	ids := make(map[string]bool, len(out.InstanceOf)+len(out.BelongsTo))
	for _, c := range out.InstanceOf {
		ids[c.ConceptID] = true
	}
	for _, c := range out.BelongsTo {
		ids[c.ConceptID] = true
	}
	return ids
}

// expand walks one layer of logical connections from each result, with
// fixed per-edge weights as the graph score. Neighbors get a neutral
// vector score.
func (o *OntoSearch) expand(ctx context.Context, results []OntoResult, cfg OntoConfig, now time.Time) []OntoResult {
	if cfg.GraphDepth == 0 {
		return nil
	}

	visited := make(map[string]bool, len(results))
	for _, r := range results {
		visited[r.MemoryID] = true
	}

	var expansion []OntoResult
	for _, r := range results {
		var conns map[string][]connectionNode
		err := o.db.Query(ctx, "getMemoryLogicalConnections",
			map[string]string{"memory_id": r.MemoryID}, &conns)
		if err != nil {
			continue
		}
		for _, ew := range ontoEdgeWeights {
			for _, n := range conns[ew.field] {
				if n.MemoryID == "" || visited[n.MemoryID] || n.IsDeleted != 0 {
					continue
				}
				visited[n.MemoryID] = true
				expansion = append(expansion, OntoResult{Result: Result{
					MemoryID:      n.MemoryID,
					Content:       n.Content,
					MemoryType:    n.MemoryType,
					UserID:        n.UserID,
					CreatedAt:     n.CreatedAt,
					VectorScore:   0.5,
					GraphScore:    ew.weight,
					TemporalScore: temporalFreshness(n.CreatedAt, cfg.TemporalDecayRate, now),
					Depth:         1,
					Source:        "graph",
				}})
			}
		}
	}
	return expansion
}

// rankOnto computes final scores, dedupes keeping the max, filters by
// the floor, and sorts descending.
func rankOnto(results []OntoResult, cfg OntoConfig) []OntoResult {
	best := make(map[string]OntoResult, len(results))
	for _, r := range results {
		r.FinalScore = r.VectorScore*cfg.VectorWeight +
			r.ConceptScore*cfg.ConceptWeight +
			r.TagScore*cfg.TagWeight +
			r.GraphScore*cfg.GraphWeight +
			r.TemporalScore*cfg.TemporalWeight
		if prev, ok := best[r.MemoryID]; !ok || r.FinalScore > prev.FinalScore {
			best[r.MemoryID] = r
		}
	}
	ranked := make([]OntoResult, 0, len(best))
	for _, r := range best {
		if r.FinalScore >= cfg.MinFinalScore {
			ranked = append(ranked, r)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})
	return ranked
}
