package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// ChainDirection restricts chain expansion to edge direction.
type ChainDirection string

const (
	// DirectionForward follows outgoing edges only.
	DirectionForward ChainDirection = "forward"

	// DirectionBackward follows incoming edges only.
	DirectionBackward ChainDirection = "backward"

	// DirectionBoth follows edges either way.
	DirectionBoth ChainDirection = "both"
)

// ChainConfig tunes a chain search.
type ChainConfig struct {
	MaxDepth              int
	Direction             ChainDirection
	RelationTypes         []string
	MinConfidence         float64
	IncludeContradictions bool
}

// DefaultChainConfig follows implications, causes, and contradictions
// both ways to depth 5.
func DefaultChainConfig() ChainConfig {
	return ChainConfig{
		MaxDepth:              5,
		Direction:             DirectionBoth,
		RelationTypes:         []string{"IMPLIES", "BECAUSE", "CONTRADICTS"},
		MinConfidence:         0.5,
		IncludeContradictions: true,
	}
}

// CausalOnlyConfig traces causes backward: "why is this so".
func CausalOnlyConfig() ChainConfig {
	return ChainConfig{
		MaxDepth:      5,
		Direction:     DirectionBackward,
		RelationTypes: []string{"BECAUSE"},
		MinConfidence: 0.5,
	}
}

// ImplicationsOnlyConfig traces consequences forward: "what follows".
func ImplicationsOnlyConfig() ChainConfig {
	return ChainConfig{
		MaxDepth:      5,
		Direction:     DirectionForward,
		RelationTypes: []string{"IMPLIES"},
		MinConfidence: 0.5,
	}
}

// DeepContextConfig casts the widest net for context assembly.
func DeepContextConfig() ChainConfig {
	return ChainConfig{
		MaxDepth:              7,
		Direction:             DirectionBoth,
		RelationTypes:         []string{"IMPLIES", "BECAUSE", "CONTRADICTS", "SUPPORTS", "REFUTES"},
		MinConfidence:         0.3,
		IncludeContradictions: true,
	}
}

// ChainConfigForPreset maps a preset name to its config.
func ChainConfigForPreset(name string) ChainConfig {
	switch name {
	case "causal_only":
		return CausalOnlyConfig()
	case "implications_only":
		return ImplicationsOnlyConfig()
	case "deep_context":
		return DeepContextConfig()
	default:
		return DefaultChainConfig()
	}
}

// ChainNode is one memory inside a reasoning chain.
type ChainNode struct {
	MemoryID     string `json:"memory_id"`
	Content      string `json:"content"`
	MemoryType   string `json:"memory_type,omitempty"`
	Depth        int    `json:"depth"`
	RelationType string `json:"relation_type,omitempty"` // empty on the seed
}

// Chain is a reasoning chain grown from one seed memory.
type Chain struct {
	SeedMemoryID string      `json:"seed_memory_id"`
	Nodes        []ChainNode `json:"nodes"`
	TotalDepth   int         `json:"total_depth"`
}

func (c *Chain) addNode(n ChainNode) {
	if n.Depth > c.TotalDepth {
		c.TotalDepth = n.Depth
	}
	c.Nodes = append(c.Nodes, n)
}

// ChainResult is the full answer to a chain search.
type ChainResult struct {
	Query         string      `json:"query"`
	Chains        []Chain     `json:"chains"`
	TotalMemories int         `json:"total_memories"`
	TotalChains   int         `json:"total_chains"`
	DeepestChain  int         `json:"deepest_chain"`
	Memories      []ChainNode `json:"memories"` // distinct, across chains
}

// ChainSearch expands reasoning chains from vector-seeded memories.
type ChainSearch struct {
	db     Querier
	logger *slog.Logger
}

// NewChainSearch creates a chain-search strategy backed by db.
func NewChainSearch(db Querier, logger *slog.Logger) *ChainSearch {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChainSearch{db: db, logger: logger.With("component", "chainsearch")}
}

// Search seeds from vector candidates and grows one chain per seed by
// depth-first expansion along the allowed relation types. Chains with a
// single node are discarded; the rest rank by node count, then depth.
func (c *ChainSearch) Search(ctx context.Context, query string, embedding []float32, userID string, limit int, cfg ChainConfig) (*ChainResult, error) {
	seeds, err := fetchVectorCandidates(ctx, c.db, embedding, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("search: chain seeds: %w", err)
	}
	if len(seeds) == 0 {
		return &ChainResult{Query: query}, nil
	}

	var chains []Chain
	for _, seed := range seeds {
		chain := Chain{SeedMemoryID: seed.MemoryID}
		chain.addNode(ChainNode{
			MemoryID:   seed.MemoryID,
			Content:    seed.Content,
			MemoryType: seed.MemoryType,
		})
		visited := map[string]bool{seed.MemoryID: true}
		c.expand(ctx, &chain, seed.MemoryID, 1, cfg, visited)
		if len(chain.Nodes) > 1 {
			chains = append(chains, chain)
		}
	}

	sort.Slice(chains, func(i, j int) bool {
		if len(chains[i].Nodes) != len(chains[j].Nodes) {
			return len(chains[i].Nodes) > len(chains[j].Nodes)
		}
		return chains[i].TotalDepth > chains[j].TotalDepth
	})

	result := &ChainResult{Query: query, Chains: chains, TotalChains: len(chains)}
	seen := make(map[string]bool)
	for _, chain := range chains {
		result.TotalMemories += len(chain.Nodes)
		if chain.TotalDepth > result.DeepestChain {
			result.DeepestChain = chain.TotalDepth
		}
		for _, n := range chain.Nodes {
			if !seen[n.MemoryID] {
				seen[n.MemoryID] = true
				result.Memories = append(result.Memories, n)
			}
		}
	}

	c.logger.Debug("chain search complete",
		"chains", result.TotalChains, "memories", result.TotalMemories, "deepest", result.DeepestChain)
	return result, nil
}

// chainEdges maps relation types to their connection-group fields and
// the relation label recorded on the node. Incoming edges get inverted
// labels so a chain reads naturally in either direction.
var chainEdges = []struct {
	relation string
	outField string
	inField  string
	outLabel string
	inLabel  string
}{
	{"IMPLIES", "implies_out", "implies_in", "IMPLIES", "IMPLIED_BY"},
	{"BECAUSE", "because_out", "because_in", "BECAUSE", "CAUSED_BY"},
	{"CONTRADICTS", "contradicts_out", "contradicts_in", "CONTRADICTS", "CONTRADICTED_BY"},
	{"SUPPORTS", "supports_out", "supports_in", "SUPPORTS", "SUPPORTED_BY"},
	{"REFUTES", "refutes_out", "refutes_in", "REFUTES", "REFUTED_BY"},
}

func (c *ChainSearch) expand(ctx context.Context, chain *Chain, nodeID string, depth int, cfg ChainConfig, visited map[string]bool) {
	if depth > cfg.MaxDepth {
		return
	}

	var conns map[string][]connectionNode
	err := c.db.Query(ctx, "getMemoryLogicalConnections",
		map[string]string{"memory_id": nodeID}, &conns)
	if err != nil {
		c.logger.Debug("connection fetch failed", "memory", nodeID, "err", err)
		return
	}

	allowed := make(map[string]bool, len(cfg.RelationTypes))
	for _, r := range cfg.RelationTypes {
		allowed[r] = true
	}

	type neighbor struct {
		node  connectionNode
		label string
	}
	var neighbors []neighbor
	for _, edge := range chainEdges {
		if !allowed[edge.relation] {
			continue
		}
		if edge.relation == "CONTRADICTS" && !cfg.IncludeContradictions {
			continue
		}
		if cfg.Direction != DirectionBackward {
			for _, n := range conns[edge.outField] {
				neighbors = append(neighbors, neighbor{n, edge.outLabel})
			}
		}
		if cfg.Direction != DirectionForward {
			for _, n := range conns[edge.inField] {
				neighbors = append(neighbors, neighbor{n, edge.inLabel})
			}
		}
	}

	for _, nb := range neighbors {
		if nb.node.MemoryID == "" || visited[nb.node.MemoryID] || nb.node.IsDeleted != 0 {
			continue
		}
		visited[nb.node.MemoryID] = true
		chain.addNode(ChainNode{
			MemoryID:     nb.node.MemoryID,
			Content:      nb.node.Content,
			MemoryType:   nb.node.MemoryType,
			Depth:        depth,
			RelationType: nb.label,
		})
		c.expand(ctx, chain, nb.node.MemoryID, depth+1, cfg, visited)
	}
}
