// Package deploy manages the graph store's schema rollout. The schema
// is organized as six cumulative levels, from bare user management up
// to vector search; each level declares the nodes, edges, and named
// queries it introduces. A YAML manifest selects the target and level,
// Plan probes which levels the target already serves, and Apply posts
// the schema and query definitions.
package deploy

import "fmt"

// Level is one rung of the schema pyramid.
type Level int

const (
	Level0 Level = iota // user management
	Level1              // memory and entity CRUD
	Level2              // contexts and basic search
	Level3              // temporal queries and updates
	Level4              // reasoning relations
	Level5              // vectors and embeddings

	// MaxLevel is the highest defined level.
	MaxLevel = Level5
)

func (l Level) String() string { return fmt.Sprintf("LEVEL_%d", int(l)) }

// Valid reports whether l names a defined level.
func (l Level) Valid() bool { return l >= Level0 && l <= MaxLevel }

// Definition declares what one level adds to the schema.
type Definition struct {
	Level        Level
	Name         string
	Description  string
	Nodes        []string
	Edges        []string
	Extends      []string
	Queries      []string
	Dependencies []Level
	Notes        string

	// ProbeQuery is a query from this level used to detect whether the
	// level is already deployed on a target.
	ProbeQuery string
}

var definitions = [...]Definition{
	{
		Level:       Level0,
		Name:        "User Management",
		Description: "Base level: user management",
		Nodes:       []string{"User"},
		Queries:     []string{"addUser", "getUser"},
		Notes:       "Foundation. Without User, no memory.",
		ProbeQuery:  "getUser",
	},
	{
		Level:       Level1,
		Name:        "Memory CRUD",
		Description: "CRUD operations for memory and entities",
		Nodes:       []string{"Memory", "Entity"},
		Edges:       []string{"OWNS", "MENTIONS"},
		Queries: []string{
			"addMemory", "getMemory", "addEntity", "getEntity",
			"getMemoriesByUser", "getEntitiesByMemory",
		},
		Dependencies: []Level{Level0},
		Notes:        "Memory linked to User via OWNS.",
		ProbeQuery:   "getMemory",
	},
	{
		Level:       Level2,
		Name:        "Context & Search",
		Description: "Contexts and basic memory search",
		Nodes:       []string{"Context"},
		Edges:       []string{"IN_CONTEXT"},
		Queries: []string{
			"addContext", "getContext", "getMemoriesByContext",
			"searchMemories", "searchMemoriesByKeyword",
		},
		Dependencies: []Level{Level0, Level1},
		Notes:        "Contexts for memory grouping. Search without vectors.",
		ProbeQuery:   "searchMemories",
	},
	{
		Level:       Level3,
		Name:        "Temporal & Update",
		Description: "Temporal queries and UPDATE operations",
		Queries: []string{
			"updateMemory", "getRecentMemories",
			"searchRecentMemories", "getMemoriesByDateRange",
		},
		Dependencies: []Level{Level0, Level1, Level2},
		Notes:        "Updates go through a two-query pattern: resolve the internal ID, then update by it.",
		ProbeQuery:   "getRecentMemories",
	},
	{
		Level:       Level4,
		Name:        "Relations & Reasoning",
		Description: "Reasoning relations (causality and conflicts)",
		Nodes:       []string{"ReasoningRelation"},
		Edges: []string{
			"IMPLIES", "BECAUSE", "CONTRADICTS", "SUPERSEDES",
			"DERIVED_FROM", "SUPPORTS", "REFUTES",
		},
		Queries: []string{
			"addMemoryRelation", "getMemoryRelations",
			"getReasoningChain", "detectConflicts", "getRelatedMemories",
		},
		Dependencies: []Level{Level1},
		Notes:        "Relations are built between Memory nodes.",
		ProbeQuery:   "getMemoryRelations",
	},
	{
		Level:       Level5,
		Name:        "Vectors & Embeddings",
		Description: "Vector search and embeddings",
		Extends:     []string{"Memory"},
		Queries: []string{
			"addMemoryWithVector", "searchVectorMemories",
			"searchMemoriesByText", "searchHybrid",
		},
		Dependencies: []Level{Level1},
		Notes:        "Embeddings are computed client-side. Schema extends Memory with vector fields.",
		ProbeQuery:   "searchVectorMemories",
	},
}

// Get returns the definition for l.
func Get(l Level) (Definition, error) {
	if !l.Valid() {
		return Definition{}, fmt.Errorf("deploy: no such level %d", int(l))
	}
	return definitions[l], nil
}

// All returns every level definition in pyramid order.
func All() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions[:])
	return out
}

// Order returns the deployment order up to and including max: levels
// are cumulative, so this is simply 0..max.
func Order(max Level) []Level {
	if max > MaxLevel {
		max = MaxLevel
	}
	levels := make([]Level, 0, int(max)+1)
	for l := Level0; l <= max; l++ {
		levels = append(levels, l)
	}
	return levels
}

// Dependencies returns the transitive dependencies of target, sorted,
// excluding target itself.
func Dependencies(target Level) []Level {
	required := make(map[Level]bool)
	var walk func(l Level)
	walk = func(l Level) {
		def := definitions[l]
		for _, dep := range def.Dependencies {
			if !required[dep] {
				required[dep] = true
				walk(dep)
			}
		}
	}
	if target.Valid() {
		walk(target)
	}
	var out []Level
	for l := Level0; l < target; l++ {
		if required[l] {
			out = append(out, l)
		}
	}
	return out
}

// AccumulatedQueries returns every query name available once levels
// 0..max are deployed.
func AccumulatedQueries(max Level) []string {
	var out []string
	for _, l := range Order(max) {
		out = append(out, definitions[l].Queries...)
	}
	return out
}
