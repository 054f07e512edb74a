// Package ontology manages the concept hierarchy memories are classified
// into.
//
// Concepts form a tree rooted at "thing". Levels 0-2 are abstract
// scaffolding; level 3 holds the concrete memory categories (preference,
// skill, fact, goal, opinion, experience, achievement). The [Loader]
// bootstraps the base tree in the store and caches all concepts locally;
// the [Classifier] assigns categories to text with keyword scoring; the
// cache answers ancestor and subtype queries without touching the store.
package ontology

import (
	"context"
)

// Concept type labels.
const (
	TypeAbstract = "abstract"
	TypeConcrete = "concrete"
)

// abstractMaxLevel is the deepest level still considered scaffolding.
const abstractMaxLevel = 2

// Concept is one node in the hierarchy.
type Concept struct {
	ConceptID     string `json:"concept_id"`
	Name          string `json:"name"`
	ConceptType   string `json:"concept_type"`
	Description   string `json:"description"`
	ParentConcept string `json:"parent_concept"`
	Level         int    `json:"level"`
}

// TypeForLevel returns the concept type implied by a hierarchy level.
func TypeForLevel(level int) string {
	if level <= abstractMaxLevel {
		return TypeAbstract
	}
	return TypeConcrete
}

// Querier is the store surface the ontology needs.
type Querier interface {
	Query(ctx context.Context, name string, params, out any) error
}

// BaseConcepts is the tree installed by [Loader.EnsureInitialized].
var BaseConcepts = []Concept{
	{ConceptID: "thing", Name: "thing", Level: 0, Description: "Root of the ontology"},
	{ConceptID: "abstract_thing", Name: "abstract_thing", ParentConcept: "thing", Level: 1, Description: "Non-physical concepts"},
	{ConceptID: "physical_thing", Name: "physical_thing", ParentConcept: "thing", Level: 1, Description: "Physical objects and places"},
	{ConceptID: "mental_state", Name: "mental_state", ParentConcept: "abstract_thing", Level: 2, Description: "States of mind"},
	{ConceptID: "activity", Name: "activity", ParentConcept: "abstract_thing", Level: 2, Description: "Things people do"},
	{ConceptID: "attribute", Name: "attribute", ParentConcept: "abstract_thing", Level: 2, Description: "Properties and capabilities"},
	{ConceptID: "preference", Name: "preference", ParentConcept: "mental_state", Level: 3, Description: "Likes and dislikes"},
	{ConceptID: "opinion", Name: "opinion", ParentConcept: "mental_state", Level: 3, Description: "Beliefs and views"},
	{ConceptID: "goal", Name: "goal", ParentConcept: "mental_state", Level: 3, Description: "Intentions and plans"},
	{ConceptID: "skill", Name: "skill", ParentConcept: "attribute", Level: 3, Description: "Abilities and expertise"},
	{ConceptID: "fact", Name: "fact", ParentConcept: "attribute", Level: 3, Description: "Stable statements about the world"},
	{ConceptID: "experience", Name: "experience", ParentConcept: "activity", Level: 3, Description: "Events that happened"},
	{ConceptID: "achievement", Name: "achievement", ParentConcept: "activity", Level: 3, Description: "Completed accomplishments"},
}

func init() {
	for i := range BaseConcepts {
		BaseConcepts[i].ConceptType = TypeForLevel(BaseConcepts[i].Level)
	}
}
