package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ontomem/omc/pkg/embed"
	"github.com/ontomem/omc/pkg/entity"
	"github.com/ontomem/omc/pkg/memory"
	"github.com/ontomem/omc/pkg/ontology"
)

// entityLinkConfidence is the confidence stored on memory→entity edges
// created from extraction output.
const entityLinkConfidence = 90

// MemoryResult reports what happened to one extracted memory.
type MemoryResult struct {
	Operation  Operation `json:"operation"`
	MemoryID   string    `json:"memory_id,omitempty"`
	TargetID   string    `json:"target_id,omitempty"`
	Confidence int       `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	Chunks     int       `json:"chunks,omitempty"`
	Edges      int       `json:"edges,omitempty"`
}

// Result summarizes one full write-path run.
type Result struct {
	Memories         []MemoryResult `json:"memories"`
	EntitiesLinked   int            `json:"entities_linked"`
	RelationsCreated int            `json:"relations_created"`
	ChunksCreated    int            `json:"chunks_created"`
}

// Created returns the IDs of memories this run added.
func (r *Result) Created() []string {
	var ids []string
	for _, m := range r.Memories {
		if m.Operation == OpAdd || m.Operation == OpSupersede || m.Operation == OpContradict {
			if m.MemoryID != "" {
				ids = append(ids, m.MemoryID)
			}
		}
	}
	return ids
}

// Pipeline is the memory write path: extract, decide, store, chunk,
// link, and integrate.
type Pipeline struct {
	db           Querier
	extractor    *Extractor
	decider      *DecisionEngine
	finder       *Finder
	edges        *EdgeCreator
	integrator   *Integrator
	store        *memory.Store
	evolution    *memory.Evolution
	supersession *memory.Supersession
	deletion     *memory.Deletion
	entities     *entity.Manager
	classifier   *ontology.Classifier
	chunker      *Chunker
	linker       *LinkBuilder
	embedder     embed.Embedder
	logger       *slog.Logger
}

// Deps bundles the collaborators a Pipeline needs. All fields are
// required except Chunker, Linker, Classifier, and Entities, which
// disable their stage when nil.
type Deps struct {
	DB           Querier
	Extractor    *Extractor
	Decider      *DecisionEngine
	Store        *memory.Store
	Evolution    *memory.Evolution
	Supersession *memory.Supersession
	Deletion     *memory.Deletion
	Entities     *entity.Manager
	Classifier   *ontology.Classifier
	Chunker      *Chunker
	Linker       *LinkBuilder
	Embedder     embed.Embedder
	Logger       *slog.Logger
}

// New assembles a write pipeline from its parts.
func New(d Deps) *Pipeline {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		db:           d.DB,
		extractor:    d.Extractor,
		decider:      d.Decider,
		finder:       NewFinder(d.DB, 0, 0, logger),
		edges:        NewEdgeCreator(d.DB, logger),
		integrator:   NewIntegrator(d.DB, logger),
		store:        d.Store,
		evolution:    d.Evolution,
		supersession: d.Supersession,
		deletion:     d.Deletion,
		entities:     d.Entities,
		classifier:   d.Classifier,
		chunker:      d.Chunker,
		linker:       d.Linker,
		embedder:     d.Embedder,
		logger:       logger.With("component", "pipeline"),
	}
}

// Process runs the full write path over raw text for one user.
//
// The text is extracted into atomic memories; each one is reconciled
// against similar existing memories and either added, merged, replaced,
// marked contradictory, deleted, or skipped. New memories get entity
// links, concept links, chunking for long content, and graph
// integration. Per-memory failures degrade to skipped entries; only
// extraction or embedding failures abort the run.
func (p *Pipeline) Process(ctx context.Context, text, userID string) (*Result, error) {
	extraction, err := p.extractor.Extract(ctx, text, true, true)
	if err != nil {
		return nil, fmt.Errorf("pipeline: extract: %w", err)
	}
	if len(extraction.Memories) == 0 {
		p.logger.Debug("nothing to remember", "user", userID)
		return &Result{}, nil
	}

	entityIDs := p.resolveEntities(ctx, extraction.Entities)

	result := &Result{}
	byText := make(map[string]string) // extracted text -> stored memory ID

	for _, m := range extraction.Memories {
		mr := p.processOne(ctx, m, userID, entityIDs, result)
		result.Memories = append(result.Memories, mr)
		if mr.MemoryID != "" {
			byText[m.Text] = mr.MemoryID
		}
	}

	result.RelationsCreated += p.createExtractedRelations(ctx, extraction.Relations, byText)
	return result, nil
}

func (p *Pipeline) processOne(ctx context.Context, m ExtractedMemory, userID string, entityIDs map[string]string, result *Result) MemoryResult {
	embedding, err := p.embedder.Embed(ctx, m.Text)
	if err != nil {
		p.logger.Warn("embedding failed, storing without reconciliation", "err", err)
	}

	var similar []SimilarMemory
	if len(embedding) > 0 {
		similar, err = p.finder.FindSimilar(ctx, embedding, userID, "")
		if err != nil {
			p.logger.Warn("similarity search failed", "err", err)
			similar = nil
		}
	}

	dec := p.decider.Decide(ctx, m.Text, similar, userID)
	mr := MemoryResult{
		Operation:  dec.Operation,
		TargetID:   dec.TargetMemoryID,
		Confidence: dec.Confidence,
		Reasoning:  dec.Reasoning,
	}

	switch dec.Operation {
	case OpAdd:
		added, err := p.addMemory(ctx, m, userID, embedding, entityIDs, &mr)
		if err != nil {
			p.logger.Error("add failed", "err", err)
			mr.Operation = OpNoop
			mr.Reasoning = "add failed: " + err.Error()
			return mr
		}
		mr.MemoryID = added

	case OpUpdate:
		content := dec.MergedContent
		if content == "" {
			content = m.Text
		}
		if err := p.evolution.Enhance(ctx, dec.TargetMemoryID, content); err != nil {
			p.logger.Error("update failed", "target", dec.TargetMemoryID, "err", err)
			mr.Operation = OpNoop
			mr.Reasoning = "update failed: " + err.Error()
			return mr
		}
		mr.MemoryID = dec.TargetMemoryID

	case OpSupersede:
		target := dec.SupersedesMemoryID
		if target == "" {
			target = dec.TargetMemoryID
		}
		old, err := p.store.Get(ctx, target)
		if err != nil {
			p.logger.Error("supersede target fetch failed", "target", target, "err", err)
			mr.Operation = OpNoop
			mr.Reasoning = "supersede failed: " + err.Error()
			return mr
		}
		res, err := p.supersession.Replace(ctx, old, m.Text, dec.Reasoning, false)
		if err != nil {
			p.logger.Error("supersede failed", "target", target, "err", err)
			mr.Operation = OpNoop
			mr.Reasoning = "supersede failed: " + err.Error()
			return mr
		}
		mr.MemoryID = res.NewMemoryID
		mr.TargetID = res.OldMemoryID
		mr.Edges = res.RelationsCopied

	case OpContradict:
		target := dec.ContradictsID
		if target == "" {
			target = dec.TargetMemoryID
		}
		added, err := p.addMemory(ctx, m, userID, embedding, entityIDs, &mr)
		if err != nil {
			p.logger.Error("contradiction add failed", "err", err)
			mr.Operation = OpNoop
			mr.Reasoning = "contradiction failed: " + err.Error()
			return mr
		}
		mr.MemoryID = added
		if err := p.evolution.Contradict(ctx, added, target, dec.Confidence); err != nil {
			p.logger.Warn("contradiction edge failed", "target", target, "err", err)
		}

	case OpDelete:
		if err := p.deletion.SoftDelete(ctx, dec.TargetMemoryID, "pipeline", dec.Reasoning); err != nil {
			p.logger.Error("delete failed", "target", dec.TargetMemoryID, "err", err)
			mr.Operation = OpNoop
			mr.Reasoning = "delete failed: " + err.Error()
		}

	case OpNoop:
		// Nothing to do; the reasoning explains why.
	}

	if mr.MemoryID != "" && len(dec.RelatesTo) > 0 {
		mr.Edges += p.applyDecisionRelations(ctx, mr.MemoryID, dec)
	}
	return mr
}

// applyDecisionRelations writes the reasoning edges the decision engine
// returned alongside its verdict, anchored on the surviving memory.
func (p *Pipeline) applyDecisionRelations(ctx context.Context, memoryID string, dec Decision) int {
	relations := make([]Relation, 0, len(dec.RelatesTo))
	for _, pair := range dec.RelatesTo {
		if pair[0] == "" || pair[0] == memoryID {
			continue
		}
		relations = append(relations, Relation{
			TargetID:     pair[0],
			RelationType: pair[1],
			Confidence:   float64(dec.Confidence) / 100,
			Reasoning:    dec.Reasoning,
		})
	}
	return p.edges.CreateRelations(ctx, memoryID, relations)
}

// addMemory stores one new memory and runs the post-store stages:
// entity links, concept links, chunking, and graph integration.
func (p *Pipeline) addMemory(ctx context.Context, m ExtractedMemory, userID string, embedding []float32, entityIDs map[string]string, mr *MemoryResult) (string, error) {
	added, err := p.store.Add(ctx, memory.AddInput{
		UserID:     userID,
		Content:    m.Text,
		MemoryType: m.MemoryType,
		Certainty:  m.Certainty,
		Importance: m.Importance,
		Source:     "extraction",
	})
	if err != nil {
		return "", err
	}

	p.linkEntities(ctx, added.InternalID, m.Entities, entityIDs)
	p.linkConcepts(ctx, added.MemoryID, m.Text)

	if p.chunker != nil {
		outcome, err := p.chunker.Process(ctx, added.MemoryID, added.InternalID, m.Text)
		if err != nil {
			p.logger.Warn("chunking failed", "memory", added.MemoryID, "err", err)
		} else if outcome.ChunksCreated > 0 {
			mr.Chunks = outcome.ChunksCreated
			if p.linker != nil {
				p.linker.LinkAll(ctx, added.MemoryID, outcome.Chunks)
			}
		}
	}

	if len(embedding) > 0 {
		mr.Edges += p.integrator.Integrate(ctx, added.MemoryID, userID, embedding)
	}
	return added.MemoryID, nil
}

// resolveEntities creates or fetches every extracted entity and returns
// a name -> entity ID map. Failures drop the entity with a warning.
func (p *Pipeline) resolveEntities(ctx context.Context, extracted []ExtractedEntity) map[string]string {
	ids := make(map[string]string)
	if p.entities == nil {
		return ids
	}
	for _, e := range extracted {
		ent, err := p.entities.GetOrCreate(ctx, e.Name, entity.ParseType(e.EntityType))
		if err != nil {
			p.logger.Warn("entity resolution failed", "name", e.Name, "err", err)
			continue
		}
		ids[e.Name] = ent.EntityID
		if e.ID != "" {
			ids[e.ID] = ent.EntityID
		}
	}
	return ids
}

func (p *Pipeline) linkEntities(ctx context.Context, memoryInternalID string, names []string, entityIDs map[string]string) {
	if p.entities == nil || memoryInternalID == "" {
		return
	}
	for _, name := range names {
		id, ok := entityIDs[name]
		if !ok {
			continue
		}
		if err := p.entities.LinkExtracted(ctx, memoryInternalID, id, entityLinkConfidence); err != nil {
			p.logger.Warn("entity link failed", "entity", id, "err", err)
		}
	}
}

// linkConcepts classifies the memory text and links the best category
// as the memory's instance-of concept, the rest as broader categories.
func (p *Pipeline) linkConcepts(ctx context.Context, memoryID, text string) {
	if p.classifier == nil {
		return
	}
	matches := p.classifier.Classify(text)
	for i, c := range matches {
		query := "linkMemoryToCategory"
		if i == 0 {
			query = "linkMemoryToInstanceOf"
		}
		err := p.db.Query(ctx, query, map[string]any{
			"memory_id":  memoryID,
			"concept_id": c.Concept,
			"confidence": int(c.Confidence * 100),
		}, nil)
		if err != nil {
			p.logger.Warn("concept link failed", "concept", c.Concept, "err", err)
		}
	}
}

// createExtractedRelations turns extractor relations, which reference
// memories by their exact text, into typed graph edges between the
// memories stored this run.
func (p *Pipeline) createExtractedRelations(ctx context.Context, relations []ExtractedRelation, byText map[string]string) int {
	created := 0
	for _, rel := range relations {
		fromID, okFrom := byText[rel.FromMemoryContent]
		toID, okTo := byText[rel.ToMemoryContent]
		if !okFrom || !okTo {
			p.logger.Debug("relation endpoints not stored, skipping",
				"type", rel.RelationType, "from_known", okFrom, "to_known", okTo)
			continue
		}
		created += p.edges.CreateRelations(ctx, fromID, []Relation{{
			TargetID:     toID,
			RelationType: rel.RelationType,
			Confidence:   float64(rel.Confidence) / 100,
			Reasoning:    rel.Explanation,
		}})
	}
	return created
}
