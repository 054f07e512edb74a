package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ontomem/omc/pkg/chunk"
	"github.com/ontomem/omc/pkg/entity"
	"github.com/ontomem/omc/pkg/llm"
	"github.com/ontomem/omc/pkg/memory"
	"github.com/ontomem/omc/pkg/ontology"
	"github.com/ontomem/omc/pkg/resolve"
)

type mockDB struct {
	mu       sync.Mutex
	handlers map[string]func(params any) (any, error)
	calls    map[string]int
	params   map[string][]map[string]any
}

func newMockDB() *mockDB {
	return &mockDB{
		handlers: make(map[string]func(params any) (any, error)),
		calls:    make(map[string]int),
		params:   make(map[string][]map[string]any),
	}
}

func (m *mockDB) handle(name string, fn func(params any) (any, error)) {
	m.handlers[name] = fn
}

// ok registers a handler that accepts any params and returns resp.
func (m *mockDB) ok(name string, resp any) {
	m.handle(name, func(any) (any, error) { return resp, nil })
}

func (m *mockDB) Query(ctx context.Context, name string, params, out any) error {
	m.mu.Lock()
	m.calls[name]++
	switch pm := params.(type) {
	case map[string]any:
		m.params[name] = append(m.params[name], pm)
	case map[string]string:
		conv := make(map[string]any, len(pm))
		for k, v := range pm {
			conv[k] = v
		}
		m.params[name] = append(m.params[name], conv)
	}
	fn, ok := m.handlers[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("no handler for query %s", name)
	}
	resp, err := fn(params)
	if err != nil {
		return err
	}
	if out == nil || resp == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (m *mockDB) callCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockDB) lastParams(name string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps := m.params[name]
	if len(ps) == 0 {
		return nil
	}
	return ps[len(ps)-1]
}

// stubProvider returns canned responses keyed by a substring of the
// system prompt, so extraction and decision calls can answer
// differently in one test.
type stubProvider struct {
	mu        sync.Mutex
	responses map[string]string
	err       error
	calls     []string
}

func (s *stubProvider) Generate(ctx context.Context, system, user string, opts ...llm.GenOption) (string, llm.Metadata, error) {
	s.mu.Lock()
	s.calls = append(s.calls, user)
	s.mu.Unlock()
	if s.err != nil {
		return "", llm.Metadata{}, s.err
	}
	for key, resp := range s.responses {
		if strings.Contains(system, key) {
			return resp, llm.Metadata{Provider: "stub", Model: "stub"}, nil
		}
	}
	return "", llm.Metadata{}, errors.New("stub: no response configured")
}

func (s *stubProvider) Name() string { return "stub" }

type fixedEmbedder struct {
	vec []float32
	err error
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, f.err
}

func (f *fixedEmbedder) Dimension() int { return len(f.vec) }

func TestExtractorParsesAndDefaults(t *testing.T) {
	provider := &stubProvider{responses: map[string]string{
		"memory extraction": `{
			"memories": [{"text": "Alice prefers tea", "memory_type": "preference", "certainty": 90, "importance": 60, "entities": ["alice"]}],
			"entities": [{"id": "alice", "name": "Alice", "type": "person"}],
			"relations": [{"from_memory_content": "a", "to_memory_content": "b", "relation_type": "IMPLIES"}]
		}`,
	}}
	ex := NewExtractor(provider, nil)

	res, err := ex.Extract(context.Background(), "Alice said she prefers tea", true, true)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Memories) != 1 || res.Memories[0].MemoryType != "preference" {
		t.Fatalf("memories = %+v", res.Memories)
	}
	if len(res.Relations) != 1 || res.Relations[0].Strength != 80 || res.Relations[0].Confidence != 80 {
		t.Errorf("relation defaults not applied: %+v", res.Relations)
	}
}

func TestExtractorRepairsTruncatedJSON(t *testing.T) {
	provider := &stubProvider{responses: map[string]string{
		"memory extraction": `{"memories": [{"text": "fact one", "memory_type": "fact"}`,
	}}
	ex := NewExtractor(provider, nil)

	res, err := ex.Extract(context.Background(), "fact one", false, false)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Memories) != 1 || res.Memories[0].Text != "fact one" {
		t.Errorf("repaired result = %+v", res.Memories)
	}
}

func TestExtractorDegradesOnGarbage(t *testing.T) {
	provider := &stubProvider{responses: map[string]string{
		"memory extraction": "I could not produce JSON today.",
	}}
	ex := NewExtractor(provider, nil)

	res, err := ex.Extract(context.Background(), "whatever", false, false)
	if err != nil {
		t.Fatalf("Extract should not fail on unparseable output: %v", err)
	}
	if len(res.Memories) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestDecideNoCandidates(t *testing.T) {
	d := NewDecisionEngine(&stubProvider{}, nil)
	dec := d.Decide(context.Background(), "new fact", nil, "u1")
	if dec.Operation != OpAdd || dec.Confidence != 100 {
		t.Fatalf("decision = %+v", dec)
	}
	if dec.Reasoning != "No similar memories found, adding as new." {
		t.Errorf("reasoning = %q", dec.Reasoning)
	}
}

func TestDecideBelowThreshold(t *testing.T) {
	d := NewDecisionEngine(&stubProvider{}, nil)
	similar := []SimilarMemory{{ID: "mem_a", Content: "old", Score: 0.85}}
	dec := d.Decide(context.Background(), "new fact", similar, "u1")
	if dec.Operation != OpAdd || dec.Confidence != 95 {
		t.Fatalf("decision = %+v", dec)
	}
}

func TestDecideLLMVerdict(t *testing.T) {
	provider := &stubProvider{responses: map[string]string{
		"memory management expert": `{"operation": "UPDATE", "target_memory_id": "mem_a", "confidence": 88, "reasoning": "refines existing fact", "merged_content": "merged"}`,
	}}
	d := NewDecisionEngine(provider, nil)
	similar := []SimilarMemory{{ID: "mem_a", Content: "old", Score: 0.95}}
	dec := d.Decide(context.Background(), "new fact", similar, "u1")
	if dec.Operation != OpUpdate || dec.TargetMemoryID != "mem_a" || dec.MergedContent != "merged" {
		t.Fatalf("decision = %+v", dec)
	}
}

func TestDecideFallsBackOnLLMFailure(t *testing.T) {
	d := NewDecisionEngine(&stubProvider{err: errors.New("model down")}, nil)
	similar := []SimilarMemory{{ID: "mem_a", Content: "old", Score: 0.95}}
	dec := d.Decide(context.Background(), "new fact", similar, "u1")
	if dec.Operation != OpAdd || dec.Confidence != 50 {
		t.Fatalf("decision = %+v", dec)
	}
}

func TestDecideFallsBackOnBadOperation(t *testing.T) {
	provider := &stubProvider{responses: map[string]string{
		"memory management expert": `{"operation": "EXPLODE", "confidence": 99, "reasoning": "nope"}`,
	}}
	d := NewDecisionEngine(provider, nil)
	similar := []SimilarMemory{{ID: "mem_a", Content: "old", Score: 0.95}}
	dec := d.Decide(context.Background(), "new fact", similar, "u1")
	if dec.Operation != OpAdd || dec.Confidence != 50 {
		t.Fatalf("decision = %+v", dec)
	}
}

func TestFinderFiltersAndRanks(t *testing.T) {
	db := newMockDB()
	db.ok("smartVectorSearchWithChunks", map[string]any{
		"memories": []map[string]any{
			{"memory_id": "mem_self", "content": "self", "embedding": []float32{1, 0}},
			{"memory_id": "mem_close", "content": "close", "embedding": []float32{1, 0.1}},
			{"memory_id": "mem_far", "content": "far", "embedding": []float32{0, 1}},
			{"memory_id": "mem_other", "content": "other user", "user_id": "u2", "embedding": []float32{1, 0}},
			{"memory_id": "mem_gone", "content": "deleted", "is_deleted": 1, "embedding": []float32{1, 0}},
		},
		"parent_memories": []map[string]any{
			{"memory_id": "mem_close", "content": "dup", "embedding": []float32{1, 0.1}},
		},
	})

	f := NewFinder(db, 0, 0, nil)
	got, err := f.FindSimilar(context.Background(), []float32{1, 0}, "u1", "mem_self")
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(got) != 1 || got[0].ID != "mem_close" {
		t.Fatalf("similar = %+v", got)
	}
	if got[0].Score <= 0.9 {
		t.Errorf("cosine score = %f", got[0].Score)
	}
}

func TestInferRelations(t *testing.T) {
	rels := InferRelations([]SimilarMemory{
		{ID: "mem_a", Score: 0.9},
		{ID: "mem_b", Score: 0.7},
	})
	if len(rels) != 1 || rels[0].TargetID != "mem_a" || rels[0].RelationType != "RELATES_TO" {
		t.Fatalf("relations = %+v", rels)
	}
	if rels[0].Confidence != 0.9 || rels[0].Reasoning != "Semantic similarity: 0.90" {
		t.Errorf("relation = %+v", rels[0])
	}
}

func TestEdgeCreatorMapsRelationTypes(t *testing.T) {
	db := newMockDB()
	db.ok("addMemoryImplication", nil)
	db.ok("addMemoryCausation", nil)
	db.ok("addMemoryContradiction", nil)
	db.ok("addMemoryRelation", nil)

	ec := NewEdgeCreator(db, nil)
	created := ec.CreateRelations(context.Background(), "mem_src", []Relation{
		{TargetID: "t1", RelationType: "IMPLIES", Confidence: 0.9, Reasoning: "r1"},
		{TargetID: "t2", RelationType: "BECAUSE", Confidence: 0.8, Reasoning: "r2"},
		{TargetID: "t3", RelationType: "CONTRADICTS", Confidence: 0.7},
		{TargetID: "t4", RelationType: "RELATES_TO", Confidence: 0.6, Reasoning: "r4"},
	})
	if created != 4 {
		t.Fatalf("created = %d", created)
	}
	if p := db.lastParams("addMemoryImplication"); p["probability"] != 90 || p["from_id"] != "mem_src" {
		t.Errorf("implication params = %v", p)
	}
	if p := db.lastParams("addMemoryCausation"); p["strength"] != 80 {
		t.Errorf("causation params = %v", p)
	}
	if p := db.lastParams("addMemoryContradiction"); p["resolution_strategy"] != "coexist" {
		t.Errorf("contradiction params = %v", p)
	}
	if p := db.lastParams("addMemoryRelation"); p["relation_type"] != "RELATES_TO" || p["strength"] != 60 {
		t.Errorf("relation params = %v", p)
	}
}

func TestEdgeCreatorSkipsFailures(t *testing.T) {
	db := newMockDB()
	db.handle("addMemoryImplication", func(any) (any, error) {
		return nil, errors.New("edge rejected")
	})
	db.ok("addMemoryRelation", nil)

	ec := NewEdgeCreator(db, nil)
	created := ec.CreateRelations(context.Background(), "mem_src", []Relation{
		{TargetID: "t1", RelationType: "IMPLIES", Confidence: 0.9},
		{TargetID: "t2", RelationType: "RELATES_TO", Confidence: 0.8},
	})
	if created != 1 {
		t.Fatalf("created = %d, want failures skipped", created)
	}
}

func TestChunkerSkipsShortContent(t *testing.T) {
	db := newMockDB()
	splitter := chunk.NewSplitter(chunk.Config{
		Strategy:       chunk.StrategySentence,
		ChunkSize:      64,
		MinChunkLength: 1000,
		MinSentences:   2,
	})
	c := NewChunker(db, resolve.New(db), splitter, nil, nil)

	out, err := c.Process(context.Background(), "mem_a", "internal_a", "short text")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !out.Success || out.ChunksCreated != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	if db.callCount("addMemoryChunk") != 0 {
		t.Error("chunks stored for short content")
	}
}

func TestChunkerCreatesOrderedChunks(t *testing.T) {
	db := newMockDB()
	var mu sync.Mutex
	stored := make(map[string]map[string]any)
	db.handle("addMemoryChunk", func(params any) (any, error) {
		p := params.(map[string]any)
		mu.Lock()
		stored[p["chunk_id"].(string)] = p
		mu.Unlock()
		return map[string]any{"id": "internal_" + p["chunk_id"].(string)}, nil
	})

	splitter := chunk.NewSplitter(chunk.Config{
		Strategy:       chunk.StrategySentence,
		ChunkSize:      16,
		MinChunkLength: 50,
		MinSentences:   1,
	})
	events := NewEvents(32, nil)
	c := NewChunker(db, resolve.New(db), splitter, events, nil)

	long := strings.Repeat("This sentence pads the content out to length. ", 8)
	out, err := c.Process(context.Background(), "mem_a", "internal_a", long)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !out.Success || out.ChunksCreated < 2 {
		t.Fatalf("outcome = %+v", out)
	}
	for i, ck := range out.Chunks {
		if ck.Position != i {
			t.Fatalf("chunk %d has position %d", i, ck.Position)
		}
		want := fmt.Sprintf("mem_a_chunk_%d", i)
		if ck.ChunkID != want {
			t.Errorf("chunk id = %q, want %q", ck.ChunkID, want)
		}
		if stored[ck.ChunkID]["parent_id"] != "internal_a" {
			t.Errorf("chunk %s parent = %v", ck.ChunkID, stored[ck.ChunkID]["parent_id"])
		}
	}

	events.Close()
	var types []EventType
	for ev := range events.C() {
		types = append(types, ev.Type)
	}
	if types[0] != EventChunkingStarted || types[len(types)-1] != EventChunkingComplete {
		t.Errorf("event order = %v", types)
	}
}

func TestChunkerStoresChunkEmbeddings(t *testing.T) {
	db := newMockDB()
	db.handle("addMemoryChunk", func(params any) (any, error) {
		p := params.(map[string]any)
		return map[string]any{"id": "internal_" + p["chunk_id"].(string)}, nil
	})
	db.ok("addChunkEmbedding", nil)

	splitter := chunk.NewSplitter(chunk.Config{
		Strategy:       chunk.StrategySentence,
		ChunkSize:      16,
		MinChunkLength: 50,
		MinSentences:   1,
	})
	c := NewChunker(db, resolve.New(db), splitter, nil, nil,
		WithChunkEmbedder(&fixedEmbedder{vec: []float32{0.1, 0.2}}, "nomic-embed-text"))

	long := strings.Repeat("This sentence pads the content out to length. ", 8)
	out, err := c.Process(context.Background(), "mem_a", "internal_a", long)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := db.callCount("addChunkEmbedding"); got != out.ChunksCreated {
		t.Fatalf("embeddings stored = %d, chunks = %d", got, out.ChunksCreated)
	}
	p := db.lastParams("addChunkEmbedding")
	if p["embedding_model"] != "nomic-embed-text" {
		t.Errorf("embedding params = %v", p)
	}
	if p["chunk_id"].(string) == "" {
		t.Error("chunk embedding stored without internal id")
	}
}

func TestLinkBuilderChainsSequentially(t *testing.T) {
	db := newMockDB()
	db.ok("linkChunks", nil)

	lb := NewLinkBuilder(db, nil, nil)
	lb.LinkAll(context.Background(), "mem_a", []CreatedChunk{
		{ChunkID: "mem_a_chunk_2", InternalID: "i2", Position: 2},
		{ChunkID: "mem_a_chunk_0", InternalID: "i0", Position: 0},
		{ChunkID: "mem_a_chunk_1", InternalID: "i1", Position: 1},
	})

	if db.callCount("linkChunks") != 2 {
		t.Fatalf("linkChunks calls = %d, want 2", db.callCount("linkChunks"))
	}
	if p := db.lastParams("linkChunks"); p["from_chunk_id"] != "i1" || p["to_chunk_id"] != "i2" {
		t.Errorf("last link = %v", p)
	}
}

func TestLinkBuilderSingleChunkNoEdges(t *testing.T) {
	db := newMockDB()
	lb := NewLinkBuilder(db, nil, nil)
	lb.LinkAll(context.Background(), "mem_a", []CreatedChunk{{ChunkID: "c0", InternalID: "i0"}})
	if db.callCount("linkChunks") != 0 {
		t.Error("edges created for a single chunk")
	}
}

// newTestPipeline wires a pipeline where every graph query succeeds
// and the LLM extracts one memory and decides per the stub responses.
func newTestPipeline(db *mockDB, provider llm.Provider) *Pipeline {
	db.ok("getUser", nil)
	db.ok("addMemory", map[string]any{"id": "internal_new"})
	db.ok("addMemoryEmbedding", nil)
	db.ok("linkUserToMemory", nil)
	db.ok("linkMemoryToInstanceOf", nil)
	db.ok("linkMemoryToCategory", nil)
	db.ok("getEntityByName", map[string]any{"entities": []map[string]any{}})
	db.ok("createEntity", map[string]any{"id": "internal_ent"})
	db.ok("linkExtractedEntity", nil)
	db.ok("addMemoryRelation", nil)

	embedder := &fixedEmbedder{vec: []float32{1, 0, 0}}
	store := memory.NewStore(db, memory.WithEmbedder(embedder, "test-model"))
	evolution := memory.NewEvolution(db, store, nil)
	return New(Deps{
		DB:           db,
		Extractor:    NewExtractor(provider, nil),
		Decider:      NewDecisionEngine(provider, nil),
		Store:        store,
		Evolution:    evolution,
		Supersession: memory.NewSupersession(db, store, nil),
		Deletion:     memory.NewDeletion(db, nil),
		Entities:     entity.NewManager(db),
		Classifier:   ontology.NewClassifier(0.5),
		Embedder:     embedder,
	})
}

func TestProcessAddsNewMemory(t *testing.T) {
	provider := &stubProvider{responses: map[string]string{
		"memory extraction": `{
			"memories": [{"text": "Bob works at Acme", "memory_type": "fact", "certainty": 85, "importance": 55, "entities": ["Bob"]}],
			"entities": [{"id": "bob", "name": "Bob", "type": "person"}],
			"relations": []
		}`,
	}}
	db := newMockDB()
	db.ok("smartVectorSearchWithChunks", map[string]any{
		"memories": []map[string]any{}, "parent_memories": []map[string]any{},
	})

	p := newTestPipeline(db, provider)
	res, err := p.Process(context.Background(), "Bob mentioned he works at Acme", "u1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Memories) != 1 || res.Memories[0].Operation != OpAdd {
		t.Fatalf("result = %+v", res)
	}
	if res.Memories[0].MemoryID == "" {
		t.Error("no memory ID recorded")
	}
	if db.callCount("addMemory") != 1 {
		t.Errorf("addMemory calls = %d", db.callCount("addMemory"))
	}
	if db.callCount("linkExtractedEntity") != 1 {
		t.Errorf("entity link calls = %d", db.callCount("linkExtractedEntity"))
	}
	if p := db.lastParams("addMemory"); p["source"] != "extraction" {
		t.Errorf("source = %v", p["source"])
	}
}

func TestProcessUpdateMergesContent(t *testing.T) {
	provider := &stubProvider{responses: map[string]string{
		"memory extraction": `{"memories": [{"text": "Bob now works at Beta Corp", "memory_type": "fact"}], "entities": [], "relations": []}`,
		"memory management expert": `{"operation": "UPDATE", "target_memory_id": "mem_old", "confidence": 90,
			"reasoning": "employer changed", "merged_content": "Bob works at Beta Corp"}`,
	}}
	db := newMockDB()
	db.ok("smartVectorSearchWithChunks", map[string]any{
		"memories": []map[string]any{
			{"memory_id": "mem_old", "content": "Bob works at Acme", "embedding": []float32{1, 0, 0}},
		},
		"parent_memories": []map[string]any{},
	})
	db.ok("updateMemoryContent", nil)

	p := newTestPipeline(db, provider)
	res, err := p.Process(context.Background(), "Bob moved to Beta Corp", "u1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Memories[0].Operation != OpUpdate || res.Memories[0].MemoryID != "mem_old" {
		t.Fatalf("result = %+v", res.Memories[0])
	}
	if db.callCount("addMemory") != 0 {
		t.Error("UPDATE should not add a new memory")
	}
	if p := db.lastParams("updateMemoryContent"); p["content"] != "Bob works at Beta Corp" {
		t.Errorf("updated content = %v", p["content"])
	}
}

func TestProcessWritesDecisionRelations(t *testing.T) {
	provider := &stubProvider{responses: map[string]string{
		"memory extraction": `{"memories": [{"text": "Bob commutes by bike now", "memory_type": "fact"}], "entities": [], "relations": []}`,
		"memory management expert": `{"operation": "UPDATE", "target_memory_id": "mem_old", "confidence": 90,
			"reasoning": "commute changed", "merged_content": "Bob commutes by bike",
			"relates_to": [["mem_fitness", "IMPLIES"], ["mem_old", "RELATES_TO"]]}`,
	}}
	db := newMockDB()
	db.ok("smartVectorSearchWithChunks", map[string]any{
		"memories": []map[string]any{
			{"memory_id": "mem_old", "content": "Bob drives to work", "embedding": []float32{1, 0, 0}},
		},
		"parent_memories": []map[string]any{},
	})
	db.ok("updateMemoryContent", nil)
	db.ok("addMemoryImplication", nil)

	p := newTestPipeline(db, provider)
	res, err := p.Process(context.Background(), "Bob bikes to work these days", "u1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Memories[0].Edges != 1 {
		t.Errorf("edges = %d, want 1", res.Memories[0].Edges)
	}
	if db.callCount("addMemoryImplication") != 1 {
		t.Fatalf("implication calls = %d, want 1", db.callCount("addMemoryImplication"))
	}
	ep := db.lastParams("addMemoryImplication")
	if ep["from_id"] != "mem_old" || ep["to_id"] != "mem_fitness" || ep["probability"] != 90 {
		t.Errorf("implication = %v", ep)
	}
	// Self-referencing pairs are dropped, so no MEMORY_RELATION edge.
	if db.callCount("addMemoryRelation") != 0 {
		t.Error("self relation must be skipped")
	}
}

func TestProcessNoopStoresNothing(t *testing.T) {
	provider := &stubProvider{responses: map[string]string{
		"memory extraction":        `{"memories": [{"text": "Bob works at Acme", "memory_type": "fact"}], "entities": [], "relations": []}`,
		"memory management expert": `{"operation": "NOOP", "confidence": 97, "reasoning": "exact duplicate"}`,
	}}
	db := newMockDB()
	db.ok("smartVectorSearchWithChunks", map[string]any{
		"memories": []map[string]any{
			{"memory_id": "mem_old", "content": "Bob works at Acme", "embedding": []float32{1, 0, 0}},
		},
		"parent_memories": []map[string]any{},
	})

	p := newTestPipeline(db, provider)
	res, err := p.Process(context.Background(), "Bob works at Acme", "u1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Memories[0].Operation != OpNoop {
		t.Fatalf("result = %+v", res.Memories[0])
	}
	if db.callCount("addMemory") != 0 {
		t.Error("NOOP stored a memory")
	}
}

func TestProcessLinksExtractedRelations(t *testing.T) {
	provider := &stubProvider{responses: map[string]string{
		"memory extraction": `{
			"memories": [
				{"text": "It rained all day", "memory_type": "fact"},
				{"text": "The match was cancelled", "memory_type": "fact"}
			],
			"entities": [],
			"relations": [{
				"from_memory_content": "It rained all day",
				"to_memory_content": "The match was cancelled",
				"relation_type": "BECAUSE",
				"strength": 90, "confidence": 85,
				"explanation": "rain caused the cancellation"
			}]
		}`,
	}}
	db := newMockDB()
	db.ok("smartVectorSearchWithChunks", map[string]any{
		"memories": []map[string]any{}, "parent_memories": []map[string]any{},
	})
	db.ok("addMemoryCausation", nil)

	p := newTestPipeline(db, provider)
	res, err := p.Process(context.Background(), "It rained all day so the match was cancelled", "u1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.RelationsCreated != 1 {
		t.Fatalf("relations created = %d", res.RelationsCreated)
	}
	if p := db.lastParams("addMemoryCausation"); p["strength"] != 85 {
		t.Errorf("causation params = %v", p)
	}
}

func TestProcessEmptyExtraction(t *testing.T) {
	provider := &stubProvider{responses: map[string]string{
		"memory extraction": `{"memories": [], "entities": [], "relations": []}`,
	}}
	db := newMockDB()
	p := newTestPipeline(db, provider)

	res, err := p.Process(context.Background(), "hmm", "u1")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(res.Memories) != 0 {
		t.Fatalf("result = %+v", res)
	}
}
