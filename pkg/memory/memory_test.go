package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/ontomem/omc/pkg/helix"
)

// mockDB routes named queries to handlers and records every invocation.
type mockDB struct {
	mu       sync.Mutex
	handlers map[string]func(params any) (any, error)
	log      []string
	params   map[string][]any
}

func newMockDB() *mockDB {
	return &mockDB{
		handlers: make(map[string]func(params any) (any, error)),
		params:   make(map[string][]any),
	}
}

func (m *mockDB) handle(name string, fn func(params any) (any, error)) {
	m.handlers[name] = fn
}

func (m *mockDB) Query(ctx context.Context, name string, params, out any) error {
	m.mu.Lock()
	m.log = append(m.log, name)
	m.params[name] = append(m.params[name], params)
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

func (m *mockDB) calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.params[name])
}

func (m *mockDB) lastParams(name string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps := m.params[name]
	if len(ps) == 0 {
		return nil
	}
	if p, ok := ps[len(ps)-1].(map[string]any); ok {
		return p
	}
	return nil
}

// fixedEmbedder returns one constant vector.
type fixedEmbedder struct{ fail bool }

func (f fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("embedder down")
	}
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

func (f fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	v, err := f.Embed(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = v
	}
	return out, nil
}

func (fixedEmbedder) Dimension() int { return 4 }

func newAddDB() *mockDB {
	db := newMockDB()
	db.handle("getUser", func(any) (any, error) {
		return nil, fmt.Errorf("getUser: %w", helix.ErrNotFound)
	})
	db.handle("addUser", func(any) (any, error) { return nil, nil })
	db.handle("addMemory", func(any) (any, error) {
		return map[string]string{"id": "internal-123"}, nil
	})
	db.handle("addMemoryEmbedding", func(any) (any, error) { return nil, nil })
	db.handle("linkUserToMemory", func(any) (any, error) { return nil, nil })
	return db
}

func TestAddCreatesUserLazily(t *testing.T) {
	db := newAddDB()
	s := NewStore(db, WithEmbedder(fixedEmbedder{}, "nomic-embed-text"))

	res, err := s.Add(context.Background(), AddInput{UserID: "alice", Content: "Alice likes tea."})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.MemoryID, "mem_") || len(res.MemoryID) != 16 {
		t.Errorf("memory id = %q", res.MemoryID)
	}
	if res.InternalID != "internal-123" || !res.Embedded {
		t.Errorf("result = %+v", res)
	}
	if db.calls("addUser") != 1 {
		t.Error("missing user must be created")
	}
	up := db.lastParams("addUser")
	if up["user_id"] != "alice" || up["name"] != "User alice" {
		t.Errorf("addUser params = %v", up)
	}
	if _, ok := up["created_at"]; ok {
		t.Error("addUser must not carry created_at")
	}
	if db.calls("linkUserToMemory") != 1 {
		t.Error("memory must be linked to its user")
	}
	if got := db.lastParams("linkUserToMemory")["context"]; got != "created" {
		t.Errorf("link context = %v", got)
	}
}

func TestAddDefaults(t *testing.T) {
	db := newAddDB()
	s := NewStore(db)

	if _, err := s.Add(context.Background(), AddInput{UserID: "u", Content: "c"}); err != nil {
		t.Fatal(err)
	}
	p := db.lastParams("addMemory")
	if p["memory_type"] != TypeFact || p["certainty"] != 80 || p["importance"] != 50 || p["source"] != "user" {
		t.Errorf("defaults = %v", p)
	}
	if p["valid_until"] != "" || p["immutable"] != 0 {
		t.Errorf("fresh record fields = %v", p)
	}
}

func TestAddMissingInternalID(t *testing.T) {
	db := newAddDB()
	db.handle("addMemory", func(any) (any, error) {
		return map[string]string{"id": ""}, nil
	})
	s := NewStore(db)

	_, err := s.Add(context.Background(), AddInput{UserID: "u", Content: "c"})
	if !errors.Is(err, ErrMissingInternalID) {
		t.Fatalf("err = %v, want ErrMissingInternalID", err)
	}
}

func TestAddEmbeddingFailureIsNotFatal(t *testing.T) {
	db := newAddDB()
	s := NewStore(db, WithEmbedder(fixedEmbedder{fail: true}, "m"))

	res, err := s.Add(context.Background(), AddInput{UserID: "u", Content: "c"})
	if err != nil {
		t.Fatalf("embedding failure must not fail the write: %v", err)
	}
	if res.Embedded {
		t.Error("result must reflect the missing embedding")
	}
}

func TestSupersedeClosesValidityAndLinks(t *testing.T) {
	db := newMockDB()
	db.handle("updateMemoryValidUntil", func(any) (any, error) { return nil, nil })
	db.handle("addMemoryRelation", func(any) (any, error) { return nil, nil })
	e := NewEvolution(db, NewStore(db), nil)

	if err := e.Supersede(context.Background(), "mem_old", "mem_new"); err != nil {
		t.Fatal(err)
	}
	if p := db.lastParams("updateMemoryValidUntil"); p["memory_id"] != "mem_old" || p["valid_until"] == "" {
		t.Errorf("validity update = %v", p)
	}
	// Param keys must match the addMemoryRelation contract exactly.
	p := db.lastParams("addMemoryRelation")
	if p["source_id"] != "mem_new" || p["target_id"] != "mem_old" ||
		p["relation_type"] != RelationSupersedes || p["strength"] != supersedeConfidence {
		t.Errorf("edge = %v", p)
	}
	if _, ok := p["from_memory_id"]; ok {
		t.Error("edge must not carry from_memory_id")
	}
	if p["created_at"] == "" {
		t.Error("created_at not set")
	}
}

func TestSupersedeEdgeFailureIsNotFatal(t *testing.T) {
	db := newMockDB()
	db.handle("updateMemoryValidUntil", func(any) (any, error) { return nil, nil })
	db.handle("addMemoryRelation", func(any) (any, error) {
		return nil, errors.New("graph write failed")
	})
	e := NewEvolution(db, NewStore(db), nil)

	if err := e.Supersede(context.Background(), "mem_old", "mem_new"); err != nil {
		t.Fatalf("edge failure must degrade to a log: %v", err)
	}
}

func TestContradictIsBidirectional(t *testing.T) {
	db := newMockDB()
	db.handle("addMemoryContradiction", func(any) (any, error) { return nil, nil })
	e := NewEvolution(db, NewStore(db), nil)

	if err := e.Contradict(context.Background(), "mem_a", "mem_b", 70); err != nil {
		t.Fatal(err)
	}
	if db.calls("addMemoryContradiction") != 2 {
		t.Fatalf("contradiction edges = %d, want 2", db.calls("addMemoryContradiction"))
	}
	db.mu.Lock()
	first := db.params["addMemoryContradiction"][0].(map[string]any)
	second := db.params["addMemoryContradiction"][1].(map[string]any)
	db.mu.Unlock()
	if first["from_id"] != "mem_a" || first["to_id"] != "mem_b" ||
		second["from_id"] != "mem_b" || second["to_id"] != "mem_a" {
		t.Errorf("edges = %v / %v", first, second)
	}
	if first["confidence"] != 70 || second["confidence"] != 70 {
		t.Error("both edges must carry equal confidence")
	}
}

func TestSupersessionReplaceCopiesRelations(t *testing.T) {
	db := newAddDB()
	db.handle("updateMemoryValidUntil", func(any) (any, error) { return nil, nil })
	db.handle("addMemorySupersession", func(any) (any, error) { return nil, nil })
	db.handle("addMemoryRelation", func(any) (any, error) { return nil, nil })
	db.handle("addMemoryImplication", func(any) (any, error) { return nil, nil })
	db.handle("addMemoryCausation", func(any) (any, error) { return nil, nil })
	db.handle("getMemoryOutgoingRelations", func(any) (any, error) {
		return map[string]any{
			"implies_out": []map[string]any{
				{"to": map[string]any{"memory_id": "mem_x"}, "probability": 90},
			},
			"because_out": []map[string]any{
				{"to": map[string]any{"memory_id": "mem_y"}},
			},
			"relations_out": []map[string]any{
				{"to": map[string]any{"memory_id": "mem_z"}, "relation_type": "RELATES_TO", "strength": 70},
			},
		}, nil
	})

	store := NewStore(db)
	sup := NewSupersession(db, store, nil)
	old := &Memory{MemoryID: "mem_old", UserID: "u", MemoryType: TypePreference, Certainty: 90, Importance: 60}

	res, err := sup.Replace(context.Background(), old, "updated fact", "newer information", false)
	if err != nil {
		t.Fatal(err)
	}
	if res.RelationsCopied != 3 {
		t.Errorf("relations copied = %d, want 3", res.RelationsCopied)
	}
	if p := db.lastParams("addMemoryImplication"); p["to_id"] != "mem_x" || p["probability"] != 90 ||
		p["reasoning_id"] != "copied_from_mem_old" {
		t.Errorf("implication copy = %v", p)
	}
	// Missing strength falls back to the default.
	if p := db.lastParams("addMemoryCausation"); p["to_id"] != "mem_y" || p["strength"] != 80 {
		t.Errorf("causation copy = %v", p)
	}
	if p := db.lastParams("addMemoryRelation"); p["target_id"] != "mem_z" || p["relation_type"] != "RELATES_TO" ||
		p["strength"] != 70 {
		t.Errorf("relation copy = %v", p)
	}
	p := db.lastParams("addMemorySupersession")
	if p["new_id"] != res.NewMemoryID || p["old_id"] != "mem_old" || p["is_contradiction"] != 0 {
		t.Errorf("supersession edge = %v", p)
	}
}

func TestSoftDeleteAlreadyDeleted(t *testing.T) {
	db := newMockDB()
	db.handle("getMemory", func(any) (any, error) {
		return map[string]any{"memory_id": "mem_a", "is_deleted": 1}, nil
	})
	d := NewDeletion(db, nil)

	err := d.SoftDelete(context.Background(), "mem_a", "alice", "cleanup")
	if !errors.Is(err, ErrAlreadyDeleted) {
		t.Fatalf("err = %v, want ErrAlreadyDeleted", err)
	}
}

func TestSoftDelete(t *testing.T) {
	db := newMockDB()
	db.handle("getMemory", func(any) (any, error) {
		return map[string]any{"memory_id": "mem_a", "is_deleted": 0}, nil
	})
	db.handle("softDeleteMemory", func(any) (any, error) { return nil, nil })
	d := NewDeletion(db, nil)

	if err := d.SoftDelete(context.Background(), "mem_a", "alice", "cleanup"); err != nil {
		t.Fatal(err)
	}
	p := db.lastParams("softDeleteMemory")
	if p["deleted_by"] != "alice" || p["reason"] != "cleanup" || p["deleted_at"] == "" {
		t.Errorf("params = %v", p)
	}
}

func TestRestoreHardDeleted(t *testing.T) {
	db := newMockDB()
	db.handle("restoreMemory", func(any) (any, error) {
		return nil, errors.New("memory was hard deleted")
	})
	d := NewDeletion(db, nil)

	err := d.Restore(context.Background(), "mem_a")
	if !errors.Is(err, ErrCannotRestore) {
		t.Fatalf("err = %v, want ErrCannotRestore", err)
	}
}

func TestHardDeleteCascade(t *testing.T) {
	db := newMockDB()
	db.handle("getMemoryEdgeCount", func(any) (any, error) {
		return map[string]int{"edge_count": 3}, nil
	})
	db.handle("deleteMemoryEdges", func(any) (any, error) { return nil, nil })
	db.handle("hardDeleteMemory", func(any) (any, error) {
		return map[string]bool{"deleted": true}, nil
	})
	d := NewDeletion(db, nil)

	deleted, err := d.HardDelete(context.Background(), "mem_a", true)
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Error("deleted = false")
	}
	if db.calls("deleteMemoryEdges") != 1 {
		t.Error("cascade must delete edges first")
	}
}

func TestHardDeleteNoCascadeSkipsEdges(t *testing.T) {
	db := newMockDB()
	db.handle("hardDeleteMemory", func(any) (any, error) {
		return map[string]bool{"deleted": false}, nil
	})
	d := NewDeletion(db, nil)

	deleted, err := d.HardDelete(context.Background(), "mem_a", false)
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Error("deleted = true for missing memory")
	}
	if db.calls("getMemoryEdgeCount") != 0 {
		t.Error("non-cascade delete must not count edges")
	}
}

func TestCleanupOrphansDryRun(t *testing.T) {
	db := newMockDB()
	db.handle("findOrphanedEntities", func(any) (any, error) {
		return map[string]any{"entity_ids": []string{"ent_1", "ent_2"}}, nil
	})
	db.handle("findOrphanedEdges", func(any) (any, error) {
		return map[string]any{"edge_ids": []string{"edge_1"}}, nil
	})
	d := NewDeletion(db, nil)

	stats, err := d.CleanupOrphans(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if stats.OrphanedEntities != 2 || stats.OrphanedEdges != 1 || !stats.DryRun {
		t.Errorf("stats = %+v", stats)
	}
	if stats.DeletedEntities != 0 || stats.DeletedEdges != 0 {
		t.Error("dry run must not delete")
	}
	if db.calls("deleteEntitiesBatch") != 0 || db.calls("deleteEdgesBatch") != 0 {
		t.Error("dry run must not call batch deletes")
	}
}

func TestCleanupOrphansDeletes(t *testing.T) {
	db := newMockDB()
	db.handle("findOrphanedEntities", func(any) (any, error) {
		return map[string]any{"entity_ids": []string{"ent_1"}}, nil
	})
	db.handle("findOrphanedEdges", func(any) (any, error) {
		return map[string]any{"edge_ids": []string{"edge_1", "edge_2"}}, nil
	})
	db.handle("deleteEntitiesBatch", func(any) (any, error) {
		return map[string]int{"deleted_count": 1}, nil
	})
	db.handle("deleteEdgesBatch", func(any) (any, error) {
		return map[string]int{"deleted_count": 2}, nil
	})
	d := NewDeletion(db, nil)

	stats, err := d.CleanupOrphans(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if stats.DeletedEntities != 1 || stats.DeletedEdges != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestReconstructOrdersChunks(t *testing.T) {
	db := newMockDB()
	db.handle("getMemoryWithChunks", func(any) (any, error) {
		return map[string]any{
			"has_chunks": true,
			"chunks": []map[string]any{
				{"text": "gamma", "position": 2},
				{"text": "alpha", "position": 0},
				{"text": "beta", "position": 1},
			},
		}, nil
	})
	r := NewReconstructor(db, nil)

	content, n, err := r.Reconstruct(context.Background(), "mem_a")
	if err != nil {
		t.Fatal(err)
	}
	if content != "alpha beta gamma" || n != 3 {
		t.Errorf("content = %q, chunks = %d", content, n)
	}
}

func TestReconstructUnchunked(t *testing.T) {
	db := newMockDB()
	db.handle("getMemoryWithChunks", func(any) (any, error) {
		return map[string]any{"has_chunks": false, "content": "short fact"}, nil
	})
	r := NewReconstructor(db, nil)

	content, n, err := r.Reconstruct(context.Background(), "mem_a")
	if err != nil {
		t.Fatal(err)
	}
	if content != "short fact" || n != 0 {
		t.Errorf("content = %q, chunks = %d", content, n)
	}
}

// stubSearcher returns fixed hits.
type stubSearcher struct {
	hits     []SearchHit
	lastMode string
}

func (s *stubSearcher) Search(ctx context.Context, query string, embedding []float32, userID string, limit int, mode string) ([]SearchHit, error) {
	s.lastMode = mode
	return s.hits, nil
}

func TestRetrieveShallowSkipsReconstruction(t *testing.T) {
	db := newMockDB()
	search := &stubSearcher{hits: []SearchHit{{MemoryID: "mem_a", Content: "fact", Score: 0.9}}}
	rt := NewRetriever(db, search, nil)

	res, err := rt.Retrieve(context.Background(), "q", nil, "u",
		RetrieveOptions{Depth: DepthShallow})
	if err != nil {
		t.Fatal(err)
	}
	if search.lastMode != "recent" {
		t.Errorf("mode = %s, want recent", search.lastMode)
	}
	if len(res.Memories) != 1 || res.ChunksReconstructed != 0 {
		t.Errorf("result = %+v", res)
	}
	if db.calls("getMemoryWithChunks") != 0 {
		t.Error("shallow retrieval must not fetch chunks")
	}
}

func TestRetrieveMediumReconstructsAndGathers(t *testing.T) {
	db := newMockDB()
	db.handle("getMemoryWithChunks", func(any) (any, error) {
		return map[string]any{
			"has_chunks": true,
			"chunks": []map[string]any{
				{"text": "part one", "position": 0},
				{"text": "part two", "position": 1},
			},
		}, nil
	})
	db.handle("getMemoryReasoningRelations", func(any) (any, error) {
		return map[string]any{"relations": []map[string]any{
			{"from_id": "mem_a", "to_id": "mem_b", "relation_type": "IMPLIES", "strength": 80},
		}}, nil
	})
	db.handle("getMemoryEntities", func(any) (any, error) {
		return map[string]any{"entities": []map[string]any{
			{"entity_id": "ent_1", "name": "Tea", "entity_type": "concept"},
		}}, nil
	})

	search := &stubSearcher{hits: []SearchHit{{MemoryID: "mem_a", Content: "truncated", Score: 0.9}}}
	rt := NewRetriever(db, search, nil)

	res, err := rt.Retrieve(context.Background(), "q", nil, "u", RetrieveOptions{
		Depth:            DepthMedium,
		IncludeReasoning: true,
		IncludeEntities:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if search.lastMode != "contextual" {
		t.Errorf("mode = %s", search.lastMode)
	}
	if res.Memories[0].Content != "part one part two" || res.ChunksReconstructed != 2 {
		t.Errorf("reconstruction = %+v", res)
	}
	if len(res.ReasoningChains) != 1 || res.ReasoningChains[0].RelationType != "IMPLIES" {
		t.Errorf("chains = %+v", res.ReasoningChains)
	}
	if len(res.Entities) != 1 || res.Entities[0].Name != "Tea" {
		t.Errorf("entities = %+v", res.Entities)
	}
}

func TestParseDepth(t *testing.T) {
	if ParseDepth("shallow") != DepthShallow || ParseDepth("DEEP") != DepthDeep || ParseDepth("") != DepthMedium {
		t.Error("depth parsing broken")
	}
}

func TestUpdateMetadataDefaultsToCurrent(t *testing.T) {
	db := newMockDB()
	db.handle("getMemory", func(any) (any, error) {
		return map[string]any{
			"id":        "internal_1",
			"memory_id": "mem_a", "content": "likes tea",
			"certainty": 80, "importance": 40,
		}, nil
	})
	db.handle("updateMemoryById", func(any) (any, error) { return nil, nil })

	sup := NewSupersession(db, NewStore(db), nil)
	certainty := 95
	if err := sup.UpdateMetadata(context.Background(), "mem_a", &certainty, nil); err != nil {
		t.Fatal(err)
	}

	p := db.lastParams("updateMemoryById")
	if p["id"] != "internal_1" || p["content"] != "likes tea" {
		t.Errorf("update params = %v", p)
	}
	if p["certainty"] != 95 {
		t.Errorf("certainty = %v, want 95", p["certainty"])
	}
	// Importance was not supplied and keeps its stored value.
	if p["importance"] != 40 {
		t.Errorf("importance = %v, want 40", p["importance"])
	}
	if p["updated_at"] == "" {
		t.Error("updated_at not set")
	}
}
