package entity

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

// mockStore keeps entities in memory and counts query invocations.
type mockStore struct {
	mu       sync.Mutex
	byName   map[string]map[string]any
	calls    map[string]int
	failNext error
	links    []map[string]any
	listResp []map[string]any
}

func newMockStore() *mockStore {
	return &mockStore{
		byName: make(map[string]map[string]any),
		calls:  make(map[string]int),
	}
}

func (m *mockStore) Query(ctx context.Context, name string, params, out any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}

	switch name {
	case "getEntityByName":
		p := params.(map[string]string)
		rec, ok := m.byName[strings.ToLower(p["name"])]
		if !ok {
			return fmt.Errorf("getEntityByName: %w", helix.ErrNotFound)
		}
		data, _ := json.Marshal(rec)
		return json.Unmarshal(data, out)
	case "createEntity":
		p := params.(map[string]any)
		m.byName[strings.ToLower(p["name"].(string))] = p
		return nil
	case "linkExtractedEntity", "linkMentionsEntity":
		m.links = append(m.links, params.(map[string]any))
		return nil
	case "getEntitiesForMemory", "searchEntities":
		data, _ := json.Marshal(map[string]any{"entities": m.listResp})
		return json.Unmarshal(data, out)
	default:
		return fmt.Errorf("unexpected query %s", name)
	}
}

func (m *mockStore) callCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func TestNewID(t *testing.T) {
	id := NewID()
	if !strings.HasPrefix(id, "ent_") || len(id) != 16 {
		t.Errorf("id = %q", id)
	}
	if id == NewID() {
		t.Error("IDs must be unique")
	}
}

func TestParseType(t *testing.T) {
	if ParseType("Person") != TypePerson {
		t.Error("case-insensitive parse failed")
	}
	if ParseType("spaceship") != TypeCustom {
		t.Error("unknown types must map to custom")
	}
}

func TestGetOrCreateCreatesOnce(t *testing.T) {
	store := newMockStore()
	m := NewManager(store)
	ctx := context.Background()

	e1, err := m.GetOrCreate(ctx, "Ada Lovelace", TypePerson)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(e1.EntityID, "ent_") || e1.EntityType != TypePerson {
		t.Errorf("entity = %+v", e1)
	}

	// Same name with different casing resolves from the cache.
	e2, err := m.GetOrCreate(ctx, "ada lovelace", TypePerson)
	if err != nil {
		t.Fatal(err)
	}
	if e2.EntityID != e1.EntityID {
		t.Errorf("duplicate entity created: %s vs %s", e1.EntityID, e2.EntityID)
	}
	if n := store.callCount("createEntity"); n != 1 {
		t.Errorf("createEntity calls = %d, want 1", n)
	}
}

func TestGetOrCreateFindsExistingInStore(t *testing.T) {
	store := newMockStore()
	store.byName["grace hopper"] = map[string]any{
		"entity_id":   "ent_aabbccddeeff",
		"name":        "Grace Hopper",
		"entity_type": "person",
		"properties":  `{"rank":"admiral"}`,
		"aliases":     `["Amazing Grace"]`,
	}
	m := NewManager(store)

	e, err := m.GetOrCreate(context.Background(), "Grace Hopper", TypePerson)
	if err != nil {
		t.Fatal(err)
	}
	if e.EntityID != "ent_aabbccddeeff" {
		t.Errorf("entity = %+v", e)
	}
	if e.Properties["rank"] != "admiral" || len(e.Aliases) != 1 {
		t.Errorf("decoded payloads = %+v", e)
	}
	if store.callCount("createEntity") != 0 {
		t.Error("existing entity must not be recreated")
	}
}

func TestLookupTransportErrorSurfaces(t *testing.T) {
	store := newMockStore()
	store.failNext = errors.New("connection reset")
	m := NewManager(store)

	if _, err := m.GetOrCreate(context.Background(), "Flaky", TypeSystem); err == nil {
		t.Fatal("transport error on lookup should surface")
	}
}

func TestGetOrCreateCachesOnPersistFailure(t *testing.T) {
	m := NewManager(&failingCreateStore{inner: newMockStore()})

	e, err := m.GetOrCreate(context.Background(), "Flaky", TypeSystem)
	if err != nil {
		t.Fatalf("create failure must degrade, got %v", err)
	}
	if _, ok := m.Get(e.EntityID); !ok {
		t.Error("entity must be cached despite persist failure")
	}
}

type failingCreateStore struct{ inner *mockStore }

func (f *failingCreateStore) Query(ctx context.Context, name string, params, out any) error {
	if name == "createEntity" {
		return errors.New("disk full")
	}
	return f.inner.Query(ctx, name, params, out)
}

func TestLinks(t *testing.T) {
	store := newMockStore()
	m := NewManager(store)
	ctx := context.Background()

	if err := m.LinkExtracted(ctx, "internal-1", "ent_abc", 85); err != nil {
		t.Fatal(err)
	}
	if err := m.LinkMention(ctx, "internal-1", "ent_abc", 0.7, 0.2); err != nil {
		t.Fatal(err)
	}

	if len(store.links) != 2 {
		t.Fatalf("links = %+v", store.links)
	}
	if store.links[0]["method"] != "llm" || store.links[0]["confidence"] != 85 {
		t.Errorf("extracted link = %+v", store.links[0])
	}
	if store.links[1]["salience"] != 0.7 {
		t.Errorf("mention link = %+v", store.links[1])
	}
}

func TestCacheEviction(t *testing.T) {
	store := newMockStore()
	m := NewManager(store, WithCacheSize(2))
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		if _, err := m.GetOrCreate(ctx, name, TypeConcept); err != nil {
			t.Fatal(err)
		}
	}
	m.mu.Lock()
	size := len(m.byID)
	m.mu.Unlock()
	if size > 2 {
		t.Errorf("cache size = %d, want <= 2", size)
	}
}

func TestEntitiesForMemory(t *testing.T) {
	store := newMockStore()
	store.listResp = []map[string]any{
		{"entity_id": "ent_aaa", "name": "Ada", "entity_type": "person", "aliases": `["Ada L"]`},
		{"entity_id": "", "name": "ghost"},
	}
	m := NewManager(store)

	got, err := m.EntitiesForMemory(context.Background(), "mem_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("entities = %+v, want 1", got)
	}
	if got[0].EntityType != TypePerson || got[0].Aliases[0] != "Ada L" {
		t.Errorf("entity = %+v", got[0])
	}
	// Results land in the cache for later lookups.
	if _, ok := m.Get("ent_aaa"); !ok {
		t.Error("entity not cached")
	}
}

func TestEntityQueriesDegradeToEmpty(t *testing.T) {
	store := newMockStore()
	store.failNext = errors.New("store down")
	m := NewManager(store)

	got, err := m.EntitiesForMemory(context.Background(), "mem_1")
	if err != nil || len(got) != 0 {
		t.Errorf("got %+v, %v; want empty, nil", got, err)
	}

	store.failNext = errors.New("store down")
	got, err = m.Search(context.Background(), "ada", 5)
	if err != nil || len(got) != 0 {
		t.Errorf("got %+v, %v; want empty, nil", got, err)
	}
}

func TestSearchDefaultsLimit(t *testing.T) {
	store := newMockStore()
	store.listResp = []map[string]any{{"entity_id": "ent_bbb", "name": "Bob", "entity_type": "person"}}
	m := NewManager(store)

	got, err := m.Search(context.Background(), "bob", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "Bob" {
		t.Errorf("got %+v", got)
	}
	if store.callCount("searchEntities") != 1 {
		t.Error("searchEntities not called")
	}
}
