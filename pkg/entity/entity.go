// Package entity manages the named entities memories refer to: people,
// organizations, places, systems, and so on.
//
// Entities are deduplicated by lowercased name through a get-or-create
// path backed by two in-process caches, so repeated mentions of the same
// person resolve to one graph node. Links between memories and entities
// carry extraction confidence or mention salience.
package entity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ontomem/omc/pkg/helix"
)

// Type classifies an entity.
type Type string

// Known entity types. Anything else is stored as TypeCustom.
const (
	TypePerson       Type = "person"
	TypeOrganization Type = "organization"
	TypeLocation     Type = "location"
	TypeConcept      Type = "concept"
	TypeSystem       Type = "system"
	TypeEvent        Type = "event"
	TypeObject       Type = "object"
	TypeCustom       Type = "custom"
)

// ParseType maps a free-form type string to a known Type.
func ParseType(s string) Type {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypePerson, TypeOrganization, TypeLocation, TypeConcept,
		TypeSystem, TypeEvent, TypeObject:
		return t
	default:
		return TypeCustom
	}
}

// Entity is a named node in the graph.
type Entity struct {
	EntityID   string            `json:"entity_id"`
	Name       string            `json:"name"`
	EntityType Type              `json:"entity_type"`
	Properties map[string]string `json:"properties,omitempty"`
	Aliases    []string          `json:"aliases,omitempty"`
}

// NewID mints an entity ID: "ent_" plus 12 hex characters.
func NewID() string {
	var b [6]byte
	rand.Read(b[:])
	return "ent_" + hex.EncodeToString(b[:])
}

// Querier is the store surface the manager needs.
type Querier interface {
	Query(ctx context.Context, name string, params, out any) error
}

const defaultCacheSize = 5000

// Manager deduplicates and links entities. Safe for concurrent use.
type Manager struct {
	db     Querier
	logger *slog.Logger

	mu        sync.Mutex
	byID      map[string]Entity
	nameToID  map[string]string // lowercased name -> entity ID
	cacheSize int
}

// Option configures a Manager.
type Option func(*Manager)

// WithCacheSize bounds both entity caches.
func WithCacheSize(n int) Option {
	return func(m *Manager) { m.cacheSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates an entity manager backed by db.
func NewManager(db Querier, opts ...Option) *Manager {
	m := &Manager{
		db:        db,
		logger:    slog.Default(),
		byID:      make(map[string]Entity),
		nameToID:  make(map[string]string),
		cacheSize: defaultCacheSize,
	}
	for _, o := range opts {
		o(m)
	}
	m.logger = m.logger.With("component", "entity")
	return m
}

// GetOrCreate returns the entity with the given name, creating it when
// neither the cache nor the store has it. Names compare case-insensitively.
//
// When the store write fails the minted entity is still cached and
// returned so extraction can proceed; the next write retries persistence.
func (m *Manager) GetOrCreate(ctx context.Context, name string, typ Type) (Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Entity{}, errors.New("entity: empty name")
	}
	key := strings.ToLower(name)

	m.mu.Lock()
	if id, ok := m.nameToID[key]; ok {
		if e, ok := m.byID[id]; ok {
			m.mu.Unlock()
			return e, nil
		}
	}
	m.mu.Unlock()

	if e, err := m.fetchByName(ctx, name); err == nil {
		m.cache(e)
		return e, nil
	} else if !errors.Is(err, helix.ErrNotFound) {
		return Entity{}, err
	}

	e := Entity{EntityID: NewID(), Name: name, EntityType: typ}
	if err := m.persist(ctx, e); err != nil {
		m.logger.Warn("entity create failed, caching anyway",
			"entity", e.EntityID, "name", name, "err", err)
	}
	m.cache(e)
	return e, nil
}

// Get returns a cached entity by ID.
func (m *Manager) Get(entityID string) (Entity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[entityID]
	return e, ok
}

// LinkExtracted records that a memory was extracted with a reference to
// the entity. Confidence is 0-100.
func (m *Manager) LinkExtracted(ctx context.Context, memoryInternalID, entityID string, confidence int) error {
	err := m.db.Query(ctx, "linkExtractedEntity", map[string]any{
		"memory_id":  memoryInternalID,
		"entity_id":  entityID,
		"confidence": confidence,
		"method":     "llm",
	}, nil)
	if err != nil {
		return fmt.Errorf("entity: link extracted %s: %w", entityID, err)
	}
	return nil
}

// LinkMention records that a memory mentions the entity.
// Salience is 0-1; sentiment is -1 to 1.
func (m *Manager) LinkMention(ctx context.Context, memoryInternalID, entityID string, salience, sentiment float64) error {
	err := m.db.Query(ctx, "linkMentionsEntity", map[string]any{
		"memory_id": memoryInternalID,
		"entity_id": entityID,
		"salience":  salience,
		"sentiment": sentiment,
	}, nil)
	if err != nil {
		return fmt.Errorf("entity: link mention %s: %w", entityID, err)
	}
	return nil
}

// EntitiesForMemory returns the entities linked to a memory. Failures
// degrade to an empty slice so retrieval never breaks on entity lookups.
func (m *Manager) EntitiesForMemory(ctx context.Context, memoryID string) ([]Entity, error) {
	return m.fetchMany(ctx, "getEntitiesForMemory", map[string]any{"memory_id": memoryID})
}

// Search finds entities whose name or aliases match the query. Failures
// degrade to an empty slice.
func (m *Manager) Search(ctx context.Context, query string, limit int) ([]Entity, error) {
	if limit <= 0 {
		limit = 10
	}
	return m.fetchMany(ctx, "searchEntities", map[string]any{"query": query, "limit": limit})
}

func (m *Manager) fetchMany(ctx context.Context, query string, params map[string]any) ([]Entity, error) {
	var out struct {
		Entities []entityRow `json:"entities"`
	}
	if err := m.db.Query(ctx, query, params, &out); err != nil {
		m.logger.Warn("entity query failed", "query", query, "err", err)
		return []Entity{}, nil
	}
	entities := make([]Entity, 0, len(out.Entities))
	for _, row := range out.Entities {
		if row.EntityID == "" {
			continue
		}
		e := row.toEntity()
		m.cache(e)
		entities = append(entities, e)
	}
	return entities, nil
}

type entityRow struct {
	EntityID   string `json:"entity_id"`
	Name       string `json:"name"`
	EntityType string `json:"entity_type"`
	Properties string `json:"properties"`
	Aliases    string `json:"aliases"`
}

func (r entityRow) toEntity() Entity {
	e := Entity{
		EntityID:   r.EntityID,
		Name:       r.Name,
		EntityType: ParseType(r.EntityType),
	}
	if r.Properties != "" {
		_ = json.Unmarshal([]byte(r.Properties), &e.Properties)
	}
	if r.Aliases != "" {
		_ = json.Unmarshal([]byte(r.Aliases), &e.Aliases)
	}
	return e
}

func (m *Manager) fetchByName(ctx context.Context, name string) (Entity, error) {
	var out entityRow
	if err := m.db.Query(ctx, "getEntityByName", map[string]string{"name": name}, &out); err != nil {
		return Entity{}, err
	}
	if out.EntityID == "" {
		return Entity{}, fmt.Errorf("entity: %s: %w", name, helix.ErrNotFound)
	}
	// Properties and aliases travel as JSON strings in the store.
	return out.toEntity(), nil
}

func (m *Manager) persist(ctx context.Context, e Entity) error {
	props, err := json.Marshal(e.Properties)
	if err != nil {
		return fmt.Errorf("entity: marshal properties: %w", err)
	}
	aliases, err := json.Marshal(e.Aliases)
	if err != nil {
		return fmt.Errorf("entity: marshal aliases: %w", err)
	}
	return m.db.Query(ctx, "createEntity", map[string]any{
		"entity_id":   e.EntityID,
		"name":        e.Name,
		"entity_type": string(e.EntityType),
		"properties":  string(props),
		"aliases":     string(aliases),
	}, nil)
}

func (m *Manager) cache(e Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.byID) >= m.cacheSize {
		// Drop an arbitrary entry from each map to stay bounded.
		for id := range m.byID {
			delete(m.byID, id)
			break
		}
		for name := range m.nameToID {
			delete(m.nameToID, name)
			break
		}
	}
	m.byID[e.EntityID] = e
	m.nameToID[strings.ToLower(e.Name)] = e.EntityID
}
