package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrEmptyContextName indicates a context created without a name.
var ErrEmptyContextName = errors.New("memory: context name cannot be empty")

// ContextDef names a situational grouping memories can be filed under,
// such as "work" or "vacation planning".
type ContextDef struct {
	ContextID  string            `json:"context_id"`
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
	CreatedAt  string            `json:"created_at"`
}

// NewContextID mints a context ID: "ctx_" plus the first 12 hex
// characters of a random UUID.
func NewContextID() string {
	return "ctx_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

const defaultContextCacheSize = 1000

// Contexts manages situational context nodes and which of them are
// currently active per user. Safe for concurrent use.
//
// Active contexts are in-process state only. They bias retrieval for the
// lifetime of the process and are not persisted.
type Contexts struct {
	db     Querier
	logger *slog.Logger

	mu        sync.Mutex
	byID      map[string]ContextDef
	active    map[string][]string // user ID -> active context IDs
	cacheSize int
	warmed    bool
}

// ContextsOption configures a Contexts manager.
type ContextsOption func(*Contexts)

// WithContextCacheSize bounds the context cache.
func WithContextCacheSize(n int) ContextsOption {
	return func(c *Contexts) { c.cacheSize = n }
}

// NewContexts creates a context manager backed by db.
func NewContexts(db Querier, logger *slog.Logger, opts ...ContextsOption) *Contexts {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Contexts{
		db:        db,
		logger:    logger.With("component", "contexts"),
		byID:      make(map[string]ContextDef),
		active:    make(map[string][]string),
		cacheSize: defaultContextCacheSize,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Create makes a new context node. A store failure is logged and the
// context is kept in cache anyway, so grouping keeps working offline.
func (c *Contexts) Create(ctx context.Context, name string, properties map[string]string) (ContextDef, error) {
	if strings.TrimSpace(name) == "" {
		return ContextDef{}, ErrEmptyContextName
	}

	def := ContextDef{
		ContextID:  NewContextID(),
		Name:       name,
		Properties: properties,
		CreatedAt:  Now(),
	}
	props, err := json.Marshal(def.Properties)
	if err != nil {
		return ContextDef{}, fmt.Errorf("memory: marshal context properties: %w", err)
	}
	err = c.db.Query(ctx, "addContext", map[string]any{
		"context_id": def.ContextID,
		"name":       def.Name,
		"properties": string(props),
		"created_at": def.CreatedAt,
	}, nil)
	if err != nil {
		c.logger.Warn("context create failed, caching anyway",
			"context", def.ContextID, "name", name, "err", err)
	}
	c.cache(def)
	return def, nil
}

// Get returns a context by ID. Store failures and unknown IDs both come
// back as ok=false.
func (c *Contexts) Get(ctx context.Context, contextID string) (ContextDef, bool) {
	c.mu.Lock()
	if def, ok := c.byID[contextID]; ok {
		c.mu.Unlock()
		return def, true
	}
	c.mu.Unlock()

	var row contextRow
	if err := c.db.Query(ctx, "getContext", map[string]string{"context_id": contextID}, &row); err != nil {
		c.logger.Warn("context lookup failed", "context", contextID, "err", err)
		return ContextDef{}, false
	}
	if row.ContextID == "" {
		return ContextDef{}, false
	}
	def := row.toDef()
	c.cache(def)
	return def, true
}

// GetByName returns a context by name, case-insensitively. The cache is
// checked first, then the store.
func (c *Contexts) GetByName(ctx context.Context, name string) (ContextDef, bool) {
	c.mu.Lock()
	for _, def := range c.byID {
		if strings.EqualFold(def.Name, name) {
			c.mu.Unlock()
			return def, true
		}
	}
	c.mu.Unlock()

	var row contextRow
	if err := c.db.Query(ctx, "getContextByName", map[string]string{"name": name}, &row); err != nil {
		return ContextDef{}, false
	}
	if row.ContextID == "" {
		return ContextDef{}, false
	}
	def := row.toDef()
	c.cache(def)
	return def, true
}

// WarmUp preloads recent contexts into the cache. It runs once per
// manager; later calls return the current cache size. A store failure
// leaves the cache empty rather than failing startup.
func (c *Contexts) WarmUp(ctx context.Context, userID string, limit int) int {
	c.mu.Lock()
	if c.warmed {
		n := len(c.byID)
		c.mu.Unlock()
		return n
	}
	c.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	params := map[string]any{"limit": limit}
	if userID != "" {
		params["user_id"] = userID
	}
	var rows []contextRow
	if err := c.db.Query(ctx, "getRecentContexts", params, &rows); err != nil {
		c.logger.Warn("context warm-up failed, starting cold", "err", err)
		return 0
	}
	for _, row := range rows {
		if row.ContextID != "" {
			c.cache(row.toDef())
		}
	}
	c.mu.Lock()
	c.warmed = true
	n := len(c.byID)
	c.mu.Unlock()
	c.logger.Debug("context cache warmed", "contexts", n)
	return n
}

// LinkMemory files a memory under a context. Priority is 0-100; higher
// means the memory matters more within that context. A store failure is
// reported as false, not an error.
func (c *Contexts) LinkMemory(ctx context.Context, memoryID, contextID string, priority int) (bool, error) {
	if priority < 0 || priority > 100 {
		return false, fmt.Errorf("memory: context priority %d out of range 0-100", priority)
	}
	err := c.db.Query(ctx, "linkMemoryToContext", map[string]any{
		"memory_id":  memoryID,
		"context_id": contextID,
		"priority":   priority,
	}, nil)
	if err != nil {
		c.logger.Warn("context link failed",
			"memory", memoryID, "context", contextID, "err", err)
		return false, nil
	}
	return true, nil
}

// Activate marks a context active for a user. Idempotent.
func (c *Contexts) Activate(userID, contextID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.active[userID] {
		if id == contextID {
			return
		}
	}
	c.active[userID] = append(c.active[userID], contextID)
}

// Deactivate removes a context from a user's active set.
func (c *Contexts) Deactivate(userID, contextID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.active[userID]
	for i, id := range ids {
		if id == contextID {
			c.active[userID] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// Active returns the user's active context IDs.
func (c *Contexts) Active(userID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.active[userID]...)
}

// FilterByContext keeps the memories tagged with the given context
// names. With matchAll set, a memory must carry every name; otherwise
// any one suffices. Names compare case-insensitively.
func FilterByContext(memories []Memory, contextNames []string, matchAll bool) []Memory {
	if len(contextNames) == 0 {
		return memories
	}
	want := make([]string, len(contextNames))
	for i, n := range contextNames {
		want[i] = strings.ToLower(n)
	}

	out := make([]Memory, 0, len(memories))
	for _, m := range memories {
		tags := contextTagNames(m.ContextTags)
		if matchesContexts(tags, want, matchAll) {
			out = append(out, m)
		}
	}
	return out
}

// ContextRelevance scores a memory against the active contexts: the
// fraction of active contexts its tags match. Untagged memories score
// 0.5 so they survive ranking without dominating it; with no active
// contexts everything scores 1.
func ContextRelevance(m *Memory, activeContexts []string) float64 {
	if len(activeContexts) == 0 {
		return 1.0
	}
	tags := contextTagNames(m.ContextTags)
	if len(tags) == 0 {
		return 0.5
	}
	matches := 0
	for _, ctx := range activeContexts {
		ctx = strings.ToLower(ctx)
		for _, tag := range tags {
			if tag == ctx {
				matches++
				break
			}
		}
	}
	return float64(matches) / float64(len(activeContexts))
}

// contextTagNames extracts lowercased context names from a memory's
// context_tags field, which holds either a JSON object keyed by name or
// a bare name.
func contextTagNames(raw string) []string {
	if raw == "" {
		return nil
	}
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		tags := make([]string, 0, len(parsed))
		for k := range parsed {
			tags = append(tags, strings.ToLower(k))
		}
		return tags
	}
	return []string{strings.ToLower(raw)}
}

func matchesContexts(tags, want []string, matchAll bool) bool {
	for _, w := range want {
		found := false
		for _, t := range tags {
			if t == w {
				found = true
				break
			}
		}
		if matchAll && !found {
			return false
		}
		if !matchAll && found {
			return true
		}
	}
	return matchAll
}

type contextRow struct {
	ContextID  string `json:"context_id"`
	Name       string `json:"name"`
	Properties string `json:"properties"`
	CreatedAt  string `json:"created_at"`
}

func (r contextRow) toDef() ContextDef {
	def := ContextDef{ContextID: r.ContextID, Name: r.Name, CreatedAt: r.CreatedAt}
	if r.Properties != "" {
		_ = json.Unmarshal([]byte(r.Properties), &def.Properties)
	}
	return def
}

func (c *Contexts) cache(def ContextDef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.byID) >= c.cacheSize {
		// Drop an arbitrary entry to stay bounded.
		for id := range c.byID {
			delete(c.byID, id)
			break
		}
	}
	c.byID[def.ContextID] = def
}
