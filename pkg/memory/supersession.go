package memory

import (
	"context"
	"fmt"
	"log/slog"
)

// Supersession creates successor memories: a new record replaces an old
// one while the old record stays queryable as history.
type Supersession struct {
	db     Querier
	store  *Store
	logger *slog.Logger
}

// NewSupersession creates a supersession manager sharing the given Store.
func NewSupersession(db Querier, store *Store, logger *slog.Logger) *Supersession {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supersession{db: db, store: store, logger: logger.With("component", "supersession")}
}

// SupersedeResult reports a completed supersession.
type SupersedeResult struct {
	NewMemoryID     string `json:"new_memory_id"`
	OldMemoryID     string `json:"old_memory_id"`
	RelationsCopied int    `json:"relations_copied"`
}

// Replace creates a successor for old with newContent, records the
// supersession edge, and copies the old memory's outgoing relations onto
// the successor so reasoning chains survive the replacement.
//
// isContradiction marks supersessions that resolve a contradiction rather
// than refresh stale information.
func (s *Supersession) Replace(ctx context.Context, old *Memory, newContent, reason string, isContradiction bool) (*SupersedeResult, error) {
	added, err := s.store.Add(ctx, AddInput{
		UserID:     old.UserID,
		Content:    newContent,
		MemoryType: old.MemoryType,
		Certainty:  old.Certainty,
		Importance: old.Importance,
		Source:     old.Source,
	})
	if err != nil {
		return nil, fmt.Errorf("memory: supersession: create successor: %w", err)
	}

	now := Now()
	if err := s.db.Query(ctx, "updateMemoryValidUntil", map[string]any{
		"memory_id":   old.MemoryID,
		"valid_until": now,
		"updated_at":  now,
	}, nil); err != nil {
		return nil, fmt.Errorf("memory: supersession: close %s: %w", old.MemoryID, err)
	}

	contradictionFlag := 0
	if isContradiction {
		contradictionFlag = 1
	}
	if err := s.db.Query(ctx, "addMemorySupersession", map[string]any{
		"new_id":           added.MemoryID,
		"old_id":           old.MemoryID,
		"reason":           reason,
		"superseded_at":    now,
		"is_contradiction": contradictionFlag,
	}, nil); err != nil {
		s.logger.Warn("supersession edge failed",
			"new", added.MemoryID, "old", old.MemoryID, "err", err)
	}

	copied := s.copyRelations(ctx, old.MemoryID, added.MemoryID)
	return &SupersedeResult{
		NewMemoryID:     added.MemoryID,
		OldMemoryID:     old.MemoryID,
		RelationsCopied: copied,
	}, nil
}

// UpdateMetadata rewrites a memory's certainty and importance in place,
// leaving content and history untouched. Nil means keep the current
// value.
func (s *Supersession) UpdateMetadata(ctx context.Context, memoryID string, certainty, importance *int) error {
	m, err := s.store.Get(ctx, memoryID)
	if err != nil {
		return fmt.Errorf("memory: update metadata: %w", err)
	}

	var node struct {
		ID string `json:"id"`
	}
	if err := s.db.Query(ctx, "getMemory", map[string]string{"memory_id": memoryID}, &node); err != nil {
		return fmt.Errorf("memory: update metadata: resolve %s: %w", memoryID, err)
	}

	if err := s.db.Query(ctx, "updateMemoryById", map[string]any{
		"id":         node.ID,
		"content":    m.Content,
		"certainty":  intOr(certainty, m.Certainty),
		"importance": intOr(importance, m.Importance),
		"updated_at": Now(),
	}, nil); err != nil {
		return fmt.Errorf("memory: update metadata %s: %w", memoryID, err)
	}
	s.logger.Debug("metadata updated", "memory", memoryID)
	return nil
}

// relationEdge is one outgoing edge as the store returns it.
type relationEdge struct {
	To           map[string]any `json:"to"`
	Probability  *int           `json:"probability"`
	Strength     *int           `json:"strength"`
	RelationType string         `json:"relation_type"`
}

func (e relationEdge) target() string {
	if v, ok := e.To["memory_id"].(string); ok {
		return v
	}
	return ""
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

// copyRelations re-creates the old memory's outgoing reasoning relations
// on the successor, each tagged with its origin. Supersession links stay
// behind. Failures reduce the copy count, nothing more.
func (s *Supersession) copyRelations(ctx context.Context, oldID, newID string) int {
	var out map[string][]relationEdge
	if err := s.db.Query(ctx, "getMemoryOutgoingRelations",
		map[string]string{"memory_id": oldID}, &out); err != nil {
		s.logger.Warn("relation copy skipped", "old", oldID, "err", err)
		return 0
	}

	copied := 0
	for _, edge := range out["implies_out"] {
		target := edge.target()
		if target == "" {
			continue
		}
		if err := s.db.Query(ctx, "addMemoryImplication", map[string]any{
			"from_id":      newID,
			"to_id":        target,
			"probability":  intOr(edge.Probability, 80),
			"reasoning_id": "copied_from_" + oldID,
		}, nil); err != nil {
			s.logger.Warn("implication copy failed", "new", newID, "target", target, "err", err)
			continue
		}
		copied++
	}
	for _, edge := range out["because_out"] {
		target := edge.target()
		if target == "" {
			continue
		}
		if err := s.db.Query(ctx, "addMemoryCausation", map[string]any{
			"from_id":      newID,
			"to_id":        target,
			"strength":     intOr(edge.Strength, 80),
			"reasoning_id": "copied_from_" + oldID,
		}, nil); err != nil {
			s.logger.Warn("causation copy failed", "new", newID, "target", target, "err", err)
			continue
		}
		copied++
	}
	for _, edge := range out["relations_out"] {
		target := edge.target()
		if target == "" {
			continue
		}
		relType := edge.RelationType
		if relType == "" {
			relType = "related"
		}
		if err := s.db.Query(ctx, "addMemoryRelation", map[string]any{
			"source_id":     newID,
			"target_id":     target,
			"relation_type": relType,
			"strength":      intOr(edge.Strength, 50),
			"created_at":    Now(),
			"metadata":      fmt.Sprintf(`{"copied_from":%q}`, oldID),
		}, nil); err != nil {
			s.logger.Warn("relation copy failed", "new", newID, "target", target, "err", err)
			continue
		}
		copied++
	}
	return copied
}
