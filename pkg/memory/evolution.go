package memory

import (
	"context"
	"fmt"
	"log/slog"
)

// supersedeConfidence is the strength recorded on SUPERSEDES edges.
const supersedeConfidence = 95

// Evolution applies decision-engine outcomes to existing memories.
//
// The update to the record itself is the operation; edges are annotations.
// An edge failure therefore degrades to a log line instead of failing the
// evolution, so a flaky graph write can't lose the new information.
type Evolution struct {
	db     Querier
	store  *Store
	logger *slog.Logger
}

// NewEvolution creates an evolution manager sharing the given Store.
func NewEvolution(db Querier, store *Store, logger *slog.Logger) *Evolution {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evolution{db: db, store: store, logger: logger.With("component", "evolution")}
}

// Supersede closes the old memory's validity window and links the new
// memory to it with a SUPERSEDES edge.
func (e *Evolution) Supersede(ctx context.Context, oldID, newID string) error {
	now := Now()
	if err := e.db.Query(ctx, "updateMemoryValidUntil", map[string]any{
		"memory_id":   oldID,
		"valid_until": now,
		"updated_at":  now,
	}, nil); err != nil {
		return fmt.Errorf("memory: supersede %s: %w", oldID, err)
	}

	if err := e.db.Query(ctx, "addMemoryRelation", map[string]any{
		"source_id":     newID,
		"target_id":     oldID,
		"relation_type": RelationSupersedes,
		"strength":      supersedeConfidence,
		"created_at":    now,
		"metadata":      "{}",
	}, nil); err != nil {
		e.logger.Warn("supersedes edge failed",
			"from", newID, "to", oldID, "err", err)
	}
	return nil
}

// Contradict records a bidirectional contradiction between two memories.
// Both memories stay active; the edges flag the conflict for search and
// later resolution. Edge failures are logged, never fatal.
func (e *Evolution) Contradict(ctx context.Context, aID, bID string, confidence int) error {
	for _, pair := range [][2]string{{aID, bID}, {bID, aID}} {
		if err := e.db.Query(ctx, "addMemoryContradiction", map[string]any{
			"from_id":             pair[0],
			"to_id":               pair[1],
			"confidence":          confidence,
			"resolution":          "",
			"resolved":            0,
			"resolution_strategy": "coexist",
		}, nil); err != nil {
			e.logger.Warn("contradiction edge failed",
				"from", pair[0], "to", pair[1], "err", err)
		}
	}
	return nil
}

// Enhance merges new detail into an existing memory in place.
func (e *Evolution) Enhance(ctx context.Context, memoryID, mergedContent string) error {
	if err := e.store.UpdateContent(ctx, memoryID, mergedContent); err != nil {
		return fmt.Errorf("memory: enhance: %w", err)
	}
	return nil
}
