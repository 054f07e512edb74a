package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Deletion errors callers branch on.
var (
	// ErrAlreadyDeleted indicates a soft delete of a memory that is
	// already soft-deleted.
	ErrAlreadyDeleted = errors.New("memory: already deleted")

	// ErrCannotRestore indicates a restore of a hard-deleted memory.
	ErrCannotRestore = errors.New("memory: cannot restore hard-deleted memory")
)

// CleanupStats reports an orphan-cleanup pass.
type CleanupStats struct {
	OrphanedEntities int  `json:"orphaned_entities"`
	OrphanedEdges    int  `json:"orphaned_edges"`
	DeletedEntities  int  `json:"deleted_entities"`
	DeletedEdges     int  `json:"deleted_edges"`
	DryRun           bool `json:"dry_run"`
}

// Deletion manages the delete lifecycle: soft delete (default,
// restorable), restore, hard delete (permanent, optional edge cascade),
// and orphan cleanup after hard deletes.
type Deletion struct {
	db     Querier
	logger *slog.Logger
}

// NewDeletion creates a deletion manager backed by db.
func NewDeletion(db Querier, logger *slog.Logger) *Deletion {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deletion{db: db, logger: logger.With("component", "deletion")}
}

// SoftDelete marks a memory deleted without removing it. Soft-deleted
// memories drop out of every default search path but remain restorable.
func (d *Deletion) SoftDelete(ctx context.Context, memoryID, deletedBy, reason string) error {
	var m Memory
	if err := d.db.Query(ctx, "getMemory", map[string]string{"memory_id": memoryID}, &m); err != nil {
		return fmt.Errorf("memory: soft delete %s: %w", memoryID, err)
	}
	if m.Deleted() {
		return fmt.Errorf("memory: soft delete %s: %w", memoryID, ErrAlreadyDeleted)
	}

	err := d.db.Query(ctx, "softDeleteMemory", map[string]any{
		"memory_id":  memoryID,
		"deleted_by": deletedBy,
		"deleted_at": Now(),
		"reason":     reason,
	}, nil)
	if err != nil {
		if strings.Contains(err.Error(), "already deleted") {
			return fmt.Errorf("memory: soft delete %s: %w", memoryID, ErrAlreadyDeleted)
		}
		return fmt.Errorf("memory: soft delete %s: %w", memoryID, err)
	}
	d.logger.Info("memory soft-deleted", "memory", memoryID, "by", deletedBy)
	return nil
}

// Restore reverses a soft delete. Hard-deleted memories cannot come back;
// the attempt returns ErrCannotRestore.
func (d *Deletion) Restore(ctx context.Context, memoryID string) error {
	err := d.db.Query(ctx, "restoreMemory", map[string]string{"memory_id": memoryID}, nil)
	if err != nil {
		if strings.Contains(err.Error(), "hard deleted") {
			return fmt.Errorf("memory: restore %s: %w", memoryID, ErrCannotRestore)
		}
		return fmt.Errorf("memory: restore %s: %w", memoryID, err)
	}
	d.logger.Info("memory restored", "memory", memoryID)
	return nil
}

// HardDelete permanently removes a memory. With cascade, its edges are
// removed first so no dangling references remain. Returns whether the
// store actually deleted a record.
func (d *Deletion) HardDelete(ctx context.Context, memoryID string, cascade bool) (bool, error) {
	if cascade {
		var count struct {
			EdgeCount int `json:"edge_count"`
		}
		if err := d.db.Query(ctx, "getMemoryEdgeCount",
			map[string]string{"memory_id": memoryID}, &count); err != nil {
			return false, fmt.Errorf("memory: hard delete %s: edge count: %w", memoryID, err)
		}
		if count.EdgeCount > 0 {
			if err := d.db.Query(ctx, "deleteMemoryEdges",
				map[string]string{"memory_id": memoryID}, nil); err != nil {
				return false, fmt.Errorf("memory: hard delete %s: cascade: %w", memoryID, err)
			}
			d.logger.Debug("cascaded edge delete", "memory", memoryID, "edges", count.EdgeCount)
		}
	}

	var out struct {
		Deleted bool `json:"deleted"`
	}
	if err := d.db.Query(ctx, "hardDeleteMemory",
		map[string]string{"memory_id": memoryID}, &out); err != nil {
		return false, fmt.Errorf("memory: hard delete %s: %w", memoryID, err)
	}
	if out.Deleted {
		d.logger.Info("memory hard-deleted", "memory", memoryID, "cascade", cascade)
	}
	return out.Deleted, nil
}

// CleanupOrphans finds entities with no remaining memory links and edges
// whose endpoints are gone, and deletes them in batches. With dryRun only
// the counts are reported.
func (d *Deletion) CleanupOrphans(ctx context.Context, dryRun bool) (*CleanupStats, error) {
	var entities struct {
		EntityIDs []string `json:"entity_ids"`
	}
	if err := d.db.Query(ctx, "findOrphanedEntities", nil, &entities); err != nil {
		return nil, fmt.Errorf("memory: cleanup: find entities: %w", err)
	}

	var edges struct {
		EdgeIDs []string `json:"edge_ids"`
	}
	if err := d.db.Query(ctx, "findOrphanedEdges", nil, &edges); err != nil {
		return nil, fmt.Errorf("memory: cleanup: find edges: %w", err)
	}

	stats := &CleanupStats{
		OrphanedEntities: len(entities.EntityIDs),
		OrphanedEdges:    len(edges.EdgeIDs),
		DryRun:           dryRun,
	}
	if dryRun {
		return stats, nil
	}

	if len(entities.EntityIDs) > 0 {
		var out struct {
			DeletedCount int `json:"deleted_count"`
		}
		if err := d.db.Query(ctx, "deleteEntitiesBatch",
			map[string]any{"entity_ids": entities.EntityIDs}, &out); err != nil {
			return nil, fmt.Errorf("memory: cleanup: delete entities: %w", err)
		}
		stats.DeletedEntities = out.DeletedCount
	}
	if len(edges.EdgeIDs) > 0 {
		var out struct {
			DeletedCount int `json:"deleted_count"`
		}
		if err := d.db.Query(ctx, "deleteEdgesBatch",
			map[string]any{"edge_ids": edges.EdgeIDs}, &out); err != nil {
			return nil, fmt.Errorf("memory: cleanup: delete edges: %w", err)
		}
		stats.DeletedEdges = out.DeletedCount
	}

	d.logger.Info("orphan cleanup complete",
		"entities", stats.DeletedEntities, "edges", stats.DeletedEdges)
	return stats, nil
}
