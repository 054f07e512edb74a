// Package snapshot exports a user's memories to a portable JSON-lines
// file and replays one back into a store. Snapshots go through a
// storage.FileStore, so the same code writes to local disk or S3.
package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ontomem/omc/pkg/memory"
	"github.com/ontomem/omc/pkg/storage"
)

// FormatVersion identifies the snapshot file layout. The first line of
// every snapshot is a header record carrying it.
const FormatVersion = 1

// DefaultExportLimit caps how many memories one export fetches.
const DefaultExportLimit = 10000

// Querier is the store surface this package needs.
// *helix.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, name string, params, out any) error
}

// Header is the first line of a snapshot file.
type Header struct {
	Version    int    `json:"version"`
	UserID     string `json:"user_id"`
	ExportedAt string `json:"exported_at"`
	Count      int    `json:"count"`
}

// Record is one memory line in a snapshot file.
type Record struct {
	memory.Memory
}

// Stats summarizes an export or import run.
type Stats struct {
	UserID   string `json:"user_id"`
	Path     string `json:"path"`
	Total    int    `json:"total"`
	Written  int    `json:"written"`
	Skipped  int    `json:"skipped"`
	Failures int    `json:"failures"`
}

// Exporter writes snapshots.
type Exporter struct {
	db     Querier
	store  storage.FileStore
	limit  int
	logger *slog.Logger
}

// NewExporter creates an exporter that reads memories from db and
// writes the snapshot through store.
func NewExporter(db Querier, store storage.FileStore, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{db: db, store: store, limit: DefaultExportLimit, logger: logger.With("component", "snapshot")}
}

// WithLimit caps how many memories Export fetches.
func (e *Exporter) WithLimit(n int) *Exporter {
	if n > 0 {
		e.limit = n
	}
	return e
}

// Export writes all of userID's memories to path as JSON lines: a
// header line, then one memory per line. Soft-deleted memories are
// included so a restore round-trips them.
func (e *Exporter) Export(ctx context.Context, userID, path string) (*Stats, error) {
	var out struct {
		Memories []memory.Memory `json:"memories"`
	}
	err := e.db.Query(ctx, "getUserMemories", map[string]any{
		"user_id": userID,
		"limit":   e.limit,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("snapshot: fetch memories: %w", err)
	}

	w, err := e.store.Write(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer w.Close()

	enc := json.NewEncoder(w)
	header := Header{
		Version:    FormatVersion,
		UserID:     userID,
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      len(out.Memories),
	}
	if err := enc.Encode(header); err != nil {
		return nil, fmt.Errorf("snapshot: write header: %w", err)
	}

	stats := &Stats{UserID: userID, Path: path, Total: len(out.Memories)}
	for _, m := range out.Memories {
		if m.MemoryID == "" {
			stats.Skipped++
			continue
		}
		if err := enc.Encode(Record{Memory: m}); err != nil {
			return nil, fmt.Errorf("snapshot: write record: %w", err)
		}
		stats.Written++
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: close %s: %w", path, err)
	}
	e.logger.Info("snapshot exported", "user", userID, "path", path, "memories", stats.Written)
	return stats, nil
}

// Importer replays snapshots into a store.
type Importer struct {
	db     Querier
	store  storage.FileStore
	logger *slog.Logger
}

// NewImporter creates an importer that reads snapshots through store
// and writes memories into db.
func NewImporter(db Querier, store storage.FileStore, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{db: db, store: store, logger: logger.With("component", "snapshot")}
}

// ErrBadSnapshot indicates the file is not a readable snapshot.
var ErrBadSnapshot = errors.New("snapshot: unreadable snapshot file")

// Import replays the snapshot at path. Memory IDs and timestamps are
// preserved; records that fail to store are counted, not fatal. The
// snapshot's user is created if missing.
func (i *Importer) Import(ctx context.Context, path string) (*Stats, error) {
	r, err := i.store.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer r.Close()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !sc.Scan() {
		return nil, fmt.Errorf("%w: empty file %s", ErrBadSnapshot, path)
	}
	var header Header
	if err := json.Unmarshal(sc.Bytes(), &header); err != nil || header.Version == 0 {
		return nil, fmt.Errorf("%w: bad header in %s", ErrBadSnapshot, path)
	}
	if header.Version > FormatVersion {
		return nil, fmt.Errorf("snapshot: version %d is newer than supported %d", header.Version, FormatVersion)
	}

	if err := i.ensureUser(ctx, header.UserID); err != nil {
		return nil, err
	}

	stats := &Stats{UserID: header.UserID, Path: path, Total: header.Count}
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			i.logger.Warn("bad snapshot line, skipping", "err", err)
			stats.Skipped++
			continue
		}
		if rec.MemoryID == "" {
			stats.Skipped++
			continue
		}
		if err := i.storeRecord(ctx, header.UserID, rec); err != nil {
			i.logger.Warn("record import failed", "memory", rec.MemoryID, "err", err)
			stats.Failures++
			continue
		}
		stats.Written++
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("snapshot: read %s: %w", path, err)
	}
	i.logger.Info("snapshot imported", "user", header.UserID, "path", path,
		"memories", stats.Written, "failures", stats.Failures)
	return stats, nil
}

func (i *Importer) ensureUser(ctx context.Context, userID string) error {
	err := i.db.Query(ctx, "addUser", map[string]any{
		"user_id": userID,
		"name":    fmt.Sprintf("User %s", userID),
	}, nil)
	if err != nil {
		return fmt.Errorf("snapshot: ensure user %s: %w", userID, err)
	}
	return nil
}

// storeRecord writes one memory with its original ID and timestamps,
// then re-links it to the user.
func (i *Importer) storeRecord(ctx context.Context, userID string, rec Record) error {
	var out struct {
		ID string `json:"id"`
	}
	err := i.db.Query(ctx, "addMemory", map[string]any{
		"memory_id":    rec.MemoryID,
		"content":      rec.Content,
		"memory_type":  rec.MemoryType,
		"user_id":      userID,
		"certainty":    rec.Certainty,
		"importance":   rec.Importance,
		"created_at":   rec.CreatedAt,
		"updated_at":   rec.UpdatedAt,
		"valid_from":   rec.ValidFrom,
		"valid_until":  rec.ValidUntil,
		"immutable":    rec.Immutable,
		"verified":     rec.Verified,
		"source":       rec.Source,
		"context_tags": rec.ContextTags,
		"metadata":     rec.Metadata,
	}, &out)
	if err != nil {
		return err
	}
	if out.ID == "" {
		return memory.ErrMissingInternalID
	}
	if err := i.db.Query(ctx, "linkUserToMemory", map[string]any{
		"user_id":   userID,
		"memory_id": rec.MemoryID,
		"context":   "imported",
	}, nil); err != nil {
		return err
	}
	// Replay the deletion flag so restores round-trip.
	if rec.IsDeleted != 0 {
		return i.db.Query(ctx, "softDeleteMemory", map[string]any{
			"memory_id":  rec.MemoryID,
			"deleted_by": rec.DeletedBy,
			"deleted_at": rec.DeletedAt,
			"reason":     "imported",
		}, nil)
	}
	return nil
}
