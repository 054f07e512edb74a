package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ontomem/omc/pkg/chunk"
	"github.com/ontomem/omc/pkg/embed"
	"github.com/ontomem/omc/pkg/resolve"
)

// Querier is the store surface this package needs.
// *helix.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, name string, params, out any) error
}

// CreatedChunk reports one stored chunk.
type CreatedChunk struct {
	ChunkID    string
	InternalID string
	Position   int
}

// ChunkOutcome summarizes chunking one memory.
type ChunkOutcome struct {
	MemoryID      string
	Chunks        []CreatedChunk
	ChunksCreated int
	Errors        int
	DurationMS    float64
	Success       bool
}

// Chunker splits long memory content and stores the pieces as chunk
// nodes under the parent memory.
type Chunker struct {
	db         Querier
	resolver   *resolve.Resolver
	splitter   *chunk.Splitter
	events     *Events
	embedder   embed.Embedder
	embedModel string
	logger     *slog.Logger
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithChunkEmbedder stores a per-chunk embedding alongside each chunk
// node, so long memories stay findable by vector search through their
// parts.
func WithChunkEmbedder(e embed.Embedder, model string) ChunkerOption {
	return func(c *Chunker) {
		c.embedder = e
		c.embedModel = model
	}
}

// NewChunker creates a chunking service.
func NewChunker(db Querier, resolver *resolve.Resolver, splitter *chunk.Splitter, events *Events, logger *slog.Logger, opts ...ChunkerOption) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chunker{
		db:       db,
		resolver: resolver,
		splitter: splitter,
		events:   events,
		logger:   logger.With("component", "chunking"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Process chunks one memory's content if it is long enough. Chunks are
// created in parallel; creation order is not meaningful, position is.
// Individual chunk failures surface in the outcome, not as an error.
func (c *Chunker) Process(ctx context.Context, memoryID, internalID, content string) (*ChunkOutcome, error) {
	start := time.Now()

	if !c.splitter.Config().NeedsChunking(content) {
		return &ChunkOutcome{MemoryID: memoryID, Success: true}, nil
	}

	if internalID == "" {
		id, err := c.resolver.Resolve(ctx, memoryID)
		if err != nil {
			return nil, fmt.Errorf("pipeline: chunk %s: resolve: %w", memoryID, err)
		}
		internalID = id
	}

	chunks, err := c.splitter.Split(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("pipeline: chunk %s: split: %w", memoryID, err)
	}

	c.events.emit(Event{
		Type:            EventChunkingStarted,
		MemoryID:        memoryID,
		ContentLength:   len(content),
		EstimatedChunks: len(chunks),
		Strategy:        string(c.splitter.Config().Strategy),
	})

	var (
		mu      sync.Mutex
		created []CreatedChunk
		errs    int
		wg      sync.WaitGroup
	)
	for i, ck := range chunks {
		wg.Add(1)
		go func(position int, ck chunk.Chunk) {
			defer wg.Done()
			result, err := c.createChunk(ctx, memoryID, internalID, ck, position)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.Warn("chunk create failed",
					"memory", memoryID, "position", position, "err", err)
				errs++
				return
			}
			created = append(created, *result)
			c.events.emit(Event{
				Type:        EventChunkCreated,
				MemoryID:    memoryID,
				ChunkID:     result.ChunkID,
				Position:    position,
				TotalChunks: len(chunks),
			})
		}(i, ck)
	}
	wg.Wait()

	sort.Slice(created, func(i, j int) bool { return created[i].Position < created[j].Position })

	outcome := &ChunkOutcome{
		MemoryID:      memoryID,
		Chunks:        created,
		ChunksCreated: len(created),
		Errors:        errs,
		DurationMS:    float64(time.Since(start).Microseconds()) / 1000,
		Success:       errs == 0,
	}
	c.events.emit(Event{
		Type:          EventChunkingComplete,
		MemoryID:      memoryID,
		ChunksCreated: outcome.ChunksCreated,
		Errors:        errs,
		DurationMS:    outcome.DurationMS,
		Success:       outcome.Success,
	})
	return outcome, nil
}

func (c *Chunker) createChunk(ctx context.Context, memoryID, internalID string, ck chunk.Chunk, position int) (*CreatedChunk, error) {
	chunkID := fmt.Sprintf("%s_chunk_%d", memoryID, position)
	var out struct {
		ID string `json:"id"`
	}
	err := c.db.Query(ctx, "addMemoryChunk", map[string]any{
		"chunk_id":    chunkID,
		"parent_id":   internalID,
		"position":    position,
		"content":     ck.Text,
		"token_count": ck.TokenCount,
		"created_at":  time.Now().UTC().Format(time.RFC3339),
	}, &out)
	if err != nil {
		return nil, err
	}

	// Embedding failures leave the chunk reachable through its parent.
	if c.embedder != nil {
		if err := c.storeChunkEmbedding(ctx, out.ID, ck.Text); err != nil {
			c.logger.Warn("chunk embedding failed",
				"memory", memoryID, "position", position, "err", err)
		}
	}
	return &CreatedChunk{ChunkID: chunkID, InternalID: out.ID, Position: position}, nil
}

func (c *Chunker) storeChunkEmbedding(ctx context.Context, internalID, text string) error {
	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	return c.db.Query(ctx, "addChunkEmbedding", map[string]any{
		"chunk_id":        internalID,
		"vector_data":     vec,
		"embedding_model": c.embedModel,
	}, nil)
}
