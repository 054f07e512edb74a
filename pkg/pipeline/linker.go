package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type trackedChunk struct {
	chunkID    string
	internalID string
	position   int
}

// LinkBuilder accumulates created chunks per memory and, once the
// expected count has arrived, links consecutive chunks into a chain so
// reconstruction can walk them in order.
type LinkBuilder struct {
	db     Querier
	events *Events
	logger *slog.Logger

	mu       sync.Mutex
	chunks   map[string][]trackedChunk
	expected map[string]int
}

// NewLinkBuilder creates a chunk link builder.
func NewLinkBuilder(db Querier, events *Events, logger *slog.Logger) *LinkBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkBuilder{
		db:       db,
		events:   events,
		logger:   logger.With("component", "linking"),
		chunks:   make(map[string][]trackedChunk),
		expected: make(map[string]int),
	}
}

// TrackChunk records one created chunk. When the last expected chunk of
// a memory arrives, the chain is built and tracking state is cleared.
func (l *LinkBuilder) TrackChunk(ctx context.Context, memoryID string, c CreatedChunk, totalChunks int) {
	l.mu.Lock()
	l.chunks[memoryID] = append(l.chunks[memoryID], trackedChunk{
		chunkID:    c.ChunkID,
		internalID: c.InternalID,
		position:   c.Position,
	})
	l.expected[memoryID] = totalChunks
	complete := totalChunks > 0 && len(l.chunks[memoryID]) == totalChunks
	var chain []trackedChunk
	if complete {
		chain = l.chunks[memoryID]
		delete(l.chunks, memoryID)
		delete(l.expected, memoryID)
	}
	l.mu.Unlock()

	if complete {
		l.buildChain(ctx, memoryID, chain)
	}
}

// LinkAll links a complete set of chunks for one memory in one call.
func (l *LinkBuilder) LinkAll(ctx context.Context, memoryID string, chunks []CreatedChunk) {
	tracked := make([]trackedChunk, len(chunks))
	for i, c := range chunks {
		tracked[i] = trackedChunk{chunkID: c.ChunkID, internalID: c.InternalID, position: c.Position}
	}
	l.buildChain(ctx, memoryID, tracked)
}

func (l *LinkBuilder) buildChain(ctx context.Context, memoryID string, chain []trackedChunk) {
	start := time.Now()
	sort.Slice(chain, func(i, j int) bool { return chain[i].position < chain[j].position })

	if len(chain) <= 1 {
		l.events.emit(Event{
			Type:       EventLinkingComplete,
			MemoryID:   memoryID,
			DurationMS: float64(time.Since(start).Microseconds()) / 1000,
		})
		return
	}

	edges, errs := 0, 0
	for i := 0; i < len(chain)-1; i++ {
		from, to := chain[i], chain[i+1]
		if from.internalID == "" || to.internalID == "" {
			l.logger.Warn("chunk missing internal ID",
				"memory", memoryID, "from", from.chunkID, "to", to.chunkID)
			errs++
			continue
		}
		err := l.db.Query(ctx, "linkChunks", map[string]string{
			"from_chunk_id": from.internalID,
			"to_chunk_id":   to.internalID,
		}, nil)
		if err != nil {
			l.logger.Warn("chunk link failed",
				"memory", memoryID, "from", from.chunkID, "to", to.chunkID, "err", err)
			errs++
			continue
		}
		edges++
		l.events.emit(Event{
			Type:     EventLinkCreated,
			MemoryID: memoryID,
			ChunkID:  from.chunkID,
			Position: from.position,
		})
	}

	l.logger.Debug("chunk chain complete", "memory", memoryID, "edges", edges, "errors", errs)
	l.events.emit(Event{
		Type:         EventLinkingComplete,
		MemoryID:     memoryID,
		EdgesCreated: edges,
		Errors:       errs,
		DurationMS:   float64(time.Since(start).Microseconds()) / 1000,
	})
}
