// Package pipeline implements the memory write path: extraction of
// atomic memories from raw text, the decision engine that reconciles
// each one against similar existing memories, chunked storage of long
// content, chunk linking, and graph integration of the result.
package pipeline

import "log/slog"

// EventType tags a pipeline progress event.
type EventType string

const (
	EventChunkingStarted  EventType = "chunking_started"
	EventChunkCreated     EventType = "chunk_created"
	EventChunkingComplete EventType = "chunking_complete"
	EventChunkingFailed   EventType = "chunking_failed"
	EventLinkCreated      EventType = "link_created"
	EventLinkingComplete  EventType = "linking_complete"
)

// Event is one progress notification from the write path.
type Event struct {
	Type     EventType `json:"type"`
	MemoryID string    `json:"memory_id"`

	// Chunking fields.
	ContentLength   int    `json:"content_length,omitempty"`
	EstimatedChunks int    `json:"estimated_chunks,omitempty"`
	Strategy        string `json:"strategy,omitempty"`
	ChunkID         string `json:"chunk_id,omitempty"`
	Position        int    `json:"position,omitempty"`
	TotalChunks     int    `json:"total_chunks,omitempty"`
	ChunksCreated   int    `json:"chunks_created,omitempty"`

	// Linking fields.
	EdgesCreated int `json:"edges_created,omitempty"`
	Errors       int `json:"errors,omitempty"`

	DurationMS float64 `json:"duration_ms,omitempty"`
	Success    bool    `json:"success,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Events is a buffered progress stream. Senders never block: when the
// buffer is full the event is dropped and counted, so a slow consumer
// cannot stall a write.
type Events struct {
	ch     chan Event
	logger *slog.Logger
}

// NewEvents creates an event stream with the given buffer size.
func NewEvents(buffer int, logger *slog.Logger) *Events {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{
		ch:     make(chan Event, buffer),
		logger: logger.With("component", "pipeline"),
	}
}

// C returns the receive side of the stream.
func (e *Events) C() <-chan Event { return e.ch }

// Close closes the stream. Emit after Close is a no-op.
func (e *Events) Close() { close(e.ch) }

func (e *Events) emit(ev Event) {
	if e == nil {
		return
	}
	select {
	case e.ch <- ev:
	default:
		e.logger.Debug("event dropped", "type", ev.Type, "memory", ev.MemoryID)
	}
}
