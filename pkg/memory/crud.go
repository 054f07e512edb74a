package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ontomem/omc/pkg/embed"
	"github.com/ontomem/omc/pkg/helix"
)

// ErrMissingInternalID indicates the store accepted a memory but returned
// no internal node ID, leaving the record unlinkable.
var ErrMissingInternalID = errors.New("memory: store returned no internal id")

// AddInput describes a memory to create. Zero fields take defaults.
type AddInput struct {
	UserID      string
	Content     string
	MemoryType  string // default "fact"
	Certainty   int    // default 80
	Importance  int    // default 50
	Source      string // default "user"
	ContextTags string
	Metadata    string
}

// AddResult reports a created memory.
type AddResult struct {
	MemoryID   string `json:"memory_id"`
	InternalID string `json:"internal_id"`
	Embedded   bool   `json:"embedded"`
}

// Store performs memory CRUD against the backing store.
type Store struct {
	db       Querier
	embedder embed.Embedder
	model    string
	logger   *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithEmbedder enables embedding storage for new memories.
func WithEmbedder(e embed.Embedder, model string) StoreOption {
	return func(s *Store) { s.embedder = e; s.model = model }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a memory store backed by db.
func NewStore(db Querier, opts ...StoreOption) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "memory")
	return s
}

// Add creates a memory, stores its embedding, and links it to the user.
// The user record is created lazily on first write. An embedding failure
// is logged but does not fail the write.
func (s *Store) Add(ctx context.Context, in AddInput) (*AddResult, error) {
	if in.UserID == "" {
		return nil, errors.New("memory: add: empty user ID")
	}
	if in.Content == "" {
		return nil, errors.New("memory: add: empty content")
	}
	if in.MemoryType == "" {
		in.MemoryType = TypeFact
	}
	if in.Certainty == 0 {
		in.Certainty = 80
	}
	if in.Importance == 0 {
		in.Importance = 50
	}
	if in.Source == "" {
		in.Source = "user"
	}

	if err := s.ensureUser(ctx, in.UserID); err != nil {
		return nil, err
	}

	now := Now()
	memoryID := NewID()
	var out struct {
		ID string `json:"id"`
	}
	err := s.db.Query(ctx, "addMemory", map[string]any{
		"memory_id":    memoryID,
		"content":      in.Content,
		"memory_type":  in.MemoryType,
		"user_id":      in.UserID,
		"certainty":    in.Certainty,
		"importance":   in.Importance,
		"created_at":   now,
		"updated_at":   now,
		"valid_from":   now,
		"valid_until":  "",
		"immutable":    0,
		"verified":     0,
		"source":       in.Source,
		"context_tags": in.ContextTags,
		"metadata":     in.Metadata,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("memory: add: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("memory: add %s: %w", memoryID, ErrMissingInternalID)
	}

	result := &AddResult{MemoryID: memoryID, InternalID: out.ID}

	if s.embedder != nil {
		if err := s.storeEmbedding(ctx, out.ID, in.Content); err != nil {
			s.logger.Warn("embedding store failed", "memory", memoryID, "err", err)
		} else {
			result.Embedded = true
		}
	}

	if err := s.db.Query(ctx, "linkUserToMemory", map[string]any{
		"user_id":   in.UserID,
		"memory_id": memoryID,
		"context":   "created",
	}, nil); err != nil {
		s.logger.Warn("user link failed", "memory", memoryID, "err", err)
	}

	return result, nil
}

// Get fetches a memory by external ID.
func (s *Store) Get(ctx context.Context, memoryID string) (*Memory, error) {
	var m Memory
	if err := s.db.Query(ctx, "getMemory", map[string]string{"memory_id": memoryID}, &m); err != nil {
		return nil, fmt.Errorf("memory: get %s: %w", memoryID, err)
	}
	return &m, nil
}

// UpdateContent rewrites a memory's content in place and refreshes its
// embedding. Used by the enhancement path.
func (s *Store) UpdateContent(ctx context.Context, memoryID, content string) error {
	err := s.db.Query(ctx, "updateMemoryContent", map[string]any{
		"memory_id":  memoryID,
		"content":    content,
		"updated_at": Now(),
	}, nil)
	if err != nil {
		return fmt.Errorf("memory: update %s: %w", memoryID, err)
	}
	return nil
}

// ensureUser creates the user record on first sight.
func (s *Store) ensureUser(ctx context.Context, userID string) error {
	err := s.db.Query(ctx, "getUser", map[string]string{"user_id": userID}, nil)
	if err == nil {
		return nil
	}
	if !errors.Is(err, helix.ErrNotFound) {
		return fmt.Errorf("memory: get user %s: %w", userID, err)
	}

	s.logger.Info("creating user", "user", userID)
	if err := s.db.Query(ctx, "addUser", map[string]any{
		"user_id": userID,
		"name":    fmt.Sprintf("User %s", userID),
	}, nil); err != nil {
		return fmt.Errorf("memory: add user %s: %w", userID, err)
	}
	return nil
}

func (s *Store) storeEmbedding(ctx context.Context, internalID, content string) error {
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return err
	}
	return s.db.Query(ctx, "addMemoryEmbedding", map[string]any{
		"memory_id":       internalID,
		"vector_data":     vec,
		"embedding_model": s.model,
	}, nil)
}
