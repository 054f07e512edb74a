// Package memory implements the memory lifecycle: creation, evolution
// (supersession, contradiction, enhancement), deletion with restore, and
// retrieval with chunk reconstruction.
//
// A memory is a versioned fact about a user. It is never destroyed by
// normal operation: new information closes the old record's validity
// window and links a successor, contradictions are recorded as edges
// rather than resolved by overwriting, and deletion is soft by default.
package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Memory types.
const (
	TypeFact       = "fact"
	TypePreference = "preference"
	TypeGoal       = "goal"
	TypeOpinion    = "opinion"
	TypeExperience = "experience"
)

// Relation types between memories.
const (
	RelationImplies     = "IMPLIES"
	RelationBecause     = "BECAUSE"
	RelationContradicts = "CONTRADICTS"
	RelationSupports    = "SUPPORTS"
	RelationSupersedes  = "SUPERSEDES"
	RelationRelatesTo   = "RELATES_TO"
)

// Memory is the full record as stored. Flag fields (Immutable, Verified,
// IsDeleted) are 0/1 integers on the wire.
type Memory struct {
	MemoryID    string `json:"memory_id"`
	Content     string `json:"content"`
	MemoryType  string `json:"memory_type"`
	UserID      string `json:"user_id"`
	Certainty   int    `json:"certainty"`
	Importance  int    `json:"importance"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	ValidFrom   string `json:"valid_from"`
	ValidUntil  string `json:"valid_until"`
	Immutable   int    `json:"immutable"`
	Verified    int    `json:"verified"`
	Source      string `json:"source"`
	ContextTags string `json:"context_tags"`
	Metadata    string `json:"metadata"`
	IsDeleted   int    `json:"is_deleted"`
	DeletedAt   string `json:"deleted_at"`
	DeletedBy   string `json:"deleted_by"`

	Concepts []string `json:"concepts,omitempty"`
}

// Deleted reports whether the memory is soft-deleted.
func (m *Memory) Deleted() bool { return m.IsDeleted != 0 }

// Superseded reports whether the memory's validity window is closed.
func (m *Memory) Superseded() bool { return m.ValidUntil != "" }

// NewID mints a memory ID: "mem_" plus the first 12 hex characters of a
// random UUID.
func NewID() string {
	return "mem_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Now returns the RFC 3339 timestamp used across memory records.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// Querier is the store surface this package needs.
// *helix.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, name string, params, out any) error
}
