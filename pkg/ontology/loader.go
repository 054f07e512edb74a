package ontology

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ontomem/omc/pkg/helix"
)

// Loader bootstraps and caches the concept hierarchy.
// Safe for concurrent use once loaded.
type Loader struct {
	db     Querier
	logger *slog.Logger

	mu       sync.RWMutex
	concepts map[string]Concept
}

// NewLoader creates a loader backed by db.
func NewLoader(db Querier, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		db:       db,
		logger:   logger.With("component", "ontology"),
		concepts: make(map[string]Concept),
	}
}

// EnsureInitialized installs the base tree if the store doesn't have it,
// then loads every concept into the local cache.
func (l *Loader) EnsureInitialized(ctx context.Context) error {
	initialized, err := l.checkInitialized(ctx)
	if err != nil {
		return err
	}
	if !initialized {
		l.logger.Info("installing base ontology", "concepts", len(BaseConcepts))
		if err := l.db.Query(ctx, "initializeBaseOntology",
			map[string]any{"concepts": BaseConcepts}, nil); err != nil {
			return fmt.Errorf("ontology: initialize base: %w", err)
		}
	}
	return l.Reload(ctx)
}

// checkInitialized probes for the root concept. The store answers with a
// "thing" field when the tree exists; a miss means a fresh store.
func (l *Loader) checkInitialized(ctx context.Context) (bool, error) {
	var out struct {
		Thing *Concept `json:"thing"`
	}
	err := l.db.Query(ctx, "checkOntologyInitialized", nil, &out)
	if err != nil {
		if errors.Is(err, helix.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("ontology: check initialized: %w", err)
	}
	return out.Thing != nil, nil
}

// Reload replaces the cache with the store's current concept set.
func (l *Loader) Reload(ctx context.Context) error {
	var out struct {
		Concepts []Concept `json:"concepts"`
	}
	if err := l.db.Query(ctx, "getAllConcepts", nil, &out); err != nil {
		return fmt.Errorf("ontology: load concepts: %w", err)
	}

	cache := make(map[string]Concept, len(out.Concepts))
	for _, c := range out.Concepts {
		cache[c.ConceptID] = c
	}

	l.mu.Lock()
	l.concepts = cache
	l.mu.Unlock()
	l.logger.Debug("ontology cache loaded", "concepts", len(cache))
	return nil
}

// Get returns a concept by ID.
func (l *Loader) Get(conceptID string) (Concept, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.concepts[conceptID]
	return c, ok
}

// All returns a copy of every cached concept.
func (l *Loader) All() []Concept {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Concept, 0, len(l.concepts))
	for _, c := range l.concepts {
		out = append(out, c)
	}
	return out
}

// Ancestors walks parent links from conceptID to the root, nearest first.
// The walk stops on a missing parent or a cycle.
func (l *Loader) Ancestors(conceptID string) []Concept {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Concept
	seen := map[string]struct{}{conceptID: {}}
	cur, ok := l.concepts[conceptID]
	for ok && cur.ParentConcept != "" {
		parent, found := l.concepts[cur.ParentConcept]
		if !found {
			break
		}
		if _, cycle := seen[parent.ConceptID]; cycle {
			break
		}
		seen[parent.ConceptID] = struct{}{}
		out = append(out, parent)
		cur = parent
	}
	return out
}

// Subtypes returns the direct children of conceptID.
func (l *Loader) Subtypes(conceptID string) []Concept {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Concept
	for _, c := range l.concepts {
		if c.ParentConcept == conceptID {
			out = append(out, c)
		}
	}
	return out
}
