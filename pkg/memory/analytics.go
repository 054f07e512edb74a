package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// StorageStats summarizes how much content the store holds.
type StorageStats struct {
	TotalMemories  int            `json:"total_memories"`
	TotalSizeBytes int            `json:"total_size_bytes"`
	TotalSizeMB    float64        `json:"total_size_mb"`
	SizeByType     map[string]int `json:"size_by_type"`
	AvgMemorySize  float64        `json:"avg_memory_size"`
	Largest        []MemorySize   `json:"largest_memories"`
	CollectedAt    string         `json:"collected_at"`
}

// MemorySize pairs a memory with its content length in bytes.
type MemorySize struct {
	MemoryID string `json:"memory_id"`
	Bytes    int    `json:"bytes"`
}

// GraphStats summarizes node populations and connectivity.
type GraphStats struct {
	NodeCounts   map[string]int `json:"node_counts"`
	TotalNodes   int            `json:"total_nodes"`
	TotalEdges   int            `json:"total_edges"`
	GraphDensity float64        `json:"graph_density"`
	AvgDegree    float64        `json:"avg_degree"`
	CollectedAt  string         `json:"collected_at"`
}

// GrowthStats summarizes how fast memories accumulate over an analysis
// window.
type GrowthStats struct {
	MemoriesPerDay    float64 `json:"memories_per_day"`
	GrowthRatePercent float64 `json:"growth_rate_percent"`
	Trend             string  `json:"trend"`
	PeriodDays        int     `json:"analysis_period_days"`
	CollectedAt       string  `json:"collected_at"`
}

// StatsSummary bundles all analytics views.
type StatsSummary struct {
	Storage     StorageStats `json:"storage"`
	Graph       GraphStats   `json:"graph"`
	Growth      GrowthStats  `json:"growth"`
	CollectedAt string       `json:"collected_at"`
}

const growthPeriodDays = 7

// Analytics computes store-wide statistics from full scans and count
// queries. All of its reads are global, not per user.
type Analytics struct {
	db     Querier
	logger *slog.Logger
}

// NewAnalytics creates an analytics collector backed by db.
func NewAnalytics(db Querier, logger *slog.Logger) *Analytics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analytics{db: db, logger: logger.With("component", "analytics")}
}

// Collect gathers every view in one pass. Storage and growth share a
// single full-memory scan.
func (a *Analytics) Collect(ctx context.Context) (*StatsSummary, error) {
	rows, err := a.allMemories(ctx)
	if err != nil {
		return nil, err
	}
	s := &StatsSummary{
		Storage:     a.storageStats(rows),
		Graph:       a.graphStats(ctx),
		Growth:      a.growthStats(rows),
		CollectedAt: Now(),
	}
	a.logger.Debug("analytics collected",
		"memories", s.Storage.TotalMemories, "nodes", s.Graph.TotalNodes)
	return s, nil
}

// StorageStats scans all memories and aggregates content sizes.
func (a *Analytics) StorageStats(ctx context.Context) (StorageStats, error) {
	rows, err := a.allMemories(ctx)
	if err != nil {
		return StorageStats{}, err
	}
	return a.storageStats(rows), nil
}

// GraphStats counts nodes by label. A failed count query contributes
// zero rather than failing the whole collection.
func (a *Analytics) GraphStats(ctx context.Context) GraphStats {
	return a.graphStats(ctx)
}

// GrowthStats measures memory creation rate over the last week.
func (a *Analytics) GrowthStats(ctx context.Context) (GrowthStats, error) {
	rows, err := a.allMemories(ctx)
	if err != nil {
		return GrowthStats{}, err
	}
	return a.growthStats(rows), nil
}

// CategoryBreakdown counts memories per type.
func (a *Analytics) CategoryBreakdown(ctx context.Context) (map[string]int, error) {
	rows, err := a.allMemories(ctx)
	if err != nil {
		return nil, err
	}
	breakdown := make(map[string]int)
	for _, r := range rows {
		breakdown[typeOrUnknown(r.MemoryType)]++
	}
	return breakdown, nil
}

type memoryScanRow struct {
	MemoryID   string `json:"memory_id"`
	Content    string `json:"content"`
	MemoryType string `json:"memory_type"`
	CreatedAt  string `json:"created_at"`
}

func (a *Analytics) allMemories(ctx context.Context) ([]memoryScanRow, error) {
	var rows []memoryScanRow
	if err := a.db.Query(ctx, "getAllMemories", map[string]any{}, &rows); err != nil {
		return nil, fmt.Errorf("memory: scan all memories: %w", err)
	}
	return rows, nil
}

func (a *Analytics) storageStats(rows []memoryScanRow) StorageStats {
	s := StorageStats{
		TotalMemories: len(rows),
		SizeByType:    make(map[string]int),
		CollectedAt:   Now(),
	}
	sizes := make([]MemorySize, 0, len(rows))
	for _, r := range rows {
		n := len(r.Content)
		s.TotalSizeBytes += n
		s.SizeByType[typeOrUnknown(r.MemoryType)] += n
		sizes = append(sizes, MemorySize{MemoryID: r.MemoryID, Bytes: n})
	}
	s.TotalSizeMB = float64(s.TotalSizeBytes) / (1024 * 1024)
	if len(rows) > 0 {
		s.AvgMemorySize = float64(s.TotalSizeBytes) / float64(len(rows))
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i].Bytes > sizes[j].Bytes })
	if len(sizes) > 10 {
		sizes = sizes[:10]
	}
	s.Largest = sizes
	return s
}

func (a *Analytics) graphStats(ctx context.Context) GraphStats {
	memories := a.count(ctx, "countAllMemories")
	entities := a.count(ctx, "countAllEntities")
	concepts := a.count(ctx, "countAllConcepts")

	g := GraphStats{
		NodeCounts: map[string]int{
			"Memory":  memories,
			"Entity":  entities,
			"Concept": concepts,
		},
		TotalNodes:  memories + entities + concepts,
		CollectedAt: Now(),
	}
	if maxEdges := g.TotalNodes * (g.TotalNodes - 1) / 2; maxEdges > 0 {
		g.GraphDensity = float64(g.TotalEdges) / float64(maxEdges)
	}
	if g.TotalNodes > 0 {
		g.AvgDegree = float64(2*g.TotalEdges) / float64(g.TotalNodes)
	}
	return g
}

func (a *Analytics) growthStats(rows []memoryScanRow) GrowthStats {
	cutoff := time.Now().UTC().AddDate(0, 0, -growthPeriodDays)
	recent := 0
	for _, r := range rows {
		t, err := time.Parse(time.RFC3339, r.CreatedAt)
		if err == nil && !t.Before(cutoff) {
			recent++
		}
	}
	old := len(rows) - recent

	g := GrowthStats{
		MemoriesPerDay: float64(recent) / growthPeriodDays,
		PeriodDays:     growthPeriodDays,
		CollectedAt:    Now(),
	}
	switch {
	case old > 0:
		g.GrowthRatePercent = float64(recent) / float64(old) * 100
	case recent > 0:
		g.GrowthRatePercent = 100
	}
	switch {
	case g.MemoriesPerDay < 1:
		g.Trend = "slow"
	case g.MemoriesPerDay < 10:
		g.Trend = "stable"
	case g.MemoriesPerDay < 100:
		g.Trend = "growing"
	default:
		g.Trend = "rapid"
	}
	return g
}

func (a *Analytics) count(ctx context.Context, query string) int {
	var n int
	if err := a.db.Query(ctx, query, map[string]any{}, &n); err != nil {
		a.logger.Warn("count query failed", "query", query, "err", err)
		return 0
	}
	return n
}

func typeOrUnknown(t string) string {
	if t == "" {
		return "unknown"
	}
	return t
}
