package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStorageStatsAggregatesByType(t *testing.T) {
	db := newMockDB()
	db.handle("getAllMemories", func(any) (any, error) {
		return []map[string]any{
			{"memory_id": "mem_1", "content": "aaaa", "memory_type": "fact"},
			{"memory_id": "mem_2", "content": "bbbbbbbb", "memory_type": "fact"},
			{"memory_id": "mem_3", "content": "cc"},
		}, nil
	})
	a := NewAnalytics(db, nil)

	s, err := a.StorageStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalMemories != 3 || s.TotalSizeBytes != 14 {
		t.Errorf("totals = %+v", s)
	}
	if s.SizeByType["fact"] != 12 || s.SizeByType["unknown"] != 2 {
		t.Errorf("size by type = %v", s.SizeByType)
	}
	if s.AvgMemorySize != 14.0/3.0 {
		t.Errorf("avg = %v", s.AvgMemorySize)
	}
	// Largest first.
	if s.Largest[0].MemoryID != "mem_2" || s.Largest[0].Bytes != 8 {
		t.Errorf("largest = %v", s.Largest)
	}
}

func TestGraphStatsDegradesFailedCountsToZero(t *testing.T) {
	db := newMockDB()
	db.handle("countAllMemories", func(any) (any, error) { return 10, nil })
	db.handle("countAllEntities", func(any) (any, error) { return nil, errors.New("store down") })
	db.handle("countAllConcepts", func(any) (any, error) { return 5, nil })
	a := NewAnalytics(db, nil)

	g := a.GraphStats(context.Background())
	if g.NodeCounts["Memory"] != 10 || g.NodeCounts["Entity"] != 0 || g.NodeCounts["Concept"] != 5 {
		t.Errorf("node counts = %v", g.NodeCounts)
	}
	if g.TotalNodes != 15 {
		t.Errorf("total nodes = %d", g.TotalNodes)
	}
}

func TestGrowthStatsCountsRecentMemories(t *testing.T) {
	now := time.Now().UTC()
	db := newMockDB()
	db.handle("getAllMemories", func(any) (any, error) {
		return []map[string]any{
			{"memory_id": "mem_1", "created_at": now.AddDate(0, 0, -1).Format(time.RFC3339)},
			{"memory_id": "mem_2", "created_at": now.AddDate(0, 0, -2).Format(time.RFC3339)},
			{"memory_id": "mem_3", "created_at": now.AddDate(0, 0, -30).Format(time.RFC3339)},
			{"memory_id": "mem_4", "created_at": "not a timestamp"},
		}, nil
	})
	a := NewAnalytics(db, nil)

	g, err := a.GrowthStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if g.MemoriesPerDay != 2.0/7.0 {
		t.Errorf("per day = %v", g.MemoriesPerDay)
	}
	if g.GrowthRatePercent != 100 {
		t.Errorf("growth = %v", g.GrowthRatePercent)
	}
	if g.Trend != "slow" {
		t.Errorf("trend = %q", g.Trend)
	}
}

func TestCollectSharesOneScan(t *testing.T) {
	db := newMockDB()
	db.handle("getAllMemories", func(any) (any, error) {
		return []map[string]any{{"memory_id": "mem_1", "content": "x", "memory_type": "fact"}}, nil
	})
	db.handle("countAllMemories", func(any) (any, error) { return 1, nil })
	db.handle("countAllEntities", func(any) (any, error) { return 0, nil })
	db.handle("countAllConcepts", func(any) (any, error) { return 0, nil })
	a := NewAnalytics(db, nil)

	s, err := a.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Storage.TotalMemories != 1 || s.Graph.TotalNodes != 1 {
		t.Errorf("summary = %+v", s)
	}
	if db.calls("getAllMemories") != 1 {
		t.Errorf("getAllMemories calls = %d, want 1", db.calls("getAllMemories"))
	}
}

func TestCategoryBreakdown(t *testing.T) {
	db := newMockDB()
	db.handle("getAllMemories", func(any) (any, error) {
		return []map[string]any{
			{"memory_type": "fact"}, {"memory_type": "fact"}, {"memory_type": "goal"}, {},
		}, nil
	})
	a := NewAnalytics(db, nil)

	got, err := a.CategoryBreakdown(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got["fact"] != 2 || got["goal"] != 1 || got["unknown"] != 1 {
		t.Errorf("breakdown = %v", got)
	}
}
