package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// mockEmbedder returns deterministic 4-dimensional vectors derived from
// the text length and counts calls.
type mockEmbedder struct {
	calls atomic.Int64
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	m.calls.Add(1)
	n := float32(len(text))
	return []float32{n, n / 2, 1, 0}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

func (m *mockEmbedder) Dimension() int { return 4 }

func TestCosine(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero norm", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 2}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Cosine(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Cosine = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCacheHitAndMiss(t *testing.T) {
	inner := &mockEmbedder{}
	c := NewCache(inner)
	ctx := context.Background()

	v1, err := c.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	v2, err := c.Embed(ctx, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if Cosine(v1, v2) != 1 {
		t.Error("cached vector differs from original")
	}
	if inner.calls.Load() != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls.Load())
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Size != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.HitRate != 0.5 {
		t.Errorf("hit rate = %v", s.HitRate)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	inner := &mockEmbedder{}
	c := NewCache(inner, WithTTL(time.Minute))
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := c.Embed(ctx, "hello"); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := c.Embed(ctx, "hello"); err != nil {
		t.Fatal(err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("inner calls = %d, want 2 (entry expired)", inner.calls.Load())
	}
}

func TestCacheEvictsOldestAtCapacity(t *testing.T) {
	inner := &mockEmbedder{}
	c := NewCache(inner, WithCapacity(2))
	now := time.Now()
	c.now = func() time.Time { now = now.Add(time.Second); return now }
	ctx := context.Background()

	for _, text := range []string{"a", "bb", "ccc"} {
		if _, err := c.Embed(ctx, text); err != nil {
			t.Fatal(err)
		}
	}

	s := c.Stats()
	if s.Size != 2 || s.Evictions != 1 {
		t.Errorf("stats = %+v", s)
	}

	// "a" was the oldest entry, so it must re-embed.
	before := inner.calls.Load()
	if _, err := c.Embed(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if inner.calls.Load() != before+1 {
		t.Error("oldest entry should have been evicted")
	}
}

func TestBadgerCachePersists(t *testing.T) {
	inner := &mockEmbedder{}
	c, err := NewBadgerCache(inner, BadgerCacheOptions{
		InMemory: true,
		Model:    "nomic-embed-text",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	if _, err := c.Embed(ctx, "persistent fact"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Embed(ctx, "persistent fact"); err != nil {
		t.Fatal(err)
	}
	if inner.calls.Load() != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls.Load())
	}
}

func TestBadgerCacheModelMismatchIsMiss(t *testing.T) {
	inner := &mockEmbedder{}
	c, err := NewBadgerCache(inner, BadgerCacheOptions{InMemory: true, Model: "model-a"})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx := context.Background()
	if _, err := c.Embed(ctx, "fact"); err != nil {
		t.Fatal(err)
	}

	// Same store, different model tag.
	c.model = "model-b"
	if _, err := c.Embed(ctx, "fact"); err != nil {
		t.Fatal(err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls.Load())
	}
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "nomic-embed-text" || req.Prompt != "hello" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	e := NewOllama(srv.URL)
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || math.Abs(float64(vec[2])-0.3) > 1e-6 {
		t.Errorf("vec = %v", vec)
	}
}

func TestOllamaEmptyInput(t *testing.T) {
	e := NewOllama("http://localhost:0")
	if _, err := e.Embed(context.Background(), ""); err != ErrEmptyInput {
		t.Errorf("err = %v, want ErrEmptyInput", err)
	}
}
