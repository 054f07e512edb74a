package chunk

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// topicEmbedder gives sentences containing "cats" one direction and all
// others an orthogonal one, forcing a semantic break between topics.
type topicEmbedder struct{}

func (topicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "cats") {
		return []float32{1, 0, 0, 0}, nil
	}
	return []float32{0, 1, 0, 0}, nil
}

func (e topicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i], _ = e.Embed(ctx, t)
	}
	return vecs, nil
}

func (topicEmbedder) Dimension() int { return 4 }

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("First. Second! Third? Trailing fragment")
	want := []string{"First.", "Second!", "Third?", "Trailing fragment"}
	if len(got) != len(want) {
		t.Fatalf("sentences = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	// 3 words / 0.75 = 4 tokens.
	if got := EstimateTokens("one two three"); got != 4 {
		t.Errorf("EstimateTokens = %d, want 4", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(empty) = %d", got)
	}
}

func TestNeedsChunking(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.NeedsChunking(strings.Repeat("a", 999)) {
		t.Error("999 chars should not need chunking")
	}
	if !cfg.NeedsChunking(strings.Repeat("a", 1000)) {
		t.Error("1000 chars should need chunking")
	}
}

func TestSplitEmptyInput(t *testing.T) {
	s := NewSplitter(Config{})
	for _, text := range []string{"", "   \n\t"} {
		if _, err := s.Split(context.Background(), text); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Split(%q) err = %v, want ErrEmptyInput", text, err)
		}
	}
}

func TestSplitShortContentSingleChunk(t *testing.T) {
	s := NewSplitter(Config{})
	chunks, err := s.Split(context.Background(), "A short fact. Nothing more.")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].Position != 0 {
		t.Fatalf("chunks = %+v", chunks)
	}
}

func TestSplitSentenceBased(t *testing.T) {
	// 40 sentences of ~20 tokens each against a 100-token budget.
	sentence := strings.Repeat("word ", 15) + "end."
	text := strings.Repeat(sentence+" ", 40)

	s := NewSplitter(Config{Strategy: StrategySentence, ChunkSize: 100, Overlap: 10})
	chunks, err := s.Split(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.Position != i {
			t.Errorf("chunk %d has position %d", i, c.Position)
		}
		if c.Text == "" || c.TokenCount == 0 {
			t.Errorf("chunk %d is empty: %+v", i, c)
		}
	}
}

func TestSplitOverlapCarried(t *testing.T) {
	sentence := strings.Repeat("word ", 15) + "end."
	text := strings.Repeat(sentence+" ", 40)

	s := NewSplitter(Config{Strategy: StrategySentence, ChunkSize: 100, Overlap: 10})
	chunks, err := s.Split(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatal("need at least two chunks")
	}
	// The second chunk opens with tail text from the first.
	first, second := chunks[0].Text, chunks[1].Text
	head := second[:min(len(second), 30)]
	if !strings.Contains(first, strings.Fields(head)[0]) {
		t.Errorf("second chunk head %q not drawn from first chunk", head)
	}
}

func TestSplitSemanticBreaksOnTopicShift(t *testing.T) {
	catSentence := "I really love cats very much indeed."
	dogSentence := "Dogs are loyal companions for running."
	text := strings.Repeat(catSentence+" ", 20) + strings.Repeat(dogSentence+" ", 20)
	if len(text) < DefaultMinChunkLength {
		t.Fatal("test content too short to trigger chunking")
	}

	s := NewSplitter(Config{Strategy: StrategySemantic, ChunkSize: 4096}, WithEmbedder(topicEmbedder{}))
	chunks, err := s.Split(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected a break at the topic shift, got %d chunks", len(chunks))
	}
}

func TestSemanticDegradesWithoutEmbedder(t *testing.T) {
	sentence := strings.Repeat("word ", 15) + "end."
	text := strings.Repeat(sentence+" ", 40)

	s := NewSplitter(Config{Strategy: StrategySemantic, ChunkSize: 100})
	chunks, err := s.Split(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("sentence fallback produced %d chunks", len(chunks))
	}
}
