package chunk

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ontomem/omc/pkg/embed"
)

// ErrEmptyInput is returned when there is no text to chunk.
var ErrEmptyInput = errors.New("chunk: empty input")

// Splitter turns long content into chunks according to a Config.
type Splitter struct {
	cfg      Config
	embedder embed.Embedder
	logger   *slog.Logger
}

// SplitterOption configures a Splitter.
type SplitterOption func(*Splitter)

// WithEmbedder enables the semantic strategy. Without it, semantic
// splitting degrades to sentence splitting.
func WithEmbedder(e embed.Embedder) SplitterOption {
	return func(s *Splitter) { s.embedder = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SplitterOption {
	return func(s *Splitter) { s.logger = l }
}

// NewSplitter creates a splitter. Zero config fields take defaults.
func NewSplitter(cfg Config, opts ...SplitterOption) *Splitter {
	def := DefaultConfig()
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.Overlap == 0 {
		cfg.Overlap = def.Overlap
	}
	if cfg.MinChunkLength == 0 {
		cfg.MinChunkLength = def.MinChunkLength
	}
	if cfg.MinSentences == 0 {
		cfg.MinSentences = def.MinSentences
	}
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	s := &Splitter{cfg: cfg, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "chunk")
	return s
}

// Config returns the effective configuration.
func (s *Splitter) Config() Config { return s.cfg }

// Split chunks text. Content below the needs-chunking threshold comes
// back as a single chunk at position 0.
func (s *Splitter) Split(ctx context.Context, text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	if !s.cfg.NeedsChunking(text) {
		return []Chunk{{Text: text, Position: 0, TokenCount: EstimateTokens(text)}}, nil
	}

	sentences := SplitSentences(text)
	if len(sentences) <= s.cfg.MinSentences {
		return []Chunk{{Text: text, Position: 0, TokenCount: EstimateTokens(text)}}, nil
	}

	if s.cfg.Strategy == StrategySemantic && s.embedder != nil {
		chunks, err := s.splitSemantic(ctx, sentences)
		if err != nil {
			s.logger.Warn("semantic split failed, using sentence split", "err", err)
			return s.splitSentenceBased(sentences), nil
		}
		return chunks, nil
	}
	return s.splitSentenceBased(sentences), nil
}

// splitSentenceBased groups sentences into chunks bounded by the token
// budget, carrying an overlap tail into each following chunk.
func (s *Splitter) splitSentenceBased(sentences []string) []Chunk {
	var (
		chunks  []Chunk
		current []string
		tokens  int
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, " ")
		chunks = append(chunks, Chunk{
			Text:       text,
			Position:   len(chunks),
			TokenCount: EstimateTokens(text),
		})
		current = current[:0]
		tokens = 0
	}

	for _, sentence := range sentences {
		st := EstimateTokens(sentence)
		if tokens+st > s.cfg.ChunkSize && len(current) >= s.cfg.MinSentences {
			tail := overlapTail(strings.Join(current, " "), s.cfg.Overlap)
			flush()
			if tail != "" {
				current = append(current, tail)
				tokens = EstimateTokens(tail)
			}
		}
		current = append(current, sentence)
		tokens += st
	}
	flush()
	return chunks
}

// splitSemantic starts a new chunk when adjacent sentences drop below the
// similarity threshold, still honoring the token budget and minimum
// sentence count.
func (s *Splitter) splitSemantic(ctx context.Context, sentences []string) ([]Chunk, error) {
	vecs, err := s.embedder.EmbedBatch(ctx, sentences)
	if err != nil {
		return nil, err
	}

	var (
		chunks  []Chunk
		current []string
		tokens  int
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, " ")
		chunks = append(chunks, Chunk{
			Text:       text,
			Position:   len(chunks),
			TokenCount: EstimateTokens(text),
		})
		current = current[:0]
		tokens = 0
	}

	for i, sentence := range sentences {
		st := EstimateTokens(sentence)
		semanticBreak := i > 0 && embed.Cosine(vecs[i-1], vecs[i]) < s.cfg.SimilarityThreshold
		overBudget := tokens+st > s.cfg.ChunkSize
		if (semanticBreak || overBudget) && len(current) >= s.cfg.MinSentences {
			tail := overlapTail(strings.Join(current, " "), s.cfg.Overlap)
			flush()
			if tail != "" {
				current = append(current, tail)
				tokens = EstimateTokens(tail)
			}
		}
		current = append(current, sentence)
		tokens += st
	}
	flush()
	return chunks, nil
}

// overlapTail returns the last overlapTokens worth of text, approximated
// as 4 characters per token, cut at a word boundary.
func overlapTail(text string, overlapTokens int) string {
	if overlapTokens <= 0 {
		return ""
	}
	chars := overlapTokens * 4
	if len(text) <= chars {
		return text
	}
	tail := text[len(text)-chars:]
	if idx := strings.IndexByte(tail, ' '); idx >= 0 && idx+1 < len(tail) {
		tail = tail[idx+1:]
	}
	return tail
}
