// Package chunk splits long memory content into overlapping chunks for
// storage and embedding.
//
// Short content is stored whole; only content at or beyond the
// needs-chunking threshold is split. Two strategies exist: sentence-based
// (token budget per chunk) and semantic (breaks at topic shifts detected
// by embedding similarity). The semantic strategy degrades to sentence
// splitting when no embedder is available.
package chunk

import (
	"strings"
)

// Strategy selects how content is split.
type Strategy string

const (
	// StrategySentence groups sentences up to a token budget.
	StrategySentence Strategy = "sentence"

	// StrategySemantic breaks at embedding-similarity drops between
	// adjacent sentences, falling back to the token budget.
	StrategySemantic Strategy = "semantic"
)

// Defaults for Config.
const (
	// DefaultChunkSize is the token budget per chunk.
	DefaultChunkSize = 1024

	// DefaultOverlap is the token overlap carried between chunks.
	DefaultOverlap = 128

	// DefaultMinChunkLength is the needs-chunking threshold in
	// characters. Content below this length is stored as a single
	// record and never split.
	DefaultMinChunkLength = 1000

	// DefaultMinSentences is the minimum sentences per chunk.
	DefaultMinSentences = 2

	// DefaultSimilarityThreshold is the semantic-break threshold:
	// adjacent sentences less similar than this start a new chunk.
	DefaultSimilarityThreshold = 0.7
)

// Config controls splitting behavior.
type Config struct {
	Strategy            Strategy
	ChunkSize           int
	Overlap             int
	MinChunkLength      int
	MinSentences        int
	SimilarityThreshold float64
}

// DefaultConfig returns the standard chunking configuration.
func DefaultConfig() Config {
	return Config{
		Strategy:            StrategySemantic,
		ChunkSize:           DefaultChunkSize,
		Overlap:             DefaultOverlap,
		MinChunkLength:      DefaultMinChunkLength,
		MinSentences:        DefaultMinSentences,
		SimilarityThreshold: DefaultSimilarityThreshold,
	}
}

// NeedsChunking reports whether text is long enough to split.
func (c Config) NeedsChunking(text string) bool {
	return len(text) >= c.MinChunkLength
}

// Chunk is one piece of split content.
type Chunk struct {
	// Text is the chunk content, including any overlap prefix.
	Text string `json:"text"`

	// Position is the zero-based chunk index within the parent memory.
	Position int `json:"position"`

	// TokenCount is the estimated token count of Text.
	TokenCount int `json:"token_count"`
}

// EstimateTokens approximates the token count of text.
// English averages about 0.75 words per token.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(float64(words) / 0.75)
}

// SplitSentences splits text into sentences on terminal punctuation.
// The punctuation stays attached to its sentence.
func SplitSentences(text string) []string {
	var (
		sentences []string
		sb        strings.Builder
	)
	for _, r := range text {
		sb.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(sb.String()); s != "" {
				sentences = append(sentences, s)
			}
			sb.Reset()
		}
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
