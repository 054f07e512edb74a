package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kaptinlin/jsonrepair"

	"github.com/ontomem/omc/pkg/llm"
)

// ExtractedMemory is one atomic fact pulled out of raw text.
type ExtractedMemory struct {
	Text       string   `json:"text"`
	MemoryType string   `json:"memory_type"`
	Certainty  int      `json:"certainty"`
	Importance int      `json:"importance"`
	Entities   []string `json:"entities"`
}

// ExtractedEntity is one entity mentioned in the text.
type ExtractedEntity struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EntityType string `json:"type"`
}

// ExtractedRelation links two extracted memories by their exact text.
type ExtractedRelation struct {
	FromMemoryContent string `json:"from_memory_content"`
	ToMemoryContent   string `json:"to_memory_content"`
	RelationType      string `json:"relation_type"`
	Strength          int    `json:"strength"`
	Confidence        int    `json:"confidence"`
	Explanation       string `json:"explanation"`
}

// ExtractionResult is the structured output of one extraction call.
type ExtractionResult struct {
	Memories  []ExtractedMemory   `json:"memories"`
	Entities  []ExtractedEntity   `json:"entities"`
	Relations []ExtractedRelation `json:"relations"`
}

const extractorPromptHead = `You are a memory extraction system. Analyze the text and extract structured information.

Output JSON with this structure:
{
  "memories": [
    {
      "text": "atomic fact or preference",
      "memory_type": "fact|preference|goal|opinion|experience",
      "certainty": 80,
      "importance": 50,
      "entities": ["entity_id1", "entity_id2"]
    }
  ]`

const extractorPromptEntities = `,
  "entities": [
    {
      "id": "unique_id",
      "name": "Entity Name",
      "type": "person|organization|location|concept|system"
    }
  ]`

const extractorPromptRelations = `,
  "relations": [
    {
      "from_memory_content": "FULL content of source memory - must match a memory text exactly",
      "to_memory_content": "FULL content of target memory - must match a memory text exactly",
      "relation_type": "IMPLIES|BECAUSE|CONTRADICTS|SUPPORTS",
      "strength": 80,
      "confidence": 80,
      "explanation": "Why this relation exists"
    }
  ]

CRITICAL for relations: Both from_memory_content and to_memory_content MUST be the EXACT FULL TEXT of memories from the 'memories' array above. If you cannot match exactly, skip the relation.`

const extractorPromptTail = "\n}\n\nExtract atomic, standalone facts. Each memory should be self-contained."

// Extractor turns raw text into structured memories through an LLM.
type Extractor struct {
	provider llm.Provider
	logger   *slog.Logger
}

// NewExtractor creates an extractor on the given provider.
func NewExtractor(provider llm.Provider, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{provider: provider, logger: logger.With("component", "extractor")}
}

// Extract pulls memories, and optionally entities and relations, out of
// text. Relations default to strength and confidence 80. An unparseable
// model response degrades to an empty result, never an error: the write
// path runs without structured extraction.
func (e *Extractor) Extract(ctx context.Context, text string, extractEntities, extractRelations bool) (*ExtractionResult, error) {
	system := buildExtractorPrompt(extractEntities, extractRelations)
	user := fmt.Sprintf("Extract information from this text:\n\n%s", text)

	response, _, err := e.provider.Generate(ctx, system, user, llm.WithJSONMode())
	if err != nil {
		return nil, fmt.Errorf("pipeline: extract: %w", err)
	}

	var result ExtractionResult
	if err := decodeLLMJSON(response, &result); err != nil {
		e.logger.Warn("extraction parse failed", "err", err)
		return &ExtractionResult{}, nil
	}

	for i := range result.Relations {
		if result.Relations[i].Strength == 0 {
			result.Relations[i].Strength = 80
		}
		if result.Relations[i].Confidence == 0 {
			result.Relations[i].Confidence = 80
		}
	}

	e.logger.Debug("extraction complete",
		"memories", len(result.Memories),
		"entities", len(result.Entities),
		"relations", len(result.Relations))
	return &result, nil
}

func buildExtractorPrompt(entities, relations bool) string {
	prompt := extractorPromptHead
	if entities {
		prompt += extractorPromptEntities
	} else {
		prompt += `,
  "entities": []`
	}
	if relations {
		prompt += extractorPromptRelations
	} else {
		prompt += `,
  "relations": []`
	}
	return prompt + extractorPromptTail
}

// decodeLLMJSON unmarshals model output, repairing malformed JSON on a
// syntax error before retrying.
func decodeLLMJSON(data string, v any) error {
	err := json.Unmarshal([]byte(data), v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, rerr := jsonrepair.JSONRepair(data)
		if rerr != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}
