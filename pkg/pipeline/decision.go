package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/ontomem/omc/pkg/llm"
)

// Operation is the action the decision engine picks for a new memory.
type Operation string

const (
	OpAdd        Operation = "ADD"
	OpUpdate     Operation = "UPDATE"
	OpDelete     Operation = "DELETE"
	OpNoop       Operation = "NOOP"
	OpSupersede  Operation = "SUPERSEDE"
	OpContradict Operation = "CONTRADICT"
)

// Decision is the engine's verdict on one new memory.
type Decision struct {
	Operation          Operation   `json:"operation"`
	TargetMemoryID     string      `json:"target_memory_id,omitempty"`
	Confidence         int         `json:"confidence"`
	Reasoning          string      `json:"reasoning"`
	MergedContent      string      `json:"merged_content,omitempty"`
	SupersedesMemoryID string      `json:"supersedes_memory_id,omitempty"`
	ContradictsID      string      `json:"contradicts_memory_id,omitempty"`
	RelatesTo          [][2]string `json:"relates_to,omitempty"`
}

func addDecision(confidence int, reasoning string) Decision {
	return Decision{Operation: OpAdd, Confidence: confidence, Reasoning: reasoning}
}

// SimilarMemory is one vector-search candidate for the decision.
type SimilarMemory struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	CreatedAt string  `json:"created_at,omitempty"`
}

const decisionSystemPrompt = `You are a memory management expert. Analyze the new memory and similar existing memories to decide what operation to perform.

Your goal is to:
1. Prevent duplicate information
2. Keep memory coherent and up-to-date
3. Resolve conflicts (prefer newer information)
4. Maintain information quality

Always respond with valid JSON.`

// DefaultSimilarityThreshold gates which candidates reach the LLM.
const DefaultSimilarityThreshold = 0.92

// decisionWire mirrors Decision for schema generation: the schema is
// derived from this shape and raw model output is validated against it
// before decoding.
type decisionWire struct {
	Operation          string `json:"operation"`
	TargetMemoryID     string `json:"target_memory_id,omitempty"`
	Confidence         int    `json:"confidence"`
	Reasoning          string `json:"reasoning"`
	MergedContent      string `json:"merged_content,omitempty"`
	SupersedesMemoryID string `json:"supersedes_memory_id,omitempty"`
	ContradictsID      string `json:"contradicts_memory_id,omitempty"`
}

var (
	decisionSchemaOnce sync.Once
	decisionSchema     *jsonschema.Resolved
)

func resolvedDecisionSchema() *jsonschema.Resolved {
	decisionSchemaOnce.Do(func() {
		schema, err := jsonschema.For[decisionWire](nil)
		if err != nil {
			return
		}
		schema.AdditionalProperties = &jsonschema.Schema{}
		resolved, err := schema.Resolve(nil)
		if err != nil {
			return
		}
		decisionSchema = resolved
	})
	return decisionSchema
}

// DecisionEngine reconciles a new memory against similar existing ones.
//
// It never returns an error: every failure mode (LLM down, malformed
// output, schema violation) degrades to an ADD with reduced confidence
// so information is stored rather than lost.
type DecisionEngine struct {
	provider  llm.Provider
	threshold float64
	logger    *slog.Logger
}

// NewDecisionEngine creates a decision engine on the given provider.
func NewDecisionEngine(provider llm.Provider, logger *slog.Logger) *DecisionEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &DecisionEngine{
		provider:  provider,
		threshold: DefaultSimilarityThreshold,
		logger:    logger.With("component", "decision"),
	}
}

// WithThreshold overrides the duplicate-similarity threshold.
func (d *DecisionEngine) WithThreshold(t float64) *DecisionEngine {
	d.threshold = t
	return d
}

// Decide picks the operation for newMemory given its similar candidates.
func (d *DecisionEngine) Decide(ctx context.Context, newMemory string, similar []SimilarMemory, userID string) Decision {
	if len(similar) == 0 {
		return addDecision(100, "No similar memories found, adding as new.")
	}

	var highlySimilar []SimilarMemory
	for _, s := range similar {
		if s.Score >= d.threshold {
			highlySimilar = append(highlySimilar, s)
		}
	}
	if len(highlySimilar) == 0 {
		return addDecision(95, fmt.Sprintf(
			"No memories above %g similarity threshold, adding as new.", d.threshold))
	}

	prompt := buildDecisionPrompt(newMemory, highlySimilar, userID)
	response, _, err := d.provider.Generate(ctx, decisionSystemPrompt, prompt, llm.WithJSONMode())
	if err != nil {
		d.logger.Warn("decision LLM call failed", "err", err)
		return addDecision(50, fmt.Sprintf("LLM call failed (%v), defaulting to ADD.", err))
	}

	decision, err := parseDecision(response)
	if err != nil {
		d.logger.Warn("decision parse failed", "err", err)
		return addDecision(50, fmt.Sprintf("JSON parse failed (%v), defaulting to ADD.", err))
	}

	d.logger.Info("decision made",
		"operation", decision.Operation,
		"confidence", decision.Confidence,
		"target", decision.TargetMemoryID)
	return decision
}

// parseDecision repairs, schema-validates, and decodes model output.
func parseDecision(response string) (Decision, error) {
	var raw map[string]any
	if err := decodeLLMJSON(response, &raw); err != nil {
		return Decision{}, err
	}
	if schema := resolvedDecisionSchema(); schema != nil {
		if err := schema.Validate(raw); err != nil {
			return Decision{}, fmt.Errorf("schema violation: %w", err)
		}
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return Decision{}, err
	}
	var decision Decision
	if err := json.Unmarshal(data, &decision); err != nil {
		return Decision{}, err
	}

	switch decision.Operation {
	case OpAdd, OpUpdate, OpDelete, OpNoop, OpSupersede, OpContradict:
	default:
		return Decision{}, fmt.Errorf("unknown operation %q", decision.Operation)
	}
	return decision, nil
}

func buildDecisionPrompt(newMemory string, similar []SimilarMemory, userID string) string {
	var sb strings.Builder
	for _, m := range similar {
		created := m.CreatedAt
		if created == "" {
			created = "unknown"
		}
		fmt.Fprintf(&sb, "  ID: %s\n  Content: %s\n  Similarity: %.2f\n  Created: %s\n\n",
			m.ID, m.Content, m.Score, created)
	}

	return fmt.Sprintf(`Analyze this new memory and decide what operation to perform.

**New Memory:**
%q

**Similar Existing Memories:**
%s
**User ID:** %s

**Your Task:**
Decide what to do with the new memory. Choose ONE operation:

1. **ADD** - Add as completely new memory
   - Use when: Information is new and different

2. **UPDATE** - Update existing memory with new information
   - Use when: New memory enhances or extends existing one
   - Provide `+"`merged_content`"+` combining both memories

3. **DELETE** - Delete existing conflicting memory
   - Use when: New memory is correct and old one is wrong
   - Specify which memory to delete via `+"`target_memory_id`"+`

4. **NOOP** - Ignore (duplicate or redundant)
   - Use when: Information already exists

5. **SUPERSEDE** - Replace old memory with evolved version
   - Use when: Preference/opinion changed over time
   - Set `+"`supersedes_memory_id`"+` to old memory ID

6. **CONTRADICT** - Mark logical conflict between memories
   - Use when: Two memories contradict but both might be valid
   - Set `+"`contradicts_memory_id`"+` to conflicting memory ID

**Response Format (JSON):**
{
  "operation": "ADD|UPDATE|DELETE|NOOP|SUPERSEDE|CONTRADICT",
  "target_memory_id": "mem_xxx" or null,
  "confidence": 0-100,
  "reasoning": "Why you made this decision",
  "merged_content": "New combined content" or null,
  "supersedes_memory_id": "mem_xxx" or null,
  "contradicts_memory_id": "mem_xxx" or null
}

**Important:**
- SUPERSEDE for temporal evolution, UPDATE for adding details
- CONTRADICT keeps both, DELETE removes one
- Be conservative with DELETE
- Use NOOP to avoid duplicates`, newMemory, sb.String(), userID)
}
