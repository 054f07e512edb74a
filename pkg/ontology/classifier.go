package ontology

import (
	"sort"
	"strings"
)

// keywordPatterns maps each concrete category to its trigger phrases.
// Scoring is matched/total, so longer lists demand more evidence.
var keywordPatterns = map[string][]string{
	"preference":  {"love", "like", "prefer", "enjoy", "favorite", "hate", "dislike"},
	"skill":       {"can", "know how", "able to", "expert", "proficient", "skilled"},
	"fact":        {"is", "are", "was", "were", "has", "have"},
	"goal":        {"want", "plan", "goal", "aim", "intend", "wish"},
	"opinion":     {"think", "believe", "feel", "opinion", "view"},
	"experience":  {"did", "went", "saw", "experienced", "happened"},
	"achievement": {"completed", "finished", "achieved", "accomplished", "built"},
}

// Classification is one scored category assignment.
type Classification struct {
	Concept    string  `json:"concept"`
	Confidence float64 `json:"confidence"`
}

// Classifier assigns concrete categories to memory text by keyword
// matching. Stateless and safe for concurrent use.
type Classifier struct {
	minConfidence float64
}

// NewClassifier creates a classifier that drops categories scoring below
// minConfidence.
func NewClassifier(minConfidence float64) *Classifier {
	return &Classifier{minConfidence: minConfidence}
}

// Classify scores every category against text and returns the survivors
// sorted by confidence, highest first.
func (c *Classifier) Classify(text string) []Classification {
	lower := strings.ToLower(text)

	var out []Classification
	for concept, keywords := range keywordPatterns {
		matched := 0
		for _, kw := range keywords {
			if containsWord(lower, kw) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := float64(matched) / float64(len(keywords))
		if score >= c.minConfidence {
			out = append(out, Classification{Concept: concept, Confidence: score})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Concept < out[j].Concept
	})
	return out
}

// containsWord matches kw against text at word boundaries so "is" doesn't
// fire inside "this". Multi-word phrases match as substrings.
func containsWord(text, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(text, kw)
	}
	start := 0
	for {
		idx := strings.Index(text[start:], kw)
		if idx < 0 {
			return false
		}
		idx += start
		leftOK := idx == 0 || !isWordByte(text[idx-1])
		end := idx + len(kw)
		rightOK := end == len(text) || !isWordByte(text[end])
		if leftOK && rightOK {
			return true
		}
		start = idx + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}
