package search

import "strings"

// Mode selects a search cost/recall tradeoff.
type Mode string

const (
	// ModeRecent favors the last few hours with a shallow graph hop.
	ModeRecent Mode = "recent"

	// ModeContextual balances a month of history with moderate expansion.
	ModeContextual Mode = "contextual"

	// ModeDeep reaches back a quarter with extensive expansion.
	ModeDeep Mode = "deep"

	// ModeFull scans the complete history without smart traversal.
	ModeFull Mode = "full"
)

// ParseMode maps a string to a Mode, defaulting to recent.
func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "contextual":
		return ModeContextual
	case "deep":
		return ModeDeep
	case "full":
		return ModeFull
	default:
		return ModeRecent
	}
}

// ModeDefaults are the fixed parameters behind a mode.
type ModeDefaults struct {
	MaxResults        int
	GraphDepth        int
	TemporalDays      float64 // 0 = unbounded
	VectorWeight      float64
	TextWeight        float64
	UseSmartTraversal bool
	VectorTopK        int
	MinVectorScore    float64
	MinCombinedScore  float64
}

// Defaults returns the parameter set for the mode.
func (m Mode) Defaults() ModeDefaults {
	switch m {
	case ModeContextual:
		return ModeDefaults{
			MaxResults:        20,
			GraphDepth:        2,
			TemporalDays:      30,
			VectorWeight:      0.6,
			TextWeight:        0.4,
			UseSmartTraversal: true,
			VectorTopK:        10,
			MinVectorScore:    0.5,
			MinCombinedScore:  0.3,
		}
	case ModeDeep:
		return ModeDefaults{
			MaxResults:        50,
			GraphDepth:        3,
			TemporalDays:      90,
			VectorWeight:      0.5,
			TextWeight:        0.5,
			UseSmartTraversal: true,
			VectorTopK:        15,
			MinVectorScore:    0.4,
			MinCombinedScore:  0.25,
		}
	case ModeFull:
		return ModeDefaults{
			MaxResults:        100,
			GraphDepth:        4,
			VectorWeight:      0.5,
			TextWeight:        0.5,
			UseSmartTraversal: false,
		}
	default: // recent: four hours of history, nearest neighbors only
		return ModeDefaults{
			MaxResults:        10,
			GraphDepth:        1,
			TemporalDays:      0.167,
			VectorWeight:      0.7,
			TextWeight:        0.3,
			UseSmartTraversal: true,
			VectorTopK:        5,
			MinVectorScore:    0.6,
			MinCombinedScore:  0.4,
		}
	}
}

// Description is a short human-readable summary of the mode.
func (m Mode) Description() string {
	switch m {
	case ModeContextual:
		return "Balanced search (30 days) + moderate graph"
	case ModeDeep:
		return "Deep search (90 days) + extensive graph"
	case ModeFull:
		return "Complete history + full graph traversal"
	default:
		return "Fast recent memories (4 hours) + nearest graph"
	}
}
