package ranking

import (
	"github.com/aschepis/recall/intent"
	"github.com/aschepis/recall/memory"
)

// typeWeights maps (memory type, intent) to a relevance multiplier. The
// table is read-only after process start; an exhaustiveness test walks every
// pair so the closed type/intent sets and this matrix can't drift apart.
var typeWeights = map[memory.MemoryType]map[intent.Intent]float64{
	memory.MemoryTypeFact: {
		intent.DecisionRequest: 1.0,
		intent.Analysis:        1.2,
		intent.FactCheck:       2.0,
		intent.Planning:        1.0,
		intent.Reflection:      0.7,
		intent.KaizenReview:    0.8,
		intent.Casual:          1.0,
	},
	memory.MemoryTypeDecision: {
		intent.DecisionRequest: 1.1,
		intent.Analysis:        1.0,
		intent.FactCheck:       1.1,
		intent.Planning:        1.2,
		intent.Reflection:      0.8,
		intent.KaizenReview:    1.1,
		intent.Casual:          0.8,
	},
	memory.MemoryTypePrinciple: {
		intent.DecisionRequest: 1.3,
		intent.Analysis:        1.1,
		intent.FactCheck:       0.9,
		intent.Planning:        1.1,
		intent.Reflection:      0.9,
		intent.KaizenReview:    1.0,
		intent.Casual:          0.7,
	},
	memory.MemoryTypeRule: {
		intent.DecisionRequest: 1.3,
		intent.Analysis:        1.0,
		intent.FactCheck:       1.0,
		intent.Planning:        1.1,
		intent.Reflection:      0.5,
		intent.KaizenReview:    0.9,
		intent.Casual:          0.7,
	},
	memory.MemoryTypeHypothesis: {
		intent.DecisionRequest: 0.6,
		intent.Analysis:        1.2,
		intent.FactCheck:       0.2,
		intent.Planning:        0.8,
		intent.Reflection:      0.9,
		intent.KaizenReview:    0.8,
		intent.Casual:          0.7,
	},
	memory.MemoryTypeReflection: {
		intent.DecisionRequest: 0.5,
		intent.Analysis:        0.9,
		intent.FactCheck:       0.4,
		intent.Planning:        0.6,
		intent.Reflection:      1.4,
		intent.KaizenReview:    1.2,
		intent.Casual:          0.9,
	},
	memory.MemoryTypeEmotion: {
		intent.DecisionRequest: 0.2,
		intent.Analysis:        0.5,
		intent.FactCheck:       0.3,
		intent.Planning:        0.4,
		intent.Reflection:      1.3,
		intent.KaizenReview:    0.6,
		intent.Casual:          1.0,
	},
	memory.MemoryTypeFailure: {
		intent.DecisionRequest: 0.9,
		intent.Analysis:        0.9,
		intent.FactCheck:       0.7,
		intent.Planning:        0.9,
		intent.Reflection:      1.2,
		intent.KaizenReview:    1.4,
		intent.Casual:          0.7,
	},
	memory.MemoryTypeTask: {
		intent.DecisionRequest: 0.8,
		intent.Analysis:        0.7,
		intent.FactCheck:       0.8,
		intent.Planning:        1.4,
		intent.Reflection:      0.5,
		intent.KaizenReview:    1.0,
		intent.Casual:          0.8,
	},
	memory.MemoryTypeInsight: {
		intent.DecisionRequest: 1.0,
		intent.Analysis:        1.3,
		intent.FactCheck:       0.9,
		intent.Planning:        1.0,
		intent.Reflection:      1.3,
		intent.KaizenReview:    1.2,
		intent.Casual:          0.9,
	},
	memory.MemoryTypeThought: {
		intent.DecisionRequest: 0.6,
		intent.Analysis:        0.9,
		intent.FactCheck:       0.5,
		intent.Planning:        0.7,
		intent.Reflection:      1.1,
		intent.KaizenReview:    0.7,
		intent.Casual:          1.0,
	},
}

// baseIntentWeights scale the whole result set by how much retrieved memory
// matters for the intent at all: decision support leans hard on memory,
// casual chat barely does.
var baseIntentWeights = map[intent.Intent]float64{
	intent.DecisionRequest: 1.2,
	intent.FactCheck:       1.1,
	intent.Planning:        1.1,
	intent.Analysis:        1.0,
	intent.KaizenReview:    1.0,
	intent.Reflection:      0.9,
	intent.Casual:          0.8,
}

// TypeWeight returns the (type, intent) multiplier, neutral 1.0 for any
// unknown pair.
func TypeWeight(t memory.MemoryType, in intent.Intent) float64 {
	row, ok := typeWeights[t]
	if !ok {
		return 1.0
	}
	w, ok := row[in]
	if !ok {
		return 1.0
	}
	return w
}

// BaseIntentWeight returns the intent-level multiplier, neutral 1.0 for an
// unknown intent.
func BaseIntentWeight(in intent.Intent) float64 {
	w, ok := baseIntentWeights[in]
	if !ok {
		return 1.0
	}
	return w
}
