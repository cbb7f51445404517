package ranking

import "github.com/aschepis/recall/memory"

// decayParams is the age curve for one memory type: score falls linearly by
// ratePerDay until it hits floor.
type decayParams struct {
	ratePerDay float64
	floor      float64
}

// decayTable is read-only after process start. Principles and rules are
// immune to age; emotions and failures fade fastest (about 70% gone after
// 90 days). Reflections, hypotheses and loose thoughts are roughly halved
// after 180 days. Facts and insights erode over decades, not months.
var decayTable = map[memory.MemoryType]decayParams{
	memory.MemoryTypePrinciple:  {ratePerDay: 0, floor: 1.0},
	memory.MemoryTypeRule:       {ratePerDay: 0, floor: 1.0},
	memory.MemoryTypeFact:       {ratePerDay: 0.00003, floor: 0.78},
	memory.MemoryTypeInsight:    {ratePerDay: 0.00003, floor: 0.78},
	memory.MemoryTypeDecision:   {ratePerDay: 0.0005, floor: 0.7},
	memory.MemoryTypeTask:       {ratePerDay: 0.0005, floor: 0.7},
	memory.MemoryTypeReflection: {ratePerDay: 0.0028, floor: 0.3},
	memory.MemoryTypeHypothesis: {ratePerDay: 0.0028, floor: 0.3},
	memory.MemoryTypeThought:    {ratePerDay: 0.0028, floor: 0.3},
	memory.MemoryTypeEmotion:    {ratePerDay: 0.0078, floor: 0.2},
	memory.MemoryTypeFailure:    {ratePerDay: 0.0078, floor: 0.2},
}

// TimeDecay returns the age multiplier for a memory type: 1.0 at age zero,
// non-increasing in age, never below the type's floor. Unknown types decay
// like thoughts.
func TimeDecay(t memory.MemoryType, ageDays float64) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	params, ok := decayTable[t]
	if !ok {
		params = decayTable[memory.MemoryTypeThought]
	}
	decayed := 1.0 - params.ratePerDay*ageDays
	if decayed < params.floor {
		return params.floor
	}
	return decayed
}

// EffectivenessBoost converts recorded outcomes of past recalls into a score
// multiplier. No recorded outcomes means neutral 1.0; otherwise the boost is
// 1 + 0.15 * (positive - negative) / (positive + negative), bounded to
// [0.85, 1.15].
func EffectivenessBoost(positive, negative int64) float64 {
	total := positive + negative
	if total <= 0 {
		return 1.0
	}
	boost := 1.0 + 0.15*float64(positive-negative)/float64(total)
	if boost < 0.85 {
		return 0.85
	}
	if boost > 1.15 {
		return 1.15
	}
	return boost
}
