package ranking

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aschepis/recall/intent"
	"github.com/aschepis/recall/memory"
)

// RankedMemory is a retrieval candidate after intent-aware scoring.
type RankedMemory struct {
	Item          *memory.MemoryItem
	SemanticScore float64
	FinalScore    float64
}

// Ranker reorders retrieval candidates for an intent using the static weight
// matrix, per-type time decay and the historical effectiveness boost.
type Ranker struct {
	logger zerolog.Logger
	now    func() time.Time
}

// NewRanker creates a ranker.
func NewRanker(logger zerolog.Logger) *Ranker {
	return &Ranker{
		logger: logger.With().Str("component", "ranker").Logger(),
		now:    time.Now,
	}
}

// Score computes the final score for one candidate.
func (r *Ranker) Score(item *memory.MemoryItem, semanticScore float64, in intent.Intent) float64 {
	ageDays := r.now().Sub(item.CreatedAt).Hours() / 24
	return semanticScore *
		TypeWeight(item.Type, in) *
		BaseIntentWeight(in) *
		TimeDecay(item.Type, ageDays) *
		EffectivenessBoost(item.PositiveOutcomes, item.NegativeOutcomes)
}

// Rank scores every candidate and returns them ordered best-first. Ties
// break toward the more recently created item.
func (r *Ranker) Rank(results []memory.SearchResult, in intent.Intent) []RankedMemory {
	ranked := lo.Map(results, func(res memory.SearchResult, _ int) RankedMemory {
		return RankedMemory{
			Item:          res.Item,
			SemanticScore: res.Score,
			FinalScore:    r.Score(res.Item, res.Score, in),
		}
	})

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].FinalScore == ranked[j].FinalScore {
			return ranked[i].Item.CreatedAt.After(ranked[j].Item.CreatedAt)
		}
		return ranked[i].FinalScore > ranked[j].FinalScore
	})

	if len(ranked) > 0 {
		r.logger.Debug().
			Str("intent", string(in)).
			Int("candidates", len(ranked)).
			Float64("top_score", ranked[0].FinalScore).
			Msg("candidates ranked")
	}
	return ranked
}
