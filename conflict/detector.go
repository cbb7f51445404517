package conflict

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aschepis/recall/memory"
	"github.com/aschepis/recall/ranking"
)

// Conflict flags two surfaced memories that plausibly contradict each other.
// Records are ephemeral, computed per request and never persisted.
type Conflict struct {
	MemoryAID  int64
	MemoryBID  int64
	Type       string
	Confidence float64
}

// TypeDecisionVsHypothesis marks a confirmed decision overlapping an
// unconfirmed hypothesis on the same subject.
const TypeDecisionVsHypothesis = "decision_vs_hypothesis"

// Detector finds contradictions within a ranked candidate set. Failures must
// degrade to "no conflicts found", never abort assembly.
//
// The token-overlap implementation below is a stand-in for an
// embedding-similarity check; the interface exists so that swap can happen
// without touching the pipeline.
type Detector interface {
	Detect(ctx context.Context, ranked []ranking.RankedMemory) []Conflict
}

// TokenOverlap flags (decision, hypothesis) pairs whose contents share at
// least minSharedTokens normalized tokens.
type TokenOverlap struct {
	logger zerolog.Logger
}

// NewTokenOverlap creates the default detector.
func NewTokenOverlap(logger zerolog.Logger) *TokenOverlap {
	return &TokenOverlap{
		logger: logger.With().Str("component", "conflict_detector").Logger(),
	}
}

const (
	minSharedTokens   = 3
	overlapConfidence = 0.7
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"was": {}, "are": {}, "not": {}, "but": {}, "have": {}, "has": {},
	"will": {}, "would": {}, "should": {}, "could": {}, "from": {},
	"about": {}, "into": {}, "when": {}, "what": {}, "because": {},
}

// Detect runs the pairwise check. The candidate set is bounded by the
// retrieval limit, so quadratic cost is fine.
func (d *TokenOverlap) Detect(_ context.Context, ranked []ranking.RankedMemory) []Conflict {
	var decisions, hypotheses []*memory.MemoryItem
	for _, rm := range ranked {
		switch rm.Item.Type {
		case memory.MemoryTypeDecision:
			decisions = append(decisions, rm.Item)
		case memory.MemoryTypeHypothesis:
			hypotheses = append(hypotheses, rm.Item)
		}
	}
	if len(decisions) == 0 || len(hypotheses) == 0 {
		return nil
	}

	var conflicts []Conflict
	for _, dec := range decisions {
		decTokens := normalizeTokens(dec.Content)
		for _, hyp := range hypotheses {
			shared := countShared(decTokens, normalizeTokens(hyp.Content))
			if shared >= minSharedTokens {
				conflicts = append(conflicts, Conflict{
					MemoryAID:  dec.ID,
					MemoryBID:  hyp.ID,
					Type:       TypeDecisionVsHypothesis,
					Confidence: overlapConfidence,
				})
			}
		}
	}

	if len(conflicts) > 0 {
		d.logger.Debug().Int("conflicts", len(conflicts)).Msg("contradictions flagged")
	}
	return conflicts
}

// normalizeTokens lowercases, strips punctuation and drops stopwords and
// tokens shorter than 3 characters.
func normalizeTokens(content string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(content)) {
		token := strings.Trim(field, ".,;:!?\"'()[]{}")
		if len(token) < 3 {
			continue
		}
		if _, ok := stopwords[token]; ok {
			continue
		}
		tokens[token] = struct{}{}
	}
	return tokens
}

func countShared(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	count := 0
	for token := range a {
		if _, ok := b[token]; ok {
			count++
		}
	}
	return count
}
