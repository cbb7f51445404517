package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/recall/memory"
	"github.com/aschepis/recall/ranking"
)

func ranked(items ...*memory.MemoryItem) []ranking.RankedMemory {
	out := make([]ranking.RankedMemory, len(items))
	for i, it := range items {
		out[i] = ranking.RankedMemory{Item: it, FinalScore: 1.0}
	}
	return out
}

func TestTokenOverlap_FlagsDecisionVsHypothesis(t *testing.T) {
	d := NewTokenOverlap(zerolog.Nop())

	decision := &memory.MemoryItem{
		ID:        1,
		Type:      memory.MemoryTypeDecision,
		Content:   "we will host the database on managed postgres",
		CreatedAt: time.Now(),
	}
	hypothesis := &memory.MemoryItem{
		ID:        2,
		Type:      memory.MemoryTypeHypothesis,
		Content:   "self-hosting the postgres database might be cheaper than managed",
		CreatedAt: time.Now(),
	}

	conflicts := d.Detect(context.Background(), ranked(decision, hypothesis))
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	c := conflicts[0]
	if c.MemoryAID != decision.ID || c.MemoryBID != hypothesis.ID {
		t.Fatalf("conflict references wrong memories: %+v", c)
	}
	if c.Type != TypeDecisionVsHypothesis {
		t.Fatalf("unexpected conflict type %q", c.Type)
	}
	if c.Confidence != 0.7 {
		t.Fatalf("unexpected confidence %v", c.Confidence)
	}
}

func TestTokenOverlap_BelowThresholdIgnored(t *testing.T) {
	d := NewTokenOverlap(zerolog.Nop())

	decision := &memory.MemoryItem{
		ID:      1,
		Type:    memory.MemoryTypeDecision,
		Content: "we will host the database on managed postgres",
	}
	hypothesis := &memory.MemoryItem{
		ID:      2,
		Type:    memory.MemoryTypeHypothesis,
		Content: "maybe the team prefers remote standups on mondays",
	}

	if got := d.Detect(context.Background(), ranked(decision, hypothesis)); len(got) != 0 {
		t.Fatalf("expected no conflicts below the overlap threshold, got %d", len(got))
	}
}

func TestTokenOverlap_OnlyDecisionHypothesisPairs(t *testing.T) {
	d := NewTokenOverlap(zerolog.Nop())

	// Two facts sharing many tokens are not a conflict.
	factA := &memory.MemoryItem{ID: 1, Type: memory.MemoryTypeFact, Content: "the postgres database runs on managed hosting"}
	factB := &memory.MemoryItem{ID: 2, Type: memory.MemoryTypeFact, Content: "managed postgres database hosting costs money"}

	if got := d.Detect(context.Background(), ranked(factA, factB)); len(got) != 0 {
		t.Fatalf("expected no conflicts between facts, got %d", len(got))
	}

	if got := d.Detect(context.Background(), nil); got != nil {
		t.Fatal("expected nil for empty candidate set")
	}
}

func TestNormalizeTokens(t *testing.T) {
	tokens := normalizeTokens("The database, IS (very) fast!")
	if _, ok := tokens["database"]; !ok {
		t.Fatal("expected punctuation-stripped lowercase token")
	}
	if _, ok := tokens["the"]; ok {
		t.Fatal("stopwords must be dropped")
	}
	if _, ok := tokens["is"]; ok {
		t.Fatal("short tokens must be dropped")
	}
}
