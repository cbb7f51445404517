package assemble

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/recall/conflict"
	"github.com/aschepis/recall/conversations"
	"github.com/aschepis/recall/memory"
	"github.com/aschepis/recall/ranking"
	"github.com/aschepis/recall/state"
)

func strPtr(s string) *string { return &s }

func rankedItem(id int64, typ memory.MemoryType, content string, conf memory.ConfidenceLevel, score float64) ranking.RankedMemory {
	return ranking.RankedMemory{
		Item: &memory.MemoryItem{
			ID:         id,
			Type:       typ,
			Content:    content,
			Confidence: conf,
			CreatedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
			UsageCount: 4,
		},
		FinalScore: score,
	}
}

func TestAssemble_MinimalAlwaysHasTimeAndMessage(t *testing.T) {
	a := NewAssembler(zerolog.Nop())

	out := a.Assemble("hello", Settings{}, nil, nil, nil, nil)
	if !strings.Contains(out, "## Time context") {
		t.Fatal("time context section must always be present")
	}
	if !strings.Contains(out, "## Current message\nhello") {
		t.Fatal("current message section must always be present")
	}
	if strings.Contains(out, "## Conversation state") || strings.Contains(out, "## Recent turns") {
		t.Fatal("empty sections must be omitted")
	}
}

func TestAssemble_SectionOrder(t *testing.T) {
	a := NewAssembler(zerolog.Nop())

	st := &state.State{
		OwnerID:        "adam",
		ConversationID: "conv-1",
		Topic:          strPtr("storage layer"),
	}
	rankedSet := []ranking.RankedMemory{
		rankedItem(1, memory.MemoryTypeRule, "always run migrations in a transaction", memory.ConfidenceHigh, 1.5),
		rankedItem(2, memory.MemoryTypeFact, "postgres holds the orders data", memory.ConfidenceHigh, 1.2),
		rankedItem(3, memory.MemoryTypeDecision, "we will host the database on managed postgres", memory.ConfidenceMedium, 1.1),
		rankedItem(4, memory.MemoryTypeHypothesis, "self-hosting the postgres database might be cheaper", memory.ConfidenceLow, 0.9),
		rankedItem(5, memory.MemoryTypeReflection, "the last migration was rushed", memory.ConfidenceMedium, 0.8),
		rankedItem(6, memory.MemoryTypeInsight, "smaller batches migrate faster", memory.ConfidenceHigh, 0.7),
	}
	conflicts := []conflict.Conflict{
		{MemoryAID: 3, MemoryBID: 4, Type: conflict.TypeDecisionVsHypothesis, Confidence: 0.7},
	}
	turns := []conversations.Turn{
		{Role: "user", Content: "what did we pick for hosting?"},
	}

	out := a.Assemble("so which way do we go?", Settings{SystemRules: []string{"answer briefly"}}, st, rankedSet, turns, conflicts)

	sections := []string{
		"## Time context",
		"## Behavior rules",
		"## Conversation state",
		"## Rules & Principles",
		"## Relevant facts",
		"## Decisions & Tasks",
		"## Hypotheses (unconfirmed)",
		"## Reflections & Failures",
		"## Insights",
		"## Conflicts",
		"## Recent turns",
		"## Current message",
	}
	last := -1
	for _, section := range sections {
		idx := strings.Index(out, section)
		if idx < 0 {
			t.Fatalf("missing section %q in output:\n%s", section, out)
		}
		if idx < last {
			t.Fatalf("section %q appears out of order", section)
		}
		last = idx
	}
}

func TestAssemble_StatePrecedesRecentTurns(t *testing.T) {
	a := NewAssembler(zerolog.Nop())

	st := &state.State{OwnerID: "adam", ConversationID: "c", Topic: strPtr("t")}
	turns := []conversations.Turn{{Role: "user", Content: "earlier message"}}

	out := a.Assemble("now", Settings{}, st, nil, turns, nil)
	stateIdx := strings.Index(out, "## Conversation state")
	turnsIdx := strings.Index(out, "## Recent turns")
	if stateIdx < 0 || turnsIdx < 0 {
		t.Fatalf("expected both sections present:\n%s", out)
	}
	if stateIdx > turnsIdx {
		t.Fatal("conversation state must precede recent turns")
	}
}

func TestAssemble_StateRendersEntitiesAndObjects(t *testing.T) {
	a := NewAssembler(zerolog.Nop())

	st := &state.State{
		OwnerID:        "adam",
		ConversationID: "conv-1",
		ActiveEntities: []string{"postgres", "billing service"},
		ActiveObjects:  []string{"invoice-123"},
	}
	out := a.Assemble("msg", Settings{}, st, nil, nil, nil)
	if !strings.Contains(out, "Active entities: postgres, billing service") {
		t.Fatalf("active entities not rendered:\n%s", out)
	}
	if !strings.Contains(out, "Active objects: invoice-123") {
		t.Fatalf("active objects not rendered:\n%s", out)
	}
}

func TestAssemble_MemoryLineFormat(t *testing.T) {
	a := NewAssembler(zerolog.Nop())

	rm := rankedItem(7, memory.MemoryTypeFact, "the standup moved to 09:30", memory.ConfidenceHigh, 0.83)
	out := a.Assemble("msg", Settings{}, nil, []ranking.RankedMemory{rm}, nil, nil)

	want := "● [fact] the standup moved to 09:30 (created 2025-03-01, score 0.83, used 4x)"
	if !strings.Contains(out, want) {
		t.Fatalf("memory line %q not found in:\n%s", want, out)
	}
}

func TestAssemble_ConfidenceGlyphs(t *testing.T) {
	cases := []struct {
		conf  memory.ConfidenceLevel
		glyph string
	}{
		{memory.ConfidenceHigh, "●"},
		{memory.ConfidenceMedium, "◐"},
		{memory.ConfidenceLow, "○"},
		{memory.ConfidenceUnknown, "?"},
		{"", "?"},
	}
	for _, tc := range cases {
		if got := confidenceGlyph(tc.conf); got != tc.glyph {
			t.Errorf("glyph(%q) = %q, want %q", tc.conf, got, tc.glyph)
		}
	}
}

func TestAssemble_ConflictsNeverSuppressed(t *testing.T) {
	a := NewAssembler(zerolog.Nop())

	rankedSet := []ranking.RankedMemory{
		rankedItem(3, memory.MemoryTypeDecision, "host on managed postgres", memory.ConfidenceMedium, 1.1),
		rankedItem(4, memory.MemoryTypeHypothesis, "self-hosting might be cheaper", memory.ConfidenceLow, 0.9),
	}
	conflicts := []conflict.Conflict{
		{MemoryAID: 3, MemoryBID: 4, Type: conflict.TypeDecisionVsHypothesis, Confidence: 0.7},
	}

	out := a.Assemble("msg", Settings{}, nil, rankedSet, nil, conflicts)
	if !strings.Contains(out, "## Conflicts") {
		t.Fatal("conflicts section missing")
	}
	if !strings.Contains(out, "#3") || !strings.Contains(out, "#4") {
		t.Fatalf("conflict line must reference both memories:\n%s", out)
	}
	if !strings.Contains(out, "decision_vs_hypothesis") {
		t.Fatal("conflict line must carry the conflict type")
	}
}
