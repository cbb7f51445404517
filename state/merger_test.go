package state

import (
	"testing"
	"time"

	"github.com/aschepis/recall/memory"
)

func TestApplyMerge_KeepsFieldsWithoutEvidence(t *testing.T) {
	prev := NewState("adam", "conv-1")
	prev.Topic = strPtr("apartment search")
	prev.Goal = strPtr("sign a lease by march")
	prev.ActiveEntities = []string{"Kreuzberg"}
	prev.OpenQuestions = []string{"is the deposit negotiable?"}

	next := applyMerge(prev, &mergePayload{}, time.Now())

	if next.Topic == nil || *next.Topic != "apartment search" {
		t.Fatal("topic must survive an empty merge payload")
	}
	if next.Goal == nil || *next.Goal != "sign a lease by march" {
		t.Fatal("goal must survive an empty merge payload")
	}
	if len(next.ActiveEntities) != 1 || len(next.OpenQuestions) != 1 {
		t.Fatal("lists must survive an empty merge payload")
	}
}

func TestApplyMerge_WhitespaceNeverClears(t *testing.T) {
	prev := NewState("adam", "conv-1")
	prev.Topic = strPtr("apartment search")

	next := applyMerge(prev, &mergePayload{Topic: strPtr("   ")}, time.Now())
	if next.Topic == nil || *next.Topic != "apartment search" {
		t.Fatal("whitespace-only replacement must not clear a field")
	}
}

func TestApplyMerge_UpdatesWithEvidence(t *testing.T) {
	prev := NewState("adam", "conv-1")
	prev.Topic = strPtr("apartment search")
	prev.ActiveEntities = []string{"Kreuzberg"}

	next := applyMerge(prev, &mergePayload{
		Topic:          strPtr("lease negotiation"),
		CurrentStep:    strPtr("reviewing the contract"),
		ActiveEntities: []string{"Mitte", "mitte", " Kreuzberg "},
		Confidence:     "high",
	}, time.Now())

	if *next.Topic != "lease negotiation" {
		t.Fatalf("topic not updated: %q", *next.Topic)
	}
	if next.CurrentStep == nil || *next.CurrentStep != "reviewing the contract" {
		t.Fatal("current step not set")
	}
	if len(next.ActiveEntities) != 2 {
		t.Fatalf("entities must be deduplicated case-insensitively, got %v", next.ActiveEntities)
	}
	if next.ActiveEntities[0] != "Mitte" {
		t.Fatalf("entity order must follow the payload, got %v", next.ActiveEntities)
	}
	if next.Confidence != memory.ConfidenceHigh {
		t.Fatalf("confidence not updated: %q", next.Confidence)
	}

	// The previous state object is untouched.
	if *prev.Topic != "apartment search" || len(prev.ActiveEntities) != 1 {
		t.Fatal("applyMerge must not mutate the previous state")
	}
}

func TestApplyMerge_InvalidConfidenceIgnored(t *testing.T) {
	prev := NewState("adam", "conv-1")
	prev.Confidence = memory.ConfidenceMedium

	next := applyMerge(prev, &mergePayload{Confidence: "certain"}, time.Now())
	if next.Confidence != memory.ConfidenceMedium {
		t.Fatalf("invalid confidence must be ignored, got %q", next.Confidence)
	}
}

func TestApplyMerge_DecisionsDeduplicated(t *testing.T) {
	prev := NewState("adam", "conv-1")
	now := time.Now()

	payload := &mergePayload{
		NewDecisions: []struct {
			Summary string `json:"summary"`
		}{
			{Summary: "skip ground-floor flats"},
			{Summary: "  Skip   ground-floor FLATS "},
			{Summary: "bring a guarantor letter"},
			{Summary: ""},
		},
	}
	next := applyMerge(prev, payload, now)
	if len(next.DecisionsMade) != 2 {
		t.Fatalf("expected 2 distinct decisions, got %d: %+v", len(next.DecisionsMade), next.DecisionsMade)
	}

	// A retried merge carrying the same decisions appends nothing.
	again := applyMerge(next, payload, now.Add(time.Minute))
	if len(again.DecisionsMade) != 2 {
		t.Fatalf("retried merge duplicated decisions: %d", len(again.DecisionsMade))
	}

	for _, d := range again.DecisionsMade {
		if d.ID == "" {
			t.Fatal("decision records must carry an idempotency key")
		}
		if d.Timestamp.IsZero() {
			t.Fatal("decision records must carry a timestamp")
		}
	}
}

func TestDecisionKey_NormalizesContent(t *testing.T) {
	a := decisionKey("Skip ground-floor flats")
	b := decisionKey("  skip   GROUND-FLOOR flats ")
	if a != b {
		t.Fatalf("normalized summaries must share a key: %q vs %q", a, b)
	}
	if a == decisionKey("bring a guarantor letter") {
		t.Fatal("different decisions must not collide")
	}
}

func TestState_CloneIsDeep(t *testing.T) {
	orig := NewState("adam", "conv-1")
	orig.Topic = strPtr("apartment search")
	orig.ActiveEntities = []string{"Kreuzberg"}
	orig.DecisionsMade = []DecisionRecord{{ID: "x", Summary: "s", Timestamp: time.Now()}}

	clone := orig.Clone()
	*clone.Topic = "changed"
	clone.ActiveEntities[0] = "changed"
	clone.DecisionsMade[0].Summary = "changed"

	if *orig.Topic != "apartment search" {
		t.Fatal("clone shares topic pointer with original")
	}
	if orig.ActiveEntities[0] != "Kreuzberg" {
		t.Fatal("clone shares entity slice with original")
	}
	if orig.DecisionsMade[0].Summary != "s" {
		t.Fatal("clone shares decisions slice with original")
	}
}
