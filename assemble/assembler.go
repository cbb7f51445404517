package assemble

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aschepis/recall/conflict"
	"github.com/aschepis/recall/conversations"
	"github.com/aschepis/recall/memory"
	"github.com/aschepis/recall/ranking"
	"github.com/aschepis/recall/state"
)

// Settings carries caller-supplied framing for the assembled context.
type Settings struct {
	// SystemRules are behavior rules rendered verbatim near the top of the
	// context, before any retrieved memory.
	SystemRules []string
}

// Assembler renders state, ranked memories, conflicts and recent turns into
// one ordered text block. Section order is fixed and not configurable;
// sections with no content are omitted, except the time context and the
// current message, which always appear. The conversation-state section
// always precedes the recent-turns window.
type Assembler struct {
	logger zerolog.Logger
	now    func() time.Time
}

// NewAssembler creates an assembler.
func NewAssembler(logger zerolog.Logger) *Assembler {
	return &Assembler{
		logger: logger.With().Str("component", "assembler").Logger(),
		now:    time.Now,
	}
}

// memory sections in render order, each owning a subset of the closed type
// set so every surfaced item has exactly one home.
var memorySections = []struct {
	title string
	types []memory.MemoryType
}{
	{"Rules & Principles", []memory.MemoryType{memory.MemoryTypeRule, memory.MemoryTypePrinciple}},
	{"Relevant facts", []memory.MemoryType{memory.MemoryTypeFact}},
	{"Decisions & Tasks", []memory.MemoryType{memory.MemoryTypeDecision, memory.MemoryTypeTask}},
	{"Hypotheses (unconfirmed)", []memory.MemoryType{memory.MemoryTypeHypothesis, memory.MemoryTypeThought}},
	{"Reflections & Failures", []memory.MemoryType{memory.MemoryTypeReflection, memory.MemoryTypeFailure, memory.MemoryTypeEmotion}},
	{"Insights", []memory.MemoryType{memory.MemoryTypeInsight}},
}

// Assemble renders the context block.
func (a *Assembler) Assemble(
	userMessage string,
	settings Settings,
	st *state.State,
	ranked []ranking.RankedMemory,
	recentTurns []conversations.Turn,
	conflicts []conflict.Conflict,
) string {
	var b strings.Builder

	// 1. Time context, always present.
	b.WriteString("## Time context\n")
	b.WriteString(a.now().Format("Monday, 2006-01-02 15:04 MST"))
	b.WriteString("\n")

	// 2. System/behavior rules.
	if len(settings.SystemRules) > 0 {
		b.WriteString("\n## Behavior rules\n")
		for _, rule := range settings.SystemRules {
			b.WriteString("- " + rule + "\n")
		}
	}

	// 3. Conversation state. Must always come before the recent-turns window.
	if section := renderState(st); section != "" {
		b.WriteString("\n## Conversation state\n")
		b.WriteString(section)
	}

	// 4-9. Ranked memories grouped by type, rank order preserved within
	// each section.
	for _, section := range memorySections {
		items := lo.Filter(ranked, func(rm ranking.RankedMemory, _ int) bool {
			return lo.Contains(section.types, rm.Item.Type)
		})
		if len(items) == 0 {
			continue
		}
		b.WriteString("\n## " + section.title + "\n")
		for _, rm := range items {
			b.WriteString(renderMemoryLine(rm))
		}
	}

	// 10. Conflicts are never suppressed when present.
	if len(conflicts) > 0 {
		byID := lo.KeyBy(ranked, func(rm ranking.RankedMemory) int64 { return rm.Item.ID })
		b.WriteString("\n## Conflicts\n")
		for _, c := range conflicts {
			b.WriteString(renderConflictLine(c, byID))
		}
	}

	// 11. Recent turns window.
	if len(recentTurns) > 0 {
		b.WriteString("\n## Recent turns\n")
		for _, t := range recentTurns {
			b.WriteString(fmt.Sprintf("[%s] %s\n", t.Role, t.Content))
		}
	}

	// 12. Current message, always present.
	b.WriteString("\n## Current message\n")
	b.WriteString(userMessage)
	b.WriteString("\n")

	out := b.String()
	a.logger.Debug().
		Int("memories", len(ranked)).
		Int("conflicts", len(conflicts)).
		Int("bytes", len(out)).
		Msg("context assembled")
	return out
}

func renderState(st *state.State) string {
	if st == nil {
		return ""
	}
	var b strings.Builder
	writeStateField(&b, "Topic", st.Topic)
	writeStateField(&b, "Goal", st.Goal)
	writeStateField(&b, "Current step", st.CurrentStep)
	writeStateField(&b, "Intent", st.Intent)
	writeStateList(&b, "Active entities", st.ActiveEntities)
	writeStateList(&b, "Active objects", st.ActiveObjects)
	writeStateList(&b, "Assumptions", st.Assumptions)
	writeStateList(&b, "Constraints", st.Constraints)
	if len(st.DecisionsMade) > 0 {
		b.WriteString("Decisions made:\n")
		for _, d := range st.DecisionsMade {
			b.WriteString(fmt.Sprintf("- %s (%s)\n", d.Summary, d.Timestamp.Format("2006-01-02")))
		}
	}
	writeStateList(&b, "Open questions", st.OpenQuestions)
	writeStateList(&b, "Unresolved points", st.UnresolvedPoints)
	return b.String()
}

func writeStateField(b *strings.Builder, label string, value *string) {
	if value == nil || *value == "" {
		return
	}
	b.WriteString(label + ": " + *value + "\n")
}

func writeStateList(b *strings.Builder, label string, values []string) {
	if len(values) == 0 {
		return
	}
	b.WriteString(label + ": " + strings.Join(values, ", ") + "\n")
}

// renderMemoryLine renders one surfaced memory:
//
//	● [fact] The standup moved to 09:30 (created 2025-03-01, score 0.83, used 4x)
func renderMemoryLine(rm ranking.RankedMemory) string {
	return fmt.Sprintf("%s [%s] %s (created %s, score %.2f, used %dx)\n",
		confidenceGlyph(rm.Item.Confidence),
		rm.Item.Type,
		rm.Item.Content,
		rm.Item.CreatedAt.Format("2006-01-02"),
		rm.FinalScore,
		rm.Item.UsageCount,
	)
}

func renderConflictLine(c conflict.Conflict, byID map[int64]ranking.RankedMemory) string {
	return fmt.Sprintf("! %s vs %s (%s, confidence %.1f)\n",
		conflictSide(c.MemoryAID, byID),
		conflictSide(c.MemoryBID, byID),
		c.Type,
		c.Confidence,
	)
}

func conflictSide(id int64, byID map[int64]ranking.RankedMemory) string {
	rm, ok := byID[id]
	if !ok {
		return fmt.Sprintf("memory #%d", id)
	}
	return fmt.Sprintf("%s #%d %q", rm.Item.Type, id, snippet(rm.Item.Content, 80))
}

func confidenceGlyph(c memory.ConfidenceLevel) string {
	switch c {
	case memory.ConfidenceHigh:
		return "●"
	case memory.ConfidenceMedium:
		return "◐"
	case memory.ConfidenceLow:
		return "○"
	default:
		return "?"
	}
}

func snippet(s string, n int) string {
	rs := []rune(s)
	if len(rs) > n {
		return string(rs[:n]) + "..."
	}
	return s
}
