package intent

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aschepis/recall/state"
)

// Fallback resolves messages the deterministic stages could not place. It is
// a delegated generative capability; deterministic stubs substitute in tests.
type Fallback interface {
	ClassifyAmbiguous(ctx context.Context, message string, st *state.State) (Intent, error)
}

// Classifier maps a message (plus conversation state) to an intent using a
// staged strategy: keyword match, state heuristics, sentence-structure
// heuristics, optional generative fallback, then casual. Later stages run
// only when earlier stages are inconclusive.
type Classifier struct {
	fallback Fallback
	logger   zerolog.Logger
}

// NewClassifier creates a classifier. fallback may be nil, in which case
// ambiguous messages default to casual.
func NewClassifier(fallback Fallback, logger zerolog.Logger) *Classifier {
	return &Classifier{
		fallback: fallback,
		logger:   logger.With().Str("component", "intent_classifier").Logger(),
	}
}

// keywordRule is one intent's keyword list. Rules are evaluated in slice
// order, which encodes the category priority for ties.
type keywordRule struct {
	intent   Intent
	keywords []string
}

var keywordRules = []keywordRule{
	{DecisionRequest, []string{
		"should i", "should we", "decide", "decision", "choose", "choice",
		"which option", "which one", "go with", "worth it", "pick between",
	}},
	{FactCheck, []string{
		"is it true", "did i say", "did i mention", "didn't i", "verify",
		"double check", "double-check", "am i right that", "confirm that",
		"what did i", "when did i",
	}},
	{KaizenReview, []string{
		"retrospective", "retro", "kaizen", "what went well", "what went wrong",
		"lessons learned", "postmortem", "post-mortem", "how can i improve",
		"review my week", "review my process",
	}},
	{Planning, []string{
		"plan", "planning", "schedule", "roadmap", "next steps", "milestone",
		"break down", "break this down", "steps to", "how do i get to",
	}},
	{Analysis, []string{
		"analyze", "analyse", "analysis", "compare", "comparison", "trade-off",
		"tradeoff", "pros and cons", "what happens if", "root cause", "why does",
		"why is", "why did",
	}},
	{Reflection, []string{
		"i feel", "i felt", "i'm feeling", "reflect", "reflecting", "looking back",
		"i regret", "i'm proud", "i am proud", "on my mind", "been thinking about",
	}},
}

// interrogative openers used by the structural stage. Order matters: more
// specific openers come first.
var questionOpeners = []struct {
	prefix string
	intent Intent
}{
	{"should", DecisionRequest},
	{"which", DecisionRequest},
	{"did", FactCheck},
	{"was", FactCheck},
	{"is", FactCheck},
	{"are", FactCheck},
	{"when", FactCheck},
	{"why", Analysis},
	{"how come", Analysis},
	{"what if", Analysis},
	{"how", Analysis},
	{"what", Analysis},
}

// verification cues that, together with open questions in the state, tip the
// state heuristic toward fact_check rather than analysis.
var verificationCues = []string{"did", "was", "is", "are", "when", "who"}

// Classify runs the staged strategy. st may be nil.
func (c *Classifier) Classify(ctx context.Context, message string, st *state.State) Intent {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		return Casual
	}

	// Stage 1: keyword lists, first match wins by category priority.
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if containsKeyword(normalized, kw) {
				c.logger.Debug().
					Str("intent", string(rule.intent)).
					Str("keyword", kw).
					Msg("classified by keyword")
				return rule.intent
			}
		}
	}

	// Stage 2: state-based heuristics.
	if st != nil {
		if st.Goal != nil && *st.Goal != "" {
			c.logger.Debug().Msg("classified as planning from established goal")
			return Planning
		}
		if len(st.OpenQuestions) > 0 && strings.Contains(normalized, "?") {
			first := firstWord(normalized)
			if lo.Contains(verificationCues, first) {
				return FactCheck
			}
			return Analysis
		}
	}

	// Stage 3: sentence structure, a question mark plus a recognized opener.
	if strings.Contains(normalized, "?") {
		for _, opener := range questionOpeners {
			if strings.HasPrefix(normalized, opener.prefix+" ") {
				c.logger.Debug().
					Str("intent", string(opener.intent)).
					Str("opener", opener.prefix).
					Msg("classified by question structure")
				return opener.intent
			}
		}
	}

	// Stage 4: generative fallback when configured; any error means casual.
	if c.fallback != nil {
		result, err := c.fallback.ClassifyAmbiguous(ctx, message, st)
		if err != nil {
			c.logger.Warn().Err(err).Msg("fallback classification failed, defaulting to casual")
			return Casual
		}
		if ValidIntent(string(result)) {
			return result
		}
		c.logger.Warn().Str("result", string(result)).Msg("fallback returned unknown intent, defaulting to casual")
	}

	return Casual
}

// containsKeyword matches kw against the message on word boundaries so that
// "plan" does not fire inside "airplane".
func containsKeyword(message, kw string) bool {
	idx := 0
	for {
		i := strings.Index(message[idx:], kw)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(kw)
		if boundaryBefore(message, start) && boundaryAfter(message, end) {
			return true
		}
		idx = start + 1
	}
}

func boundaryBefore(s string, i int) bool {
	return i == 0 || !isWordByte(s[i-1])
}

func boundaryAfter(s string, i int) bool {
	return i >= len(s) || !isWordByte(s[i])
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '\''
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], "?,.!")
}
