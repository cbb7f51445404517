package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/aschepis/recall/conversations"
	"github.com/aschepis/recall/memory"
)

// Merger incrementally updates conversation state from new turns. It is a
// delegated generative capability: implementations may call an external
// model, and deterministic stubs substitute in tests.
//
// Contract: a failed or malformed merge must return the previous state
// unchanged, never an error that aborts message handling.
type Merger interface {
	Merge(ctx context.Context, prev *State, recentTurns []conversations.Turn, message string) (*State, error)
}

// mergePayload is the strict JSON shape the model must produce. Empty or
// missing fields mean "no evidence of change".
type mergePayload struct {
	Topic            *string  `json:"topic"`
	Goal             *string  `json:"goal"`
	CurrentStep      *string  `json:"current_step"`
	Intent           *string  `json:"intent"`
	ActiveEntities   []string `json:"active_entities"`
	ActiveObjects    []string `json:"active_objects"`
	Assumptions      []string `json:"assumptions"`
	Constraints      []string `json:"constraints"`
	NewDecisions     []struct {
		Summary string `json:"summary"`
	} `json:"new_decisions"`
	OpenQuestions    []string `json:"open_questions"`
	UnresolvedPoints []string `json:"unresolved_points"`
	Confidence       string   `json:"confidence"`
}

// AnthropicMerger implements Merger using Claude via the Messages API.
type AnthropicMerger struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAnthropicMerger returns a configured merger.
func NewAnthropicMerger(model, apiKey string, maxTokens int, logger zerolog.Logger) (*AnthropicMerger, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicMerger{
		client:    &client,
		model:     model,
		maxTokens: int64(maxTokens),
		logger:    logger.With().Str("component", "state_merger").Logger(),
		now:       time.Now,
	}, nil
}

const mergerSystemPrompt = `You are a conversation-state tracker for a personal AI assistant.

You receive the previous structured state of a conversation, the most recent turns, and the current user message. You must output an update as valid JSON with this exact shape and no extra keys:
{
  "topic": string|null,
  "goal": string|null,
  "current_step": string|null,
  "intent": string|null,
  "active_entities": string[],
  "active_objects": string[],
  "assumptions": string[],
  "constraints": string[],
  "new_decisions": [{"summary": string}],
  "open_questions": string[],
  "unresolved_points": string[],
  "confidence": "high"|"medium"|"low"|"unknown"
}

Rules:
- Never delete information without cause: output null / empty for any field you have no new evidence about, and it will be kept as-is.
- Never invent a topic or goal when the conversation is ambiguous; leave them null.
- Resolve references like "this", "it", "here" into concrete entries in "active_entities".
- Add to "new_decisions" ONLY when the user explicitly confirms a decision in the current message.
- Output ONLY the JSON object, no explanations or surrounding text.`

// Merge calls the model and applies its update under the merge invariants.
// Any transport or parse failure degrades to returning the previous state
// unchanged.
func (m *AnthropicMerger) Merge(ctx context.Context, prev *State, recentTurns []conversations.Turn, message string) (*State, error) {
	if prev == nil {
		return nil, fmt.Errorf("previous state is required")
	}

	userPrompt, err := buildMergePrompt(prev, recentTurns, message)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Merge: failed to build prompt, keeping previous state")
		return prev.Clone(), nil
	}

	raw, err := m.callModel(ctx, userPrompt)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Merge: model call failed, keeping previous state")
		return prev.Clone(), nil
	}

	var payload mergePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		m.logger.Warn().
			Err(err).
			Str("raw", truncateForLog(raw, 120)).
			Msg("Merge: malformed model output, keeping previous state")
		return prev.Clone(), nil
	}

	return applyMerge(prev, &payload, m.now()), nil
}

func buildMergePrompt(prev *State, recentTurns []conversations.Turn, message string) (string, error) {
	prevJSON, err := json.MarshalIndent(prev, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal previous state: %w", err)
	}

	var b strings.Builder
	b.WriteString("Previous state:\n")
	b.Write(prevJSON)
	b.WriteString("\n\nRecent turns:\n")
	if len(recentTurns) == 0 {
		b.WriteString("(none)\n")
	}
	for _, t := range recentTurns {
		b.WriteString(fmt.Sprintf("[%s] %s\n", t.Role, t.Content))
	}
	b.WriteString("\nCurrent user message:\n")
	b.WriteString(message)
	return b.String(), nil
}

func (m *AnthropicMerger) callModel(ctx context.Context, userPrompt string) (string, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 1 * time.Second
	eb.Multiplier = 2.0
	eb.MaxInterval = 30 * time.Second
	eb.MaxElapsedTime = 2 * time.Minute
	eb.Reset()
	b := backoff.WithMaxRetries(eb, 3)

	var raw string
	operation := func() error {
		msg, err := m.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(m.model),
			MaxTokens: m.maxTokens,
			System:    []anthropic.TextBlockParam{{Text: mergerSystemPrompt}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		})
		if err != nil {
			return fmt.Errorf("messages api: %w", err)
		}
		for _, blockUnion := range msg.Content {
			if block, ok := blockUnion.AsAny().(anthropic.TextBlock); ok {
				raw = strings.TrimSpace(block.Text)
				break
			}
		}
		if raw == "" {
			return backoff.Permanent(fmt.Errorf("empty content in response"))
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return raw, nil
}

// applyMerge folds a model update into the previous state under the merge
// invariants: fields are only changed when the payload carries explicit
// evidence, lists never collapse to empty, and decisions are deduplicated by
// content hash.
func applyMerge(prev *State, payload *mergePayload, now time.Time) *State {
	next := prev.Clone()

	if v := trimmedOrNil(payload.Topic); v != nil {
		next.Topic = v
	}
	if v := trimmedOrNil(payload.Goal); v != nil {
		next.Goal = v
	}
	if v := trimmedOrNil(payload.CurrentStep); v != nil {
		next.CurrentStep = v
	}
	if v := trimmedOrNil(payload.Intent); v != nil {
		next.Intent = v
	}

	if list := dedupeList(payload.ActiveEntities); len(list) > 0 {
		next.ActiveEntities = list
	}
	if list := dedupeList(payload.ActiveObjects); len(list) > 0 {
		next.ActiveObjects = list
	}
	if list := dedupeList(payload.Assumptions); len(list) > 0 {
		next.Assumptions = list
	}
	if list := dedupeList(payload.Constraints); len(list) > 0 {
		next.Constraints = list
	}
	if list := dedupeList(payload.OpenQuestions); len(list) > 0 {
		next.OpenQuestions = list
	}
	if list := dedupeList(payload.UnresolvedPoints); len(list) > 0 {
		next.UnresolvedPoints = list
	}

	existing := make(map[string]struct{}, len(next.DecisionsMade))
	for _, d := range next.DecisionsMade {
		existing[d.ID] = struct{}{}
	}
	for _, d := range payload.NewDecisions {
		summary := strings.TrimSpace(d.Summary)
		if summary == "" {
			continue
		}
		key := decisionKey(summary)
		if _, ok := existing[key]; ok {
			continue
		}
		existing[key] = struct{}{}
		next.DecisionsMade = append(next.DecisionsMade, DecisionRecord{
			ID:        key,
			Summary:   summary,
			Timestamp: now,
		})
	}

	switch memory.ConfidenceLevel(payload.Confidence) {
	case memory.ConfidenceHigh, memory.ConfidenceMedium, memory.ConfidenceLow, memory.ConfidenceUnknown:
		if payload.Confidence != "" {
			next.Confidence = memory.ConfidenceLevel(payload.Confidence)
		}
	}

	return next
}

func trimmedOrNil(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

// dedupeList preserves order and removes case-insensitive duplicates.
func dedupeList(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	var out []string
	for _, v := range list {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

func truncateForLog(s string, n int) string {
	rs := []rune(s)
	if len(rs) > n {
		return string(rs[:n]) + "..."
	}
	return s
}
