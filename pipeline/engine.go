package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aschepis/recall/assemble"
	"github.com/aschepis/recall/conflict"
	"github.com/aschepis/recall/conversations"
	"github.com/aschepis/recall/intent"
	"github.com/aschepis/recall/memory"
	"github.com/aschepis/recall/ranking"
	"github.com/aschepis/recall/state"
)

// Request is one incoming message to process.
type Request struct {
	OwnerID        string
	ConversationID string
	Message        string
	Settings       assemble.Settings
	Limit          int // max memories surfaced; zero means the retrieval default
}

// Result is the assembled context plus bookkeeping for the caller.
type Result struct {
	Context        string
	Intent         intent.Intent
	MemoriesUsed   int
	ConflictsFound int
	State          *state.State
}

// Engine sequences the retrieval pipeline for each message: merge state,
// classify intent, retrieve and rank memories, detect conflicts, assemble
// the context, then record which memories were surfaced so future rankings
// can weigh their effectiveness.
type Engine struct {
	memories      *memory.Store
	states        *state.Store
	turns         *conversations.Store
	merger        state.Merger
	classifier    *intent.Classifier
	ranker        *ranking.Ranker
	detector      conflict.Detector
	assembler     *assemble.Assembler
	stateTTLHours int
	logger        zerolog.Logger
}

// Option adjusts optional Engine behavior.
type Option func(*Engine)

// WithStateTTL sets the TTL applied to conversation states the engine
// creates. Zero or negative hours keep state.DefaultTTLHours.
func WithStateTTL(hours int) Option {
	return func(e *Engine) {
		e.stateTTLHours = hours
	}
}

// NewEngine wires the pipeline.
func NewEngine(
	memories *memory.Store,
	states *state.Store,
	turns *conversations.Store,
	merger state.Merger,
	classifier *intent.Classifier,
	ranker *ranking.Ranker,
	detector conflict.Detector,
	assembler *assemble.Assembler,
	logger zerolog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		memories:   memories,
		states:     states,
		turns:      turns,
		merger:     merger,
		classifier: classifier,
		ranker:     ranker,
		detector:   detector,
		assembler:  assembler,
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process runs the full pipeline for one message. It returns an error only
// for storage failures that make the result meaningless; degraded stages
// (merge, retrieval, conflicts) are absorbed per their own contracts.
func (e *Engine) Process(ctx context.Context, req Request) (*Result, error) {
	if req.OwnerID == "" || req.ConversationID == "" {
		return nil, fmt.Errorf("owner and conversation ids are required")
	}
	if req.Message == "" {
		return nil, fmt.Errorf("message is empty")
	}

	recentTurns, err := e.turns.Recent(ctx, req.OwnerID, req.ConversationID, conversations.RecentWindow)
	if err != nil {
		return nil, fmt.Errorf("load recent turns: %w", err)
	}

	prev, err := e.states.Get(ctx, req.OwnerID, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation state: %w", err)
	}
	if prev == nil {
		prev = state.NewState(req.OwnerID, req.ConversationID)
		if e.stateTTLHours > 0 {
			prev.TTLHours = e.stateTTLHours
		}
	}

	merged, err := e.merger.Merge(ctx, prev, recentTurns, req.Message)
	if err != nil {
		// Merger contract says failures degrade internally; treat a
		// surfaced error the same way.
		e.logger.Warn().Err(err).Msg("state merge failed, continuing with previous state")
		merged = prev.Clone()
	}
	stored, err := e.states.Upsert(ctx, merged)
	if err != nil {
		return nil, fmt.Errorf("persist conversation state: %w", err)
	}

	in := e.classifier.Classify(ctx, req.Message, stored)

	results := e.memories.HybridSearch(ctx, &memory.SearchQuery{
		OwnerID:     req.OwnerID,
		QueryText:   req.Message,
		ExpandTerms: stored.ActiveEntities,
		Limit:       req.Limit,
	})

	ranked := e.ranker.Rank(results, in)
	conflicts := e.detector.Detect(ctx, ranked)

	assembled := e.assembler.Assemble(req.Message, req.Settings, stored, ranked, recentTurns, conflicts)

	if _, err := e.turns.Append(ctx, req.OwnerID, req.ConversationID, "user", req.Message); err != nil {
		e.logger.Warn().Err(err).Msg("failed to persist user turn")
	}

	surfaced := lo.Map(ranked, func(rm ranking.RankedMemory, _ int) int64 { return rm.Item.ID })
	if len(surfaced) > 0 {
		if err := e.memories.RecordRecall(ctx, req.ConversationID, surfaced); err != nil {
			e.logger.Warn().Err(err).Msg("failed to record recall events")
		}
	}

	e.logger.Info().
		Str("owner_id", req.OwnerID).
		Str("conversation_id", req.ConversationID).
		Str("intent", string(in)).
		Int("memories", len(ranked)).
		Int("conflicts", len(conflicts)).
		Msg("message processed")

	return &Result{
		Context:        assembled,
		Intent:         in,
		MemoriesUsed:   len(ranked),
		ConflictsFound: len(conflicts),
		State:          stored,
	}, nil
}

// RecordOutcome reports whether a previously surfaced memory helped. It
// feeds the effectiveness boost in future rankings.
func (e *Engine) RecordOutcome(ctx context.Context, memoryID int64, positive bool) error {
	return e.memories.RecordOutcome(ctx, memoryID, positive)
}

// AppendAssistantTurn records the downstream generation's reply so the next
// merge sees both sides of the exchange.
func (e *Engine) AppendAssistantTurn(ctx context.Context, ownerID, conversationID, content string) error {
	_, err := e.turns.Append(ctx, ownerID, conversationID, "assistant", content)
	return err
}
