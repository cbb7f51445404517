package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/aschepis/recall/state"
)

// AnthropicFallback implements Fallback using Claude via the Messages API.
// It is consulted only for messages the deterministic stages could not
// place, so a small, cheap model is appropriate.
type AnthropicFallback struct {
	client *anthropic.Client
	model  string
	logger zerolog.Logger
}

// NewAnthropicFallback returns a configured fallback classifier.
func NewAnthropicFallback(model, apiKey string, logger zerolog.Logger) (*AnthropicFallback, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicFallback{
		client: &client,
		model:  model,
		logger: logger.With().Str("component", "intent_fallback").Logger(),
	}, nil
}

const fallbackSystemPrompt = `Classify the user's message into exactly one of these intents:
decision_request, analysis, fact_check, planning, reflection, kaizen_review, casual.

Respond with the intent name only, lowercase, nothing else.`

func (f *AnthropicFallback) ClassifyAmbiguous(ctx context.Context, message string, st *state.State) (Intent, error) {
	var b strings.Builder
	if st != nil && st.Topic != nil {
		b.WriteString("Conversation topic: ")
		b.WriteString(*st.Topic)
		b.WriteString("\n")
	}
	b.WriteString("Message: ")
	b.WriteString(message)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 500 * time.Millisecond
	eb.MaxElapsedTime = 30 * time.Second
	eb.Reset()
	retry := backoff.WithMaxRetries(eb, 2)

	var raw string
	operation := func() error {
		msg, err := f.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(f.model),
			MaxTokens: 16,
			System:    []anthropic.TextBlockParam{{Text: fallbackSystemPrompt}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(b.String())),
			},
		})
		if err != nil {
			return fmt.Errorf("messages api: %w", err)
		}
		for _, blockUnion := range msg.Content {
			if block, ok := blockUnion.AsAny().(anthropic.TextBlock); ok {
				raw = strings.ToLower(strings.TrimSpace(block.Text))
				break
			}
		}
		if raw == "" {
			return backoff.Permanent(fmt.Errorf("empty content in response"))
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(retry, ctx)); err != nil {
		return Casual, err
	}

	if !ValidIntent(raw) {
		return Casual, fmt.Errorf("model returned unknown intent %q", raw)
	}
	return Intent(raw), nil
}
