package state

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/aschepis/recall/memory"
)

// DefaultTTLHours is how long a conversation state survives without updates.
const DefaultTTLHours = 48

// DecisionRecord is one confirmed decision in a conversation.
type DecisionRecord struct {
	ID        string    `json:"id"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the running structured summary of one conversation's working
// context. There is at most one live row per (owner, conversation), enforced
// by a uniqueness constraint at the storage layer.
//
// Nullable fields mean "not yet established"; the merger never guesses them.
type State struct {
	OwnerID        string `json:"owner_id"`
	ConversationID string `json:"conversation_id"`

	Topic       *string `json:"topic,omitempty"`
	Goal        *string `json:"goal,omitempty"`
	CurrentStep *string `json:"current_step,omitempty"`
	Intent      *string `json:"intent,omitempty"`

	ActiveEntities []string `json:"active_entities,omitempty"`
	ActiveObjects  []string `json:"active_objects,omitempty"`

	Assumptions []string `json:"assumptions,omitempty"`
	Constraints []string `json:"constraints,omitempty"`

	DecisionsMade []DecisionRecord `json:"decisions_made,omitempty"`

	OpenQuestions    []string `json:"open_questions,omitempty"`
	UnresolvedPoints []string `json:"unresolved_points,omitempty"`

	Confidence memory.ConfidenceLevel `json:"confidence"`

	TTLHours    int       `json:"ttl_hours"`
	LastUpdated time.Time `json:"last_updated"`
}

// NewState returns an empty state for a conversation with defaults applied.
func NewState(ownerID, conversationID string) *State {
	return &State{
		OwnerID:        ownerID,
		ConversationID: conversationID,
		Confidence:     memory.ConfidenceUnknown,
		TTLHours:       DefaultTTLHours,
	}
}

// Clone returns a deep copy, so merge failures can hand back the previous
// state without aliasing its slices.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Topic = cloneStringPtr(s.Topic)
	out.Goal = cloneStringPtr(s.Goal)
	out.CurrentStep = cloneStringPtr(s.CurrentStep)
	out.Intent = cloneStringPtr(s.Intent)
	out.ActiveEntities = append([]string(nil), s.ActiveEntities...)
	out.ActiveObjects = append([]string(nil), s.ActiveObjects...)
	out.Assumptions = append([]string(nil), s.Assumptions...)
	out.Constraints = append([]string(nil), s.Constraints...)
	out.DecisionsMade = append([]DecisionRecord(nil), s.DecisionsMade...)
	out.OpenQuestions = append([]string(nil), s.OpenQuestions...)
	out.UnresolvedPoints = append([]string(nil), s.UnresolvedPoints...)
	return &out
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// decisionKey is the idempotency key for decisions_made entries: a hash of
// the normalized summary, so retried or duplicate merge calls cannot append
// the same decision twice.
func decisionKey(summary string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(summary)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:8])
}
