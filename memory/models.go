package memory

import "time"

// MemoryType describes the kind of memory item.
type MemoryType string

const (
	MemoryTypeFact       MemoryType = "fact"
	MemoryTypeDecision   MemoryType = "decision"
	MemoryTypePrinciple  MemoryType = "principle"
	MemoryTypeRule       MemoryType = "rule"
	MemoryTypeHypothesis MemoryType = "hypothesis"
	MemoryTypeReflection MemoryType = "reflection"
	MemoryTypeEmotion    MemoryType = "emotion"
	MemoryTypeFailure    MemoryType = "failure"
	MemoryTypeTask       MemoryType = "task"
	MemoryTypeInsight    MemoryType = "insight"
	MemoryTypeThought    MemoryType = "thought"
)

// AllMemoryTypes returns every defined memory type. Weight and decay tables
// are checked against this list so a new type cannot be added silently.
func AllMemoryTypes() []MemoryType {
	return []MemoryType{
		MemoryTypeFact,
		MemoryTypeDecision,
		MemoryTypePrinciple,
		MemoryTypeRule,
		MemoryTypeHypothesis,
		MemoryTypeReflection,
		MemoryTypeEmotion,
		MemoryTypeFailure,
		MemoryTypeTask,
		MemoryTypeInsight,
		MemoryTypeThought,
	}
}

// ValidMemoryType reports whether t is one of the defined memory types.
func ValidMemoryType(t MemoryType) bool {
	for _, known := range AllMemoryTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ConfidenceLevel expresses how much trust is placed in an item or state.
type ConfidenceLevel string

const (
	ConfidenceHigh    ConfidenceLevel = "high"
	ConfidenceMedium  ConfidenceLevel = "medium"
	ConfidenceLow     ConfidenceLevel = "low"
	ConfidenceUnknown ConfidenceLevel = "unknown"
)

// Status is the lifecycle state of a memory item. Only active items are
// retrievable.
type Status string

const (
	StatusActive     Status = "active"
	StatusArchived   Status = "archived"
	StatusAggregated Status = "aggregated"
	StatusDeleted    Status = "deleted"
)

// MemoryItem is a single unit of long-term memory. Content is immutable once
// written; only status and the outcome counters mutate afterwards.
type MemoryItem struct {
	ID               int64                  `json:"id"`
	OwnerID          string                 `json:"owner_id"`
	Type             MemoryType             `json:"type"`
	Content          string                 `json:"content"`
	Summary          string                 `json:"summary,omitempty"`
	StructuredData   map[string]interface{} `json:"structured_data,omitempty"`
	Confidence       ConfidenceLevel        `json:"confidence"`
	Status           Status                 `json:"status"`
	UsageCount       int64                  `json:"usage_count"`
	PositiveOutcomes int64                  `json:"positive_outcomes"`
	NegativeOutcomes int64                  `json:"negative_outcomes"`
	Embedding        []float32              `json:"embedding,omitempty"`
	RelatedTo        []int64                `json:"related_to,omitempty"` // advisory links to other items
	CreatedAt        time.Time              `json:"created_at"`
	LastUsedAt       *time.Time             `json:"last_used_at,omitempty"`
}

// RememberParams are the inputs for writing a new memory item.
type RememberParams struct {
	OwnerID        string
	Type           MemoryType
	Content        string
	Summary        string
	Confidence     ConfidenceLevel
	StructuredData map[string]interface{}
	RelatedTo      []int64
}

// SearchQuery controls hybrid retrieval over memory_items.
type SearchQuery struct {
	OwnerID       string
	QueryText     string
	ExpandTerms   []string // state entities appended to the query, at most 3 used
	Limit         int
	MinSimilarity float64 // vector-similarity floor; zero means default
	VectorWeight  float64 // zero means default 0.7
	KeywordWeight float64 // zero means default 0.3
}

// SearchResult is a MemoryItem plus its combined relevance score.
type SearchResult struct {
	Item         *MemoryItem
	Score        float64
	VectorScore  float64
	KeywordMatch bool
}
