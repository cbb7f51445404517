package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
)

// Store manages memory-item persistence and the usage feedback counters.
type Store struct {
	db       *sql.DB
	embedder Embedder
	logger   zerolog.Logger
}

// NewStore creates and returns a Store. The embedder may be nil, in which
// case items are written without embeddings and retrieval degrades to
// keyword-only search.
func NewStore(db *sql.DB, embedder Embedder, logger zerolog.Logger) (*Store, error) {
	logger = logger.With().Str("component", "memory_store").Logger()
	s := &Store{db: db, embedder: embedder, logger: logger}
	return s, nil
}

// EmbedText generates an embedding for the given text.
// Returns an error if no embedder is configured.
func (s *Store) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	return s.embedder.Embed(ctx, text)
}

func now() int64 { return time.Now().Unix() }

// Remember writes a new memory item for an owner. Content is embedded for
// vector search and mirrored into the FTS table for keyword search; if the
// embedding provider fails the item is saved without an embedding.
func (s *Store) Remember(ctx context.Context, p RememberParams) (MemoryItem, error) {
	s.logger.Debug().
		Str("method", "Remember").
		Str("owner_id", p.OwnerID).
		Str("type", string(p.Type)).
		Str("content", truncateString(p.Content, 40)).
		Msg("called")

	if strings.TrimSpace(p.Content) == "" {
		return MemoryItem{}, errors.New("content is empty")
	}
	if strings.TrimSpace(p.OwnerID) == "" {
		return MemoryItem{}, errors.New("owner id is empty")
	}
	if !ValidMemoryType(p.Type) {
		return MemoryItem{}, fmt.Errorf("invalid memory type: %q", p.Type)
	}
	if p.Confidence == "" {
		p.Confidence = ConfidenceUnknown
	}

	var structJSON []byte
	var err error
	if p.StructuredData != nil {
		structJSON, err = json.Marshal(p.StructuredData)
		if err != nil {
			return MemoryItem{}, fmt.Errorf("marshal structured data: %w", err)
		}
	}
	var relatedJSON []byte
	if len(p.RelatedTo) > 0 {
		relatedJSON, err = json.Marshal(p.RelatedTo)
		if err != nil {
			return MemoryItem{}, fmt.Errorf("marshal related ids: %w", err)
		}
	}

	var embedding []float32
	if s.embedder != nil {
		embedding, err = s.embedder.Embed(ctx, p.Content)
		if err != nil {
			s.logger.Error().
				Str("method", "Remember").
				Err(err).
				Msg("Embedding failed. Saving anyway without embedding.")
			embedding = nil
		}
	}

	nowUnix := now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MemoryItem{}, err
	}
	defer func() { _ = tx.Rollback() }()

	query := StatementBuilder().
		Insert("memory_items").
		Columns("owner_id", "type", "content", "summary", "structured_data",
			"confidence", "status", "embedding", "related_json", "created_at").
		Values(p.OwnerID, string(p.Type), p.Content, p.Summary, structJSON,
			string(p.Confidence), string(StatusActive), EncodeEmbedding(embedding), relatedJSON, nowUnix)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return MemoryItem{}, fmt.Errorf("build insert query: %w", err)
	}

	res, err := tx.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return MemoryItem{}, fmt.Errorf("insert memory_item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return MemoryItem{}, err
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO memory_items_fts (rowid, content) VALUES (?, ?)
`, id, p.Content); err != nil {
		return MemoryItem{}, fmt.Errorf("insert fts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return MemoryItem{}, err
	}

	s.logger.Info().
		Str("method", "Remember").
		Str("owner_id", p.OwnerID).
		Str("type", string(p.Type)).
		Int64("id", id).
		Msg("MemoryItem remembered")

	return MemoryItem{
		ID:             id,
		OwnerID:        p.OwnerID,
		Type:           p.Type,
		Content:        p.Content,
		Summary:        p.Summary,
		StructuredData: p.StructuredData,
		Confidence:     p.Confidence,
		Status:         StatusActive,
		Embedding:      embedding,
		RelatedTo:      append([]int64(nil), p.RelatedTo...),
		CreatedAt:      time.Unix(nowUnix, 0),
	}, nil
}

// Get loads a single memory item by id. Returns (nil, nil) when not found.
func (s *Store) Get(ctx context.Context, id int64) (*MemoryItem, error) {
	items, err := s.loadItemsByIDs(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// SetStatus transitions an item's lifecycle status. Items that are no longer
// active disappear from retrieval but remain in storage.
func (s *Store) SetStatus(ctx context.Context, id int64, status Status) error {
	switch status {
	case StatusActive, StatusArchived, StatusAggregated, StatusDeleted:
	default:
		return fmt.Errorf("invalid status: %q", status)
	}

	query := StatementBuilder().
		Update("memory_items").
		Set("status", string(status)).
		Where(sq.Eq{"id": id})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build update query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("memory item %d not found", id)
	}
	s.logger.Info().Int64("id", id).Str("status", string(status)).Msg("memory status updated")
	return nil
}

// RecordRecall logs a "recalled" usage event for each surfaced memory and
// increments its usage counter. This is the bookkeeping half of the
// effectiveness feedback loop.
func (s *Store) RecordRecall(ctx context.Context, conversationID string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	nowUnix := now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
UPDATE memory_items SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?
`, nowUnix, id); err != nil {
			return fmt.Errorf("increment usage_count: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO memory_usage_events (memory_id, conversation_id, kind, created_at) VALUES (?, ?, 'recalled', ?)
`, id, conversationID, nowUnix); err != nil {
			return fmt.Errorf("insert usage event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug().Int("count", len(ids)).Str("conversation_id", conversationID).Msg("recorded recall events")
	return nil
}

// RecordOutcome increments the positive or negative outcome counter for a
// memory. Counters are monotonically non-decreasing.
func (s *Store) RecordOutcome(ctx context.Context, id int64, positive bool) error {
	column := "negative_outcomes"
	kind := "negative"
	if positive {
		column = "positive_outcomes"
		kind = "positive"
	}
	nowUnix := now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE memory_items SET %s = %s + 1 WHERE id = ?", column, column), id)
	if err != nil {
		return fmt.Errorf("increment outcome counter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("memory item %d not found", id)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO memory_usage_events (memory_id, conversation_id, kind, created_at) VALUES (?, NULL, ?, ?)
`, id, kind, nowUnix); err != nil {
		return fmt.Errorf("insert outcome event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug().Int64("id", id).Str("kind", kind).Msg("recorded outcome")
	return nil
}

func loadMemoryItemFromRow(rows *sql.Rows) (*MemoryItem, error) {
	var (
		id           int64
		ownerID      string
		typStr       string
		content      string
		summary      string
		structJSON   sql.NullString
		confidence   string
		statusStr    string
		usageCount   int64
		positive     int64
		negative     int64
		embBlob      []byte
		relatedJSON  sql.NullString
		createdAt    int64
		lastUsedUnix sql.NullInt64
	)
	if err := rows.Scan(&id, &ownerID, &typStr, &content, &summary, &structJSON,
		&confidence, &statusStr, &usageCount, &positive, &negative,
		&embBlob, &relatedJSON, &createdAt, &lastUsedUnix); err != nil {
		return nil, err
	}

	vec, err := DecodeEmbedding(embBlob)
	if err != nil {
		return nil, err
	}

	var structured map[string]interface{}
	if structJSON.Valid && structJSON.String != "" {
		_ = json.Unmarshal([]byte(structJSON.String), &structured)
	}
	var related []int64
	if relatedJSON.Valid && relatedJSON.String != "" {
		if err := json.Unmarshal([]byte(relatedJSON.String), &related); err != nil {
			related = nil
		}
	}
	var lastUsed *time.Time
	if lastUsedUnix.Valid {
		t := time.Unix(lastUsedUnix.Int64, 0)
		lastUsed = &t
	}

	return &MemoryItem{
		ID:               id,
		OwnerID:          ownerID,
		Type:             MemoryType(typStr),
		Content:          content,
		Summary:          summary,
		StructuredData:   structured,
		Confidence:       ConfidenceLevel(confidence),
		Status:           Status(statusStr),
		UsageCount:       usageCount,
		PositiveOutcomes: positive,
		NegativeOutcomes: negative,
		Embedding:        vec,
		RelatedTo:        related,
		CreatedAt:        time.Unix(createdAt, 0),
		LastUsedAt:       lastUsed,
	}, nil
}

func (s *Store) loadItemsByIDs(ctx context.Context, ids []int64) ([]*MemoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	idArgs := make([]interface{}, len(ids))
	for i, id := range ids {
		idArgs[i] = id
	}

	query := StatementBuilder().
		Select(SelectMemoryItemsColumns()...).
		From("memory_items").
		Where(sq.Eq{"id": idArgs})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var items []*MemoryItem
	for rows.Next() {
		item, err := loadMemoryItemFromRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(items) < len(ids) {
		s.logger.Warn().
			Int("requested", len(ids)).
			Int("loaded", len(items)).
			Msg("loadItemsByIDs: some IDs were not found in the database")
	}
	return items, nil
}

// Helper function to safely truncate strings (for log safety).
func truncateString(s string, n int) string {
	rs := []rune(s)
	if len(rs) > n {
		return string(rs[:n]) + "..."
	}
	return s
}
