package conversations

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// RecentWindow is the number of turns handed to the state merger and the
// context assembler.
const RecentWindow = 5

// Turn is a single utterance in a conversation.
type Turn struct {
	ID             int64     `json:"id"`
	TurnID         string    `json:"turn_id"`
	OwnerID        string    `json:"owner_id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"` // "user" or "assistant"
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store handles persistence of conversation turns.
type Store struct {
	db *sql.DB
}

// NewStore creates a new conversation turn store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append saves a turn. Inserts are idempotent on turn_id so crashed or
// retried pipeline runs cannot duplicate history.
func (s *Store) Append(ctx context.Context, ownerID, conversationID, role, content string) (Turn, error) {
	if strings.TrimSpace(content) == "" {
		return Turn{}, fmt.Errorf("turn content is empty")
	}
	turnID := uuid.NewString()
	now := time.Now().Unix()

	query := sq.Insert("conversation_turns").
		Columns("turn_id", "owner_id", "conversation_id", "role", "content", "created_at").
		Values(turnID, ownerID, conversationID, role, content, now)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return Turn{}, fmt.Errorf("build query: %w", err)
	}

	// SQLite requires "OR IGNORE" to come after "INSERT", so we rewrite the statement.
	queryStr = strings.Replace(queryStr, "INSERT INTO", "INSERT OR IGNORE INTO", 1)

	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return Turn{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Turn{}, err
	}

	return Turn{
		ID:             id,
		TurnID:         turnID,
		OwnerID:        ownerID,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Unix(now, 0),
	}, nil
}

// Recent returns the last n turns of a conversation in chronological order.
func (s *Store) Recent(ctx context.Context, ownerID, conversationID string, n int) ([]Turn, error) {
	if n <= 0 {
		n = RecentWindow
	}

	query := sq.Select("id", "turn_id", "owner_id", "conversation_id", "role", "content", "created_at").
		From("conversation_turns").
		Where(sq.Eq{"owner_id": ownerID}).
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(n))

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var turns []Turn
	for rows.Next() {
		var (
			t         Turn
			createdAt int64
		)
		if err := rows.Scan(&t.ID, &t.TurnID, &t.OwnerID, &t.ConversationID, &t.Role, &t.Content, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rows arrive newest-first; flip to chronological order for consumers.
	sort.Slice(turns, func(i, j int) bool {
		if turns[i].CreatedAt.Equal(turns[j].CreatedAt) {
			return turns[i].ID < turns[j].ID
		}
		return turns[i].CreatedAt.Before(turns[j].CreatedAt)
	})
	return turns, nil
}
