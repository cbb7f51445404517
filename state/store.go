package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"github.com/aschepis/recall/memory"
)

// Store persists conversation state with at most one live row per
// (owner, conversation), enforced by a unique index.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates a conversation-state store.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "state_store").Logger(),
	}
}

// Get loads the state for a conversation. Returns (nil, nil) when no state
// exists yet.
func (s *Store) Get(ctx context.Context, ownerID, conversationID string) (*State, error) {
	query := sq.Select("owner_id", "conversation_id", "topic", "goal", "current_step", "intent",
		"entities_json", "objects_json", "assumptions_json", "constraints_json",
		"decisions_json", "questions_json", "unresolved_json", "confidence",
		"ttl_hours", "last_updated").
		From("conversation_state").
		Where(sq.Eq{"owner_id": ownerID}).
		Where(sq.Eq{"conversation_id": conversationID})

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, queryStr, args...)

	var (
		st             State
		topic          sql.NullString
		goal           sql.NullString
		currentStep    sql.NullString
		intentStr      sql.NullString
		entitiesJSON   sql.NullString
		objectsJSON    sql.NullString
		assumeJSON     sql.NullString
		constraintJSON sql.NullString
		decisionsJSON  sql.NullString
		questionsJSON  sql.NullString
		unresolvedJSON sql.NullString
		confidence     string
		lastUpdated    int64
	)
	err = row.Scan(&st.OwnerID, &st.ConversationID, &topic, &goal, &currentStep, &intentStr,
		&entitiesJSON, &objectsJSON, &assumeJSON, &constraintJSON,
		&decisionsJSON, &questionsJSON, &unresolvedJSON, &confidence,
		&st.TTLHours, &lastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan state: %w", err)
	}

	st.Topic = nullableString(topic)
	st.Goal = nullableString(goal)
	st.CurrentStep = nullableString(currentStep)
	st.Intent = nullableString(intentStr)
	st.ActiveEntities = decodeStringList(entitiesJSON)
	st.ActiveObjects = decodeStringList(objectsJSON)
	st.Assumptions = decodeStringList(assumeJSON)
	st.Constraints = decodeStringList(constraintJSON)
	st.OpenQuestions = decodeStringList(questionsJSON)
	st.UnresolvedPoints = decodeStringList(unresolvedJSON)
	st.Confidence = memory.ConfidenceLevel(confidence)
	st.LastUpdated = time.Unix(lastUpdated, 0)

	if decisionsJSON.Valid && decisionsJSON.String != "" {
		if err := json.Unmarshal([]byte(decisionsJSON.String), &st.DecisionsMade); err != nil {
			s.logger.Warn().Err(err).Msg("Get: corrupt decisions_json, ignoring")
			st.DecisionsMade = nil
		}
	}

	return &st, nil
}

// Upsert atomically creates or updates the state row, refreshing
// last_updated. The unique index on (owner_id, conversation_id) makes the
// operation safe against concurrent turns for the same conversation.
func (s *Store) Upsert(ctx context.Context, st *State) (*State, error) {
	if st == nil {
		return nil, fmt.Errorf("state is nil")
	}
	if st.OwnerID == "" || st.ConversationID == "" {
		return nil, fmt.Errorf("owner and conversation ids are required")
	}
	if st.TTLHours <= 0 {
		st.TTLHours = DefaultTTLHours
	}
	if st.Confidence == "" {
		st.Confidence = memory.ConfidenceUnknown
	}

	nowUnix := time.Now().Unix()

	entitiesJSON, err := encodeStringList(st.ActiveEntities)
	if err != nil {
		return nil, err
	}
	objectsJSON, err := encodeStringList(st.ActiveObjects)
	if err != nil {
		return nil, err
	}
	assumeJSON, err := encodeStringList(st.Assumptions)
	if err != nil {
		return nil, err
	}
	constraintJSON, err := encodeStringList(st.Constraints)
	if err != nil {
		return nil, err
	}
	questionsJSON, err := encodeStringList(st.OpenQuestions)
	if err != nil {
		return nil, err
	}
	unresolvedJSON, err := encodeStringList(st.UnresolvedPoints)
	if err != nil {
		return nil, err
	}
	var decisionsJSON interface{}
	if len(st.DecisionsMade) > 0 {
		b, err := json.Marshal(st.DecisionsMade)
		if err != nil {
			return nil, fmt.Errorf("marshal decisions: %w", err)
		}
		decisionsJSON = string(b)
	}

	query := sq.Insert("conversation_state").
		Columns("owner_id", "conversation_id", "topic", "goal", "current_step", "intent",
			"entities_json", "objects_json", "assumptions_json", "constraints_json",
			"decisions_json", "questions_json", "unresolved_json", "confidence",
			"ttl_hours", "last_updated").
		Values(st.OwnerID, st.ConversationID, st.Topic, st.Goal, st.CurrentStep, st.Intent,
			entitiesJSON, objectsJSON, assumeJSON, constraintJSON,
			decisionsJSON, questionsJSON, unresolvedJSON, string(st.Confidence),
			st.TTLHours, nowUnix).
		Suffix(`ON CONFLICT(owner_id, conversation_id) DO UPDATE SET
topic = excluded.topic,
goal = excluded.goal,
current_step = excluded.current_step,
intent = excluded.intent,
entities_json = excluded.entities_json,
objects_json = excluded.objects_json,
assumptions_json = excluded.assumptions_json,
constraints_json = excluded.constraints_json,
decisions_json = excluded.decisions_json,
questions_json = excluded.questions_json,
unresolved_json = excluded.unresolved_json,
confidence = excluded.confidence,
ttl_hours = excluded.ttl_hours,
last_updated = excluded.last_updated`)

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, queryStr, args...); err != nil {
		return nil, fmt.Errorf("upsert conversation state: %w", err)
	}

	out := st.Clone()
	out.LastUpdated = time.Unix(nowUnix, 0)

	s.logger.Debug().
		Str("owner_id", st.OwnerID).
		Str("conversation_id", st.ConversationID).
		Msg("conversation state upserted")
	return out, nil
}

// CleanupExpired deletes states whose TTL has elapsed and returns the number
// of rows removed. The sweep is idempotent and safe to run concurrently with
// live upserts: an upsert refreshes last_updated, which takes the row out of
// the delete predicate.
func (s *Store) CleanupExpired(ctx context.Context) (int64, error) {
	nowUnix := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, `
DELETE FROM conversation_state WHERE (? - last_updated) > (ttl_hours * 3600)
`, nowUnix)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired states: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info().Int64("removed", count).Msg("expired conversation states removed")
	}
	return count, nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}

func encodeStringList(list []string) (interface{}, error) {
	if len(list) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return string(b), nil
}

func decodeStringList(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v.String), &out); err != nil {
		return nil
	}
	return out
}
