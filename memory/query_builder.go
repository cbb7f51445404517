package memory

import (
	sq "github.com/Masterminds/squirrel"
)

// StatementBuilder returns a Squirrel StatementBuilder configured for SQLite.
// SQLite uses '?' as placeholders, which is Squirrel's default.
func StatementBuilder() sq.StatementBuilderType {
	return sq.StatementBuilder
}

// SelectMemoryItemsColumns returns the standard column list for memory_items SELECT queries.
func SelectMemoryItemsColumns() []string {
	return []string{
		"id", "owner_id", "type", "content", "summary", "structured_data",
		"confidence", "status", "usage_count", "positive_outcomes", "negative_outcomes",
		"embedding", "related_json", "created_at", "last_used_at",
	}
}
