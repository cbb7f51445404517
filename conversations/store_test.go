package conversations

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"

	"github.com/aschepis/recall/migrations"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := migrations.RunMigrations(db, zerolog.Nop()); err != nil {
		_ = db.Close() //nolint:errcheck // Cleanup on error
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func TestStore_AppendAndRecent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	store := NewStore(db)
	ctx := context.Background()

	messages := []struct {
		role, content string
	}{
		{"user", "first"},
		{"assistant", "second"},
		{"user", "third"},
		{"assistant", "fourth"},
		{"user", "fifth"},
		{"assistant", "sixth"},
		{"user", "seventh"},
	}
	for _, m := range messages {
		if _, err := store.Append(ctx, "adam", "conv-1", m.role, m.content); err != nil {
			t.Fatalf("Append(%q): %v", m.content, err)
		}
	}

	turns, err := store.Recent(ctx, "adam", "conv-1", RecentWindow)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != RecentWindow {
		t.Fatalf("expected %d turns, got %d", RecentWindow, len(turns))
	}

	// Window holds the newest turns in chronological order.
	want := []string{"third", "fourth", "fifth", "sixth", "seventh"}
	for i, turn := range turns {
		if turn.Content != want[i] {
			t.Fatalf("turn %d = %q, want %q", i, turn.Content, want[i])
		}
	}
}

func TestStore_AppendRejectsEmptyContent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	store := NewStore(db)
	if _, err := store.Append(context.Background(), "adam", "conv-1", "user", "   "); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestStore_RecentScopedToConversation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	store := NewStore(db)
	ctx := context.Background()

	if _, err := store.Append(ctx, "adam", "conv-1", "user", "in conv one"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := store.Append(ctx, "adam", "conv-2", "user", "in conv two"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	turns, err := store.Recent(ctx, "adam", "conv-1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "in conv one" {
		t.Fatalf("unexpected turns for conv-1: %+v", turns)
	}
}
