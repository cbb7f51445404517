package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestHybridSearch_SemanticRelevanceOrdering(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	store, err := NewStore(db, newSemanticEmbedder(128), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()

	contents := []string{
		"the database migration failed on the orders table",
		"coffee with Lena on friday afternoon",
		"database indexes speed up the orders queries",
	}
	for _, c := range contents {
		if _, err := store.Remember(ctx, RememberParams{
			OwnerID: "adam",
			Type:    MemoryTypeFact,
			Content: c,
		}); err != nil {
			t.Fatalf("Remember(%q): %v", c, err)
		}
	}

	results := store.HybridSearch(ctx, &SearchQuery{
		OwnerID:   "adam",
		QueryText: "database orders migration",
		Limit:     10,
	})
	if len(results) < 2 {
		t.Fatalf("expected at least 2 results, got %d", len(results))
	}
	for _, r := range results {
		if !strings.Contains(r.Item.Content, "orders") {
			t.Fatalf("off-topic item surfaced: %q", r.Item.Content)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatal("results are not sorted by combined score")
		}
	}
}

func TestHybridSearch_ScopedToOwner(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	store, err := NewStore(db, newSemanticEmbedder(128), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Remember(ctx, RememberParams{
		OwnerID: "beth",
		Type:    MemoryTypeFact,
		Content: "the quarterly report is due in march",
	}); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	results := store.HybridSearch(ctx, &SearchQuery{
		OwnerID:   "adam",
		QueryText: "quarterly report march",
	})
	if len(results) != 0 {
		t.Fatalf("another owner's memories leaked into results: %d", len(results))
	}
}

func TestHybridSearch_EmbedderFailureDegradesToKeyword(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	// Write with a working embedder, search with a failing one.
	writer, err := NewStore(db, newSemanticEmbedder(128), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()
	if _, err := writer.Remember(ctx, RememberParams{
		OwnerID: "adam",
		Type:    MemoryTypeFact,
		Content: "the deploy pipeline runs at midnight",
	}); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	reader, err := NewStore(db, failingEmbedder{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	results := reader.HybridSearch(ctx, &SearchQuery{
		OwnerID:   "adam",
		QueryText: "deploy pipeline",
	})
	if len(results) != 1 {
		t.Fatalf("expected keyword-only fallback to return 1 result, got %d", len(results))
	}
	if !results[0].KeywordMatch {
		t.Fatal("expected a keyword match in degraded mode")
	}
}

func TestHybridSearch_EmptyQueryReturnsNothing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	store, err := NewStore(db, stubEmbedder{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	results := store.HybridSearch(context.Background(), &SearchQuery{OwnerID: "adam", QueryText: "   "})
	if results != nil {
		t.Fatalf("expected nil for blank query, got %d results", len(results))
	}
}

func TestExpandQuery(t *testing.T) {
	got := expandQuery("what about it", []string{"orders service", "Postgres", "orders service", "redis", "kafka"})
	if !strings.Contains(got, "orders service") || !strings.Contains(got, "Postgres") || !strings.Contains(got, "redis") {
		t.Fatalf("expected first three distinct entities appended, got %q", got)
	}
	if strings.Contains(got, "kafka") {
		t.Fatalf("expected at most 3 expansion terms, got %q", got)
	}

	// Terms already present in the query are not duplicated.
	got = expandQuery("tell me about postgres", []string{"Postgres"})
	if strings.Count(strings.ToLower(got), "postgres") != 1 {
		t.Fatalf("duplicate expansion term in %q", got)
	}
}

func TestBuildFTSQuery(t *testing.T) {
	got := buildFTSQuery(`What is the "status" of DB-42?`)
	if strings.Contains(got, `?`) || strings.Contains(got, `'`) {
		t.Fatalf("punctuation leaked into FTS query: %q", got)
	}
	if !strings.Contains(got, `"status"`) {
		t.Fatalf("expected quoted token in %q", got)
	}
	if buildFTSQuery("!! ??") != "" {
		t.Fatal("expected empty FTS query for punctuation-only input")
	}
}
