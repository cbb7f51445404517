package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/samber/lo"
)

const (
	defaultLimit         = 10
	defaultVectorWeight  = 0.7
	defaultKeywordWeight = 0.3
	defaultMinSimilarity = 0.35
	maxExpandTerms       = 3
	vectorCandidateLimit = 500
)

// HybridSearch retrieves candidate memories by combined vector-similarity and
// keyword search, scoped to the owner's active items.
//
// The query text is expanded with up to three conversation-state entities,
// embedded, and both searches run concurrently before their scores are
// combined. Candidates that fail the vector-similarity floor and have no
// keyword match are dropped.
//
// HybridSearch never surfaces an error: an unavailable embedding provider
// degrades to keyword-only search, and internal failures yield a shorter (or
// empty) result list.
func (s *Store) HybridSearch(ctx context.Context, q *SearchQuery) []SearchResult {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	vectorWeight := q.VectorWeight
	if vectorWeight <= 0 {
		vectorWeight = defaultVectorWeight
	}
	keywordWeight := q.KeywordWeight
	if keywordWeight <= 0 {
		keywordWeight = defaultKeywordWeight
	}
	minSimilarity := q.MinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = defaultMinSimilarity
	}

	queryText := expandQuery(q.QueryText, q.ExpandTerms)
	if strings.TrimSpace(queryText) == "" {
		return nil
	}

	s.logger.Info().
		Str("queryText", truncateString(queryText, 80)).
		Str("ownerID", q.OwnerID).
		Int("limit", limit).
		Msg("HybridSearch: start")

	var queryEmbedding []float32
	if s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, queryText)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Msg("HybridSearch: embedding provider failed, falling back to keyword-only search")
		} else {
			queryEmbedding = emb
		}
	}

	// Vector and keyword search are independent reads; run them concurrently.
	var (
		wg        sync.WaitGroup
		byVector  []SearchResult
		byKeyword []SearchResult
	)
	if queryEmbedding != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			byVector = s.searchByVector(ctx, q.OwnerID, queryEmbedding, limit*3)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		byKeyword = s.searchByKeyword(ctx, q.OwnerID, queryText, limit*3)
	}()
	wg.Wait()

	results := make(map[int64]SearchResult)
	for _, r := range byVector {
		results[r.Item.ID] = SearchResult{
			Item:        r.Item,
			Score:       r.VectorScore * vectorWeight,
			VectorScore: r.VectorScore,
		}
	}
	for _, r := range byKeyword {
		if existing, ok := results[r.Item.ID]; ok {
			existing.Score += keywordWeight
			existing.KeywordMatch = true
			results[r.Item.ID] = existing
		} else {
			results[r.Item.ID] = SearchResult{
				Item:         r.Item,
				Score:        keywordWeight,
				KeywordMatch: true,
			}
		}
	}

	merged := lo.Filter(lo.Values(results), func(r SearchResult, _ int) bool {
		return r.KeywordMatch || r.VectorScore >= minSimilarity
	})
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score == merged[j].Score {
			return merged[i].Item.CreatedAt.After(merged[j].Item.CreatedAt)
		}
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}

	s.logger.Info().
		Int("vectorResults", len(byVector)).
		Int("keywordResults", len(byKeyword)).
		Int("returning", len(merged)).
		Msg("HybridSearch: merged results")
	return merged
}

// expandQuery appends up to maxExpandTerms entities to the raw query text so
// that anaphoric turns ("what about it?") still retrieve on-topic memories.
func expandQuery(queryText string, terms []string) string {
	queryText = strings.TrimSpace(queryText)
	added := 0
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" || added >= maxExpandTerms {
			continue
		}
		if strings.Contains(strings.ToLower(queryText), strings.ToLower(term)) {
			continue
		}
		queryText += " " + term
		added++
	}
	return queryText
}

func (s *Store) searchByVector(ctx context.Context, ownerID string, queryEmbedding []float32, limit int) []SearchResult {
	query := StatementBuilder().
		Select(SelectMemoryItemsColumns()...).
		From("memory_items").
		Where(sq.Eq{"owner_id": ownerID}).
		Where(sq.Eq{"status": string(StatusActive)}).
		OrderBy("created_at DESC").
		Limit(uint64(vectorCandidateLimit))

	queryStr, args, err := query.ToSql()
	if err != nil {
		s.logger.Error().Err(err).Msg("searchByVector: failed to build query")
		return nil
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		s.logger.Error().Err(err).Msg("searchByVector: query failed")
		return nil
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var results []SearchResult
	for rows.Next() {
		item, err := loadMemoryItemFromRow(rows)
		if err != nil {
			s.logger.Error().Err(err).Msg("searchByVector: failed to load row")
			return results
		}
		if len(item.Embedding) == 0 {
			continue
		}
		score := CosineSimilarity(queryEmbedding, item.Embedding)
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{
			Item:        item,
			VectorScore: score,
		})
	}
	if err := rows.Err(); err != nil {
		s.logger.Error().Err(err).Msg("searchByVector: row iteration error")
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].VectorScore > results[j].VectorScore
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (s *Store) searchByKeyword(ctx context.Context, ownerID, queryText string, limit int) []SearchResult {
	match := buildFTSQuery(queryText)
	if match == "" {
		return nil
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT rowid
FROM memory_items_fts
WHERE memory_items_fts MATCH ?
LIMIT ?
`, match, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("searchByKeyword: FTS query failed")
		return nil
	}
	defer rows.Close() //nolint:errcheck // no remedy for rows close error

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			s.logger.Error().Err(err).Msg("searchByKeyword: failed to scan rowid")
			return nil
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error().Err(err).Msg("searchByKeyword: row iteration error")
		return nil
	}
	if len(ids) == 0 {
		return nil
	}

	items, err := s.loadItemsByIDs(ctx, ids)
	if err != nil {
		s.logger.Error().Err(err).Msg("searchByKeyword: failed to load items")
		return nil
	}

	return lo.FilterMap(items, func(it *MemoryItem, _ int) (SearchResult, bool) {
		if it.OwnerID != ownerID || it.Status != StatusActive {
			return SearchResult{}, false
		}
		return SearchResult{Item: it, KeywordMatch: true}, true
	})
}

// buildFTSQuery turns free text into an FTS5 MATCH expression: tokens are
// lowercased, deduplicated, quoted, and OR-joined so punctuation in user
// input cannot break the query syntax.
func buildFTSQuery(queryText string) string {
	seen := map[string]struct{}{}
	var quoted []string
	for _, tok := range strings.Fields(strings.ToLower(queryText)) {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
		})
		if len(tok) < 2 {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		quoted = append(quoted, `"`+strings.ReplaceAll(tok, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " OR ")
}
