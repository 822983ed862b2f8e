package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// Compile-time checks that *Store implements the storage interfaces.
var (
	_ storage.MemoryStore        = (*Store)(nil)
	_ storage.EntityStore        = (*Store)(nil)
	_ storage.RelationshipStore  = (*Store)(nil)
	_ storage.TagStore           = (*Store)(nil)
	_ storage.EmbeddingStore     = (*Store)(nil)
	_ storage.SimilaritySearcher = (*Store)(nil)
	_ storage.SearchProvider     = (*Store)(nil)
)

// FullTextSearch performs FTS5-backed full-text search across memory content
// and summaries.
//
// The FTS5 virtual table (memories_fts) is kept in sync with the memories
// table via INSERT/UPDATE/DELETE triggers defined in schema.go.
//
// When opts.Query is empty the method falls back to a plain list ordered by
// created_at DESC so the caller still receives a useful result set.
//
// FTS5 rank values are negative (more negative == better match), so ordering
// by rank ASC gives the best results first.
func (s *Store) FullTextSearch(ctx context.Context, opts storage.SearchOptions) (*storage.PaginatedResult[types.Memory], error) {
	opts.Normalize()

	if strings.TrimSpace(opts.Query) == "" {
		return s.List(ctx, storage.ListOptions{
			Page:      1,
			Limit:     opts.Limit,
			SortBy:    "created_at",
			SortOrder: "desc",
		})
	}

	// Sanitise the raw query string so it is safe to pass to FTS5's MATCH
	// operator.  FTS5 syntax is powerful but fragile: an unbalanced quote or
	// stray operator keyword will cause SQLite to return "fts5: syntax error".
	// We convert the free-form user input into a simple prefix query that
	// searches for each word individually (OR semantics).
	ftsQuery := sanitiseFTSQuery(opts.Query)

	const querySQL = `
		SELECT
			m.id, m.type, m.content, m.summary, m.content_length, m.content_hash,
			m.metadata, m.relevance_score, m.access_count, m.last_accessed_at,
			m.reminder_at, m.is_archived, m.created_at, m.updated_at
		FROM memories_fts fts
		JOIN memories m ON m.rowid = fts.rowid
		WHERE memories_fts MATCH ? AND m.is_archived = 0
		ORDER BY rank
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, querySQL, ftsQuery, opts.Limit, opts.Offset)
	if err != nil {
		// FTS5 can still error on malformed input that slipped past sanitisation.
		return nil, fmt.Errorf("sqlite: FullTextSearch MATCH %q: %w", opts.Query, err)
	}
	defer func() { _ = rows.Close() }()

	memories, err := collectMemories(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: FullTextSearch scan: %w", err)
	}

	const countSQL = `
		SELECT COUNT(*)
		FROM memories_fts fts
		JOIN memories m ON m.rowid = fts.rowid
		WHERE memories_fts MATCH ? AND m.is_archived = 0
	`
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, ftsQuery).Scan(&total); err != nil {
		return nil, fmt.Errorf("sqlite: FullTextSearch count: %w", err)
	}

	page := 1
	if opts.Limit > 0 {
		page = (opts.Offset / opts.Limit) + 1
	}

	result := &storage.PaginatedResult[types.Memory]{
		Items:    memories,
		Total:    total,
		Page:     page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset+len(memories) < total,
	}

	// Fuzzy fallback: if no results and FuzzyFallback is enabled, retry with OR'd terms
	if opts.FuzzyFallback && len(result.Items) == 0 && opts.Query != "" {
		terms := strings.Fields(opts.Query)
		if len(terms) > 1 {
			relaxedOpts := opts
			relaxedOpts.Query = strings.Join(terms, " OR ")
			relaxedOpts.FuzzyFallback = false // prevent recursion
			return s.FullTextSearch(ctx, relaxedOpts)
		}
	}

	return result, nil
}

// SearchEntities performs FTS5 search over entity names and descriptions,
// restricted to active entities.
func (s *Store) SearchEntities(ctx context.Context, query string, limit int) ([]types.Entity, error) {
	if limit < 1 {
		limit = 10
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", storage.ErrInvalidInput)
	}

	ftsQuery := sanitiseFTSQuery(query)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumnsPrefixed("e")+`
		 FROM entities_fts fts
		 JOIN memory_entities e ON e.rowid = fts.rowid
		 WHERE entities_fts MATCH ? AND e.is_active = 1
		 ORDER BY rank
		 LIMIT ?`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: SearchEntities MATCH %q: %w", query, err)
	}
	defer func() { _ = rows.Close() }()

	var entities []types.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: SearchEntities scan: %w", err)
		}
		entities = append(entities, *entity)
	}

	return entities, rows.Err()
}

// sanitiseFTSQuery converts a free-form user query into a safe FTS5 MATCH
// expression. It strips FTS5-special characters, removes common stop words,
// and uses prefix matching (term*) for better recall.
//
// Example: "What is Engram?" → "engram*"
// Example: "Sarah coffee preferences" → "sarah* OR coffee* OR preferences*"
func sanitiseFTSQuery(query string) string {
	// Strip FTS5 special characters.
	replacer := strings.NewReplacer(
		`"`, ` `,
		`'`, ` `,
		`(`, ` `,
		`)`, ` `,
		`*`, ` `,
		`-`, ` `,
		`^`, ` `,
		`?`, ` `,
		`:`, ` `,
	)
	cleaned := replacer.Replace(query)

	words := strings.Fields(strings.ToLower(cleaned))

	// Filter stop words that carry no discriminative value.
	stopWords := map[string]bool{
		"a": true, "an": true, "the": true,
		"is": true, "are": true, "was": true, "were": true, "be": true, "been": true, "being": true,
		"have": true, "has": true, "had": true,
		"do": true, "does": true, "did": true,
		"will": true, "would": true, "could": true, "should": true,
		"may": true, "might": true, "shall": true, "can": true,
		"to": true, "of": true, "in": true, "on": true, "at": true,
		"by": true, "for": true, "with": true, "from": true, "as": true,
		"about": true, "into": true, "through": true, "during": true,
		"before": true, "after": true, "above": true, "below": true,
		"between": true, "out": true, "off": true, "over": true, "under": true,
		"what": true, "how": true, "when": true, "where": true, "why": true,
		"who": true, "which": true,
		"this": true, "that": true, "these": true, "those": true,
		"i": true, "you": true, "he": true, "she": true, "it": true, "we": true, "they": true,
		"and": true, "or": true, "but": true, "if": true, "not": true,
		"s": true, "t": true, // post-apostrophe fragments e.g. "Sarah's" → "Sarah" + "s"
	}

	var terms []string
	for _, w := range words {
		if !stopWords[w] && len(w) >= 2 {
			terms = append(terms, w+"*")
		}
	}

	if len(terms) == 0 {
		// All words were stop words — fall back to a lowercased form of the
		// cleaned text so FTS5 does not interpret uppercase AND/OR/NOT as operators.
		return strings.ToLower(strings.TrimSpace(cleaned))
	}

	return strings.Join(terms, " OR ")
}
