package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// Recall sources.
const (
	SourceSemantic = "semantic"
	SourceFullText = "fulltext"
)

// overfetchFactor controls how many extra candidates the search layer
// returns before post-filters run. Filters (type, entity, time) apply
// after retrieval, so fetching exactly limit would undercount whenever a
// filter removes candidates.
const overfetchFactor = 3

// RecallOptions narrows a recall query.
type RecallOptions struct {
	// Types keeps only memories of the listed types. Empty means all.
	Types []string

	// EntityName keeps only memories linked to the named entity.
	EntityName string

	// TagName keeps only memories carrying the tag.
	TagName string

	// CreatedAfter / CreatedBefore bound the creation time. Zero values
	// are unconstrained.
	CreatedAfter  time.Time
	CreatedBefore time.Time

	// Limit caps results; 0 uses the engine default.
	Limit int

	// MinSimilarity overrides the engine's similarity floor when non-zero.
	MinSimilarity float64
}

// RecallResult is one recalled memory with its score and provenance.
type RecallResult struct {
	Memory types.Memory `json:"memory"`
	Score  float64      `json:"score"`
	Source string       `json:"source"`
}

// Recall answers a natural-language query. The semantic path embeds the
// query and ranks stored vectors by cosine similarity weighted by each
// memory's relevance score; when embeddings are unavailable (no provider,
// circuit open, nothing indexed yet) it falls back to full-text search with
// fuzzy retry. Post-filters run before the limit is applied, so a filtered
// recall still fills its quota from the candidate pool.
//
// The whole operation is bounded by the configured recall timeout; on expiry
// whatever was gathered so far is returned rather than an error. Returned
// memories get their access counters bumped in the background.
func (e *Engine) Recall(ctx context.Context, query string, opts RecallOptions) ([]RecallResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RecallTimeout)
	defer cancel()

	limit := opts.Limit
	if limit < 1 {
		limit = e.cfg.DefaultLimit
	}
	minScore := opts.MinSimilarity
	if minScore == 0 {
		minScore = e.cfg.MinSimilarity
	}

	results, err := e.semanticRecall(ctx, query, opts, limit, minScore)
	if err != nil {
		e.log.Debug().Err(err).Msg("semantic recall unavailable, falling back to full text")
	}
	if len(results) == 0 {
		results, err = e.fullTextRecall(ctx, query, opts, limit)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				e.log.Warn().Str("query", query).Msg("recall timed out")
				return nil, nil
			}
			return nil, err
		}
	}

	e.recordAccessAsync(results)
	return results, nil
}

// semanticRecall runs the vector path: embed, scan, hydrate, filter, rank.
func (e *Engine) semanticRecall(ctx context.Context, query string, opts RecallOptions, limit int, minScore float64) ([]RecallResult, error) {
	if e.embedder == nil || query == "" {
		return nil, nil
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := e.searcher.SimilaritySearch(ctx, vector, limit*overfetchFactor, minScore)
	if err != nil {
		return nil, err
	}

	filter, err := e.buildFilter(ctx, opts)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var results []RecallResult
	for _, hit := range hits {
		if ctx.Err() != nil {
			// Deadline hit mid-hydration: rank and return what we have.
			e.log.Warn().Int("gathered", len(results)).Msg("recall deadline reached, returning partial results")
			break
		}

		memory, err := e.store.Get(ctx, hit.MemoryID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, err
		}
		// The semantic index may lag the primary store (e.g. an archive
		// raced the scan), so re-check here.
		if memory.IsArchived {
			continue
		}

		ok, err := filter.matches(ctx, memory)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		results = append(results, RecallResult{
			Memory: *memory,
			Score:  hit.Similarity * e.effectiveRelevance(memory, now),
			Source: SourceSemantic,
		})
	}

	// Relevance weighting can reorder the similarity-sorted hits.
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// fullTextRecall runs the lexical fallback with fuzzy OR retry.
func (e *Engine) fullTextRecall(ctx context.Context, query string, opts RecallOptions, limit int) ([]RecallResult, error) {
	page, err := e.store.FullTextSearch(ctx, storage.SearchOptions{
		Query:         query,
		Limit:         limit * overfetchFactor,
		FuzzyFallback: true,
	})
	if err != nil {
		return nil, err
	}

	filter, err := e.buildFilter(ctx, opts)
	if err != nil {
		return nil, err
	}

	var results []RecallResult
	for i := range page.Items {
		memory := page.Items[i]
		ok, err := filter.matches(ctx, &memory)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		results = append(results, RecallResult{
			Memory: memory,
			Source: SourceFullText,
		})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// recordAccessAsync bumps access counters without blocking the caller or
// inheriting its deadline.
func (e *Engine) recordAccessAsync(results []RecallResult) {
	if len(results) == 0 {
		return
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.Memory.ID)
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, id := range ids {
			if err := e.store.RecordAccess(ctx, id); err != nil {
				e.log.Warn().Err(err).Str("memory_id", id).Msg("failed to record access")
			}
		}
	}()
}

// recallFilter is the compiled post-filter for one recall call. The entity
// filter is resolved once up front (name to membership set) instead of per
// candidate.
type recallFilter struct {
	engine    *Engine
	types     map[string]bool
	tagName   string
	after     time.Time
	before    time.Time
	entityIDs map[string]bool // nil: no entity filter; empty: entity unknown, nothing matches
}

func (e *Engine) buildFilter(ctx context.Context, opts RecallOptions) (*recallFilter, error) {
	f := &recallFilter{
		engine:  e,
		tagName: opts.TagName,
		after:   opts.CreatedAfter,
		before:  opts.CreatedBefore,
	}
	if len(opts.Types) > 0 {
		f.types = make(map[string]bool, len(opts.Types))
		for _, t := range opts.Types {
			f.types[t] = true
		}
	}
	if opts.EntityName != "" {
		f.entityIDs = map[string]bool{}
		entity, err := e.store.FindActiveByName(ctx, opts.EntityName, "")
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return f, nil
			}
			return nil, err
		}
		memories, err := e.store.MemoriesFor(ctx, entity.ID, 1000)
		if err != nil {
			return nil, err
		}
		for _, m := range memories {
			f.entityIDs[m.ID] = true
		}
	}
	return f, nil
}

func (f *recallFilter) matches(ctx context.Context, memory *types.Memory) (bool, error) {
	if f.types != nil && !f.types[memory.Type] {
		return false, nil
	}
	if !f.after.IsZero() && memory.CreatedAt.Before(f.after) {
		return false, nil
	}
	if !f.before.IsZero() && memory.CreatedAt.After(f.before) {
		return false, nil
	}
	if f.entityIDs != nil && !f.entityIDs[memory.ID] {
		return false, nil
	}
	if f.tagName != "" {
		tags, err := f.engine.store.TagsFor(ctx, memory.ID)
		if err != nil {
			return false, err
		}
		found := false
		for _, tag := range tags {
			if tag.Name == f.tagName {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}
