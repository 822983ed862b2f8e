// Package storage provides composable storage interfaces for the Engram
// memory engine.
//
// The storage layer is designed with small, focused interfaces that can be
// implemented independently and composed as needed. The SQLite backend
// implements all of them; the optional Postgres backend implements only the
// semantic-index interfaces (EmbeddingStore, SimilaritySearcher).
package storage

import (
	"context"
	"time"

	"github.com/engramdev/engram/pkg/types"
)

// MemoryStore provides CRUD and lifecycle operations for memories.
type MemoryStore interface {
	// Insert creates a new memory row. The caller is responsible for
	// derived fields (content hash, length) via types.Memory.RefreshDerived.
	Insert(ctx context.Context, memory *types.Memory) error

	// Get retrieves a memory by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*types.Memory, error)

	// Update overwrites an existing memory row. Returns ErrNotFound if absent.
	Update(ctx context.Context, memory *types.Memory) error

	// FindActiveByHash returns the non-archived memory with the given
	// content hash, or ErrNotFound. Archived rows never match, so a new
	// active row can share a hash with an archived one.
	FindActiveByHash(ctx context.Context, contentHash string) (*types.Memory, error)

	// FindPreference returns the non-archived preference memory for the
	// given category (stored in metadata), or ErrNotFound.
	FindPreference(ctx context.Context, category string) (*types.Memory, error)

	// Archive soft-removes a memory; Restore reverses it.
	// Both return ErrNotFound if the memory doesn't exist.
	Archive(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error

	// RecordAccess stamps last_accessed_at and increments access_count
	// atomically. Returns ErrNotFound if the memory doesn't exist.
	RecordAccess(ctx context.Context, id string) error

	// List retrieves memories with pagination and filtering.
	List(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Memory], error)

	// DueReminders returns non-archived reminder memories whose reminder_at
	// falls between now and the given horizon, ordered soonest first.
	DueReminders(ctx context.Context, from, until time.Time, limit int) ([]types.Memory, error)

	// LinkEntity attaches an entity to a memory with the given link type.
	// Duplicate links are ignored (idempotent).
	LinkEntity(ctx context.Context, memoryID, entityID, linkType string) error

	// EntitiesFor returns the entities linked to a memory.
	EntitiesFor(ctx context.Context, memoryID string) ([]*types.Entity, error)

	// Close releases any resources held by the store.
	Close() error
}

// EntityStore provides CRUD and lookup operations for entities. The
// read-then-write resolution sequence lives in the engine, which serializes
// it; the store only guarantees per-statement atomicity.
type EntityStore interface {
	// InsertEntity creates a new entity row.
	InsertEntity(ctx context.Context, entity *types.Entity) error

	// GetEntity retrieves an entity by ID. Returns ErrNotFound if absent.
	GetEntity(ctx context.Context, id string) (*types.Entity, error)

	// UpdateEntity overwrites an existing entity row. Returns ErrNotFound if absent.
	UpdateEntity(ctx context.Context, entity *types.Entity) error

	// FindActiveByEmail returns the active entity of the given type with
	// that exact email, or ErrNotFound. Email is the strongest identity key.
	FindActiveByEmail(ctx context.Context, entityType, email string) (*types.Entity, error)

	// FindActiveByName returns the first active entity whose name matches
	// the given name case-insensitively (substring-tolerant in either
	// direction). entityType narrows the search when non-empty.
	FindActiveByName(ctx context.Context, name, entityType string) (*types.Entity, error)

	// ListEntities retrieves entities with pagination, filtered by
	// opts.Type when set. Inactive entities are excluded unless
	// opts.IncludeArchived is true.
	ListEntities(ctx context.Context, opts ListOptions) (*PaginatedResult[types.Entity], error)

	// DeactivateEntity archives an entity (is_active = false).
	DeactivateEntity(ctx context.Context, id string) error

	// PurgeEntity hard-deletes an entity along with its relationships and
	// memory links. Only explicit purge cascades; DeactivateEntity never does.
	PurgeEntity(ctx context.Context, id string) error

	// MemoriesFor returns non-archived memories linked to the entity,
	// newest first, capped at limit.
	MemoriesFor(ctx context.Context, entityID string, limit int) ([]types.Memory, error)
}

// RelationshipStore manages directed typed edges between entities.
type RelationshipStore interface {
	// InsertRelationship creates a new relationship row. A unique index on
	// (from_entity_id, to_entity_id, type) backstops the engine's
	// find-or-create serialization.
	InsertRelationship(ctx context.Context, rel *types.Relationship) error

	// UpdateRelationship overwrites an existing relationship row.
	UpdateRelationship(ctx context.Context, rel *types.Relationship) error

	// FindByTriple returns the relationship with the exact
	// (from, to, type) triple, or ErrNotFound.
	FindByTriple(ctx context.Context, fromID, toID, relType string) (*types.Relationship, error)

	// ListForEntity returns all relationships touching the entity, searching
	// both the from and to columns (symmetric read, asymmetric write).
	ListForEntity(ctx context.Context, entityID string) ([]types.Relationship, error)
}

// TagStore manages labels with usage counters.
type TagStore interface {
	// AttachOrCreate ensures the tag exists (creating it if needed),
	// increments its usage counter, and links it to the memory. The
	// upsert is a single atomic statement.
	AttachOrCreate(ctx context.Context, memoryID, name string) (*types.Tag, error)

	// TagsFor returns the tags attached to a memory.
	TagsFor(ctx context.Context, memoryID string) ([]types.Tag, error)

	// FindTag returns the tag with the given name, or ErrNotFound.
	FindTag(ctx context.Context, name string) (*types.Tag, error)
}

// EmbeddingStore persists memory embeddings 1:1 with memories.
type EmbeddingStore interface {
	// StoreEmbedding upserts the embedding for a memory. Implementations
	// must reject vectors whose length differs from Dimensions.
	StoreEmbedding(ctx context.Context, emb *types.Embedding) error

	// GetEmbedding retrieves the embedding for a memory, or ErrNotFound.
	GetEmbedding(ctx context.Context, memoryID string) (*types.Embedding, error)

	// DeleteEmbedding removes the embedding for a memory, or ErrNotFound.
	DeleteEmbedding(ctx context.Context, memoryID string) error
}

// SimilaritySearcher ranks stored embeddings against a query vector.
// The SQLite implementation is a brute-force O(n) scan; the Postgres
// implementation delegates to pgvector. Isolating the scan behind this
// interface lets it be swapped for an ANN index without changing callers.
type SimilaritySearcher interface {
	// SimilaritySearch returns up to limit memory IDs whose embeddings
	// score at least minScore cosine similarity against the query vector,
	// sorted by similarity descending. Embeddings with a different
	// dimension count are skipped (and logged), not fatal.
	SimilaritySearch(ctx context.Context, queryVector []float64, limit int, minScore float64) ([]SimilarityResult, error)
}

// SearchProvider provides full-text search, the fallback recall path.
type SearchProvider interface {
	// FullTextSearch matches query tokens against memory content/summary,
	// filtered to non-archived memories, best match first.
	FullTextSearch(ctx context.Context, opts SearchOptions) (*PaginatedResult[types.Memory], error)
}
