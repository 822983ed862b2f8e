// Package postgres provides an optional PostgreSQL-backed semantic index for
// the Engram memory engine. SQLite remains the system of record; this package
// implements only the embedding surfaces (storage.EmbeddingStore and
// storage.SimilaritySearcher) so large installations can offload similarity
// search to pgvector's indexed cosine-distance operator instead of the
// brute-force SQLite scan.
package postgres

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// schema creates the embeddings table. The BYTEA column is always written so
// vectors survive a pgvector extension removal; the vector column is added
// only when the extension is present.
const schema = `
CREATE TABLE IF NOT EXISTS memory_embeddings (
    memory_id  TEXT PRIMARY KEY,
    vector     BYTEA NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    magnitude  DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// SemanticIndex implements storage.EmbeddingStore and
// storage.SimilaritySearcher on PostgreSQL.
type SemanticIndex struct {
	db                *sql.DB
	pgvectorAvailable bool
	log               zerolog.Logger
}

// Compile-time interface checks.
var (
	_ storage.EmbeddingStore     = (*SemanticIndex)(nil)
	_ storage.SimilaritySearcher = (*SemanticIndex)(nil)
)

// New connects to PostgreSQL, creates the schema, and probes for the pgvector
// extension. When pgvector is missing the index still works, falling back to
// an in-process cosine scan over the BYTEA column.
func New(dsn string, dimensions int, logger zerolog.Logger) (*SemanticIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	idx := &SemanticIndex{db: db, log: logger}

	// Probe for pgvector and add the vector column when available.
	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err == nil {
		if dimensions <= 0 {
			dimensions = 1536
		}
		alter := fmt.Sprintf(
			`ALTER TABLE memory_embeddings ADD COLUMN IF NOT EXISTS vector_idx vector(%d)`, dimensions)
		if _, err := db.ExecContext(ctx, alter); err != nil {
			logger.Warn().Err(err).Msg("pgvector extension present but vector column creation failed")
		} else {
			idx.pgvectorAvailable = true
		}
	} else {
		logger.Info().Msg("pgvector extension unavailable, similarity search will scan in process")
	}

	return idx, nil
}

// Close closes the underlying database connection.
func (p *SemanticIndex) Close() error {
	return p.db.Close()
}

// StoreEmbedding upserts the embedding for a memory. The vector is always
// written to the BYTEA column; when pgvector is available it is mirrored into
// the vector column for indexed cosine-distance queries.
func (p *SemanticIndex) StoreEmbedding(ctx context.Context, emb *types.Embedding) error {
	if emb == nil {
		return storage.ErrInvalidInput
	}
	if emb.MemoryID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	if len(emb.Vector) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}
	if emb.Model == "" {
		return fmt.Errorf("%w: model is required", storage.ErrInvalidInput)
	}
	if emb.Dimensions == 0 {
		emb.Dimensions = len(emb.Vector)
	}
	if len(emb.Vector) != emb.Dimensions {
		return fmt.Errorf("%w: vector length (%d) does not match dimensions (%d)",
			storage.ErrInvalidInput, len(emb.Vector), emb.Dimensions)
	}
	if emb.Magnitude == 0 {
		emb.Magnitude = types.Magnitude(emb.Vector)
	}

	blob := serializeVector(emb.Vector)

	if p.pgvectorAvailable {
		// pgvector stores float32.
		f32 := make([]float32, len(emb.Vector))
		for i, v := range emb.Vector {
			f32[i] = float32(v)
		}
		vec := pgvector.NewVector(f32)

		query := `
			INSERT INTO memory_embeddings (memory_id, vector, model, dimensions, magnitude, vector_idx, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			ON CONFLICT(memory_id) DO UPDATE SET
				vector = excluded.vector,
				model = excluded.model,
				dimensions = excluded.dimensions,
				magnitude = excluded.magnitude,
				vector_idx = excluded.vector_idx,
				updated_at = now()
		`
		_, err := p.db.ExecContext(ctx, query,
			emb.MemoryID, blob, emb.Model, emb.Dimensions, emb.Magnitude, vec)
		if err == nil {
			return nil
		}
		p.log.Warn().Err(err).Msg("failed to store vector_idx, falling back to BYTEA only")
	}

	query := `
		INSERT INTO memory_embeddings (memory_id, vector, model, dimensions, magnitude, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT(memory_id) DO UPDATE SET
			vector = excluded.vector,
			model = excluded.model,
			dimensions = excluded.dimensions,
			magnitude = excluded.magnitude,
			updated_at = now()
	`
	if _, err := p.db.ExecContext(ctx, query,
		emb.MemoryID, blob, emb.Model, emb.Dimensions, emb.Magnitude); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}

	return nil
}

// GetEmbedding retrieves the embedding for a memory.
func (p *SemanticIndex) GetEmbedding(ctx context.Context, memoryID string) (*types.Embedding, error) {
	if memoryID == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	var (
		emb  types.Embedding
		blob []byte
	)

	err := p.db.QueryRowContext(ctx,
		`SELECT memory_id, vector, model, dimensions, magnitude
		 FROM memory_embeddings WHERE memory_id = $1`, memoryID).
		Scan(&emb.MemoryID, &blob, &emb.Model, &emb.Dimensions, &emb.Magnitude)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}

	emb.Vector, err = deserializeVector(blob, emb.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize embedding: %w", err)
	}

	return &emb, nil
}

// DeleteEmbedding removes the embedding for a memory.
func (p *SemanticIndex) DeleteEmbedding(ctx context.Context, memoryID string) error {
	if memoryID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	result, err := p.db.ExecContext(ctx,
		`DELETE FROM memory_embeddings WHERE memory_id = $1`, memoryID)
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// SimilaritySearch ranks stored embeddings against the query vector. With
// pgvector present this is a single indexed SQL query using the cosine
// distance operator; without it, vectors are scanned in process.
func (p *SemanticIndex) SimilaritySearch(ctx context.Context, queryVector []float64, limit int, minScore float64) ([]storage.SimilarityResult, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("%w: query vector cannot be empty", storage.ErrInvalidInput)
	}
	if limit < 1 {
		limit = 10
	}

	if p.pgvectorAvailable {
		return p.indexedSearch(ctx, queryVector, limit, minScore)
	}
	return p.scanSearch(ctx, queryVector, limit, minScore)
}

func (p *SemanticIndex) indexedSearch(ctx context.Context, queryVector []float64, limit int, minScore float64) ([]storage.SimilarityResult, error) {
	f32 := make([]float32, len(queryVector))
	for i, v := range queryVector {
		f32[i] = float32(v)
	}
	vec := pgvector.NewVector(f32)

	// <=> is cosine distance; similarity = 1 - distance.
	rows, err := p.db.QueryContext(ctx, `
		SELECT memory_id, 1 - (vector_idx <=> $1) AS similarity
		FROM memory_embeddings
		WHERE vector_idx IS NOT NULL
		  AND 1 - (vector_idx <=> $1) >= $2
		ORDER BY vector_idx <=> $1 ASC
		LIMIT $3`, vec, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to run indexed similarity search: %w", err)
	}
	defer rows.Close()

	var results []storage.SimilarityResult
	for rows.Next() {
		var r storage.SimilarityResult
		if err := rows.Scan(&r.MemoryID, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan similarity result: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

func (p *SemanticIndex) scanSearch(ctx context.Context, queryVector []float64, limit int, minScore float64) ([]storage.SimilarityResult, error) {
	queryMag := types.Magnitude(queryVector)
	if queryMag == 0 {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT memory_id, vector, dimensions, magnitude FROM memory_embeddings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var results []storage.SimilarityResult
	for rows.Next() {
		var (
			memoryID   string
			blob       []byte
			dimensions int
			magnitude  float64
		)
		if err := rows.Scan(&memoryID, &blob, &dimensions, &magnitude); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}

		if dimensions != len(queryVector) {
			continue
		}

		vector, err := deserializeVector(blob, dimensions)
		if err != nil {
			p.log.Warn().Err(err).Str("memory_id", memoryID).Msg("corrupt embedding blob, skipping")
			continue
		}

		similarity := types.CosineSimilarity(queryVector, vector, queryMag, magnitude)
		if similarity >= minScore {
			results = append(results, storage.SimilarityResult{MemoryID: memoryID, Similarity: similarity})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func serializeVector(vector []float64) []byte {
	buf := make([]byte, len(vector)*8)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func deserializeVector(buf []byte, dimensions int) ([]float64, error) {
	if len(buf) != dimensions*8 {
		return nil, fmt.Errorf("%w: blob size %d does not match dimensions %d",
			storage.ErrDimensionMismatch, len(buf), dimensions)
	}
	vector := make([]float64, dimensions)
	for i := range vector {
		vector[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return vector, nil
}
