package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// StoreEmbedding upserts the embedding for a memory. The vector is
// serialized as a little-endian float64 BLOB; the magnitude is precomputed
// here if the caller left it zero so similarity scans never recompute norms.
func (s *Store) StoreEmbedding(ctx context.Context, emb *types.Embedding) error {
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

	query := `
		INSERT INTO memory_embeddings (memory_id, vector, model, dimensions, magnitude, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(memory_id) DO UPDATE SET
			vector = excluded.vector,
			model = excluded.model,
			dimensions = excluded.dimensions,
			magnitude = excluded.magnitude,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := s.db.ExecContext(ctx, query,
		emb.MemoryID, blob, emb.Model, emb.Dimensions, emb.Magnitude); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}

	return nil
}

// GetEmbedding retrieves the embedding for a memory.
func (s *Store) GetEmbedding(ctx context.Context, memoryID string) (*types.Embedding, error) {
	if memoryID == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	var (
		emb  types.Embedding
		blob []byte
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT memory_id, vector, model, dimensions, magnitude
		 FROM memory_embeddings WHERE memory_id = ?`, memoryID).
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
func (s *Store) DeleteEmbedding(ctx context.Context, memoryID string) error {
	if memoryID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_embeddings WHERE memory_id = ?`, memoryID)
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}

	return requireRowAffected(result)
}

// SimilaritySearch brute-force scans all embeddings of non-archived memories
// and returns the top matches by cosine similarity. Embeddings whose
// dimension count differs from the query vector (e.g. written by an older
// model) are skipped with a log line rather than failing the whole search.
func (s *Store) SimilaritySearch(ctx context.Context, queryVector []float64, limit int, minScore float64) ([]storage.SimilarityResult, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("%w: query vector cannot be empty", storage.ErrInvalidInput)
	}
	if limit < 1 {
		limit = 10
	}

	queryMag := types.Magnitude(queryVector)
	if queryMag == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT e.memory_id, e.vector, e.dimensions, e.magnitude
		 FROM memory_embeddings e
		 JOIN memories m ON m.id = e.memory_id
		 WHERE m.is_archived = 0`)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var (
		results []storage.SimilarityResult
		skipped int
	)

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
			skipped++
			continue
		}

		vector, err := deserializeVector(blob, dimensions)
		if err != nil {
			s.log.Warn().Err(err).Str("memory_id", memoryID).Msg("corrupt embedding blob, skipping")
			continue
		}

		similarity := types.CosineSimilarity(queryVector, vector, queryMag, magnitude)
		if similarity >= minScore {
			results = append(results, storage.SimilarityResult{
				MemoryID:   memoryID,
				Similarity: similarity,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if skipped > 0 {
		s.log.Debug().Int("skipped", skipped).Int("query_dimensions", len(queryVector)).
			Msg("skipped embeddings with mismatched dimensions")
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

// serializeVector converts a float64 slice to little-endian binary.
func serializeVector(vector []float64) []byte {
	buf := make([]byte, len(vector)*8)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// deserializeVector converts little-endian binary back to a float64 slice.
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
