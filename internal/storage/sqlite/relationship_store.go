package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

const relationshipColumns = `id, from_entity_id, to_entity_id, relationship_type,
	metadata, started_at, ended_at, created_at, updated_at`

// InsertRelationship creates a new relationship row. The unique index on
// (from_entity_id, to_entity_id, relationship_type) rejects duplicates.
func (s *Store) InsertRelationship(ctx context.Context, rel *types.Relationship) error {
	if rel == nil {
		return storage.ErrInvalidInput
	}
	if rel.ID == "" {
		return fmt.Errorf("%w: relationship ID is required", storage.ErrInvalidInput)
	}
	if rel.FromEntityID == "" || rel.ToEntityID == "" {
		return fmt.Errorf("%w: from and to entity IDs are required", storage.ErrInvalidInput)
	}
	if rel.Type == "" {
		return fmt.Errorf("%w: relationship type is required", storage.ErrInvalidInput)
	}

	metadataJSON, err := marshalJSONField(rel.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = now
	}
	if rel.UpdatedAt.IsZero() {
		rel.UpdatedAt = now
	}

	query := `
		INSERT INTO memory_relationships (
			id, from_entity_id, to_entity_id, relationship_type,
			metadata, started_at, ended_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		rel.ID, rel.FromEntityID, rel.ToEntityID, rel.Type,
		metadataJSON, nullTime(rel.StartedAt), nullTime(rel.EndedAt),
		rel.CreatedAt, rel.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert relationship: %w", err)
	}

	return nil
}

// UpdateRelationship overwrites an existing relationship row.
func (s *Store) UpdateRelationship(ctx context.Context, rel *types.Relationship) error {
	if rel == nil || rel.ID == "" {
		return fmt.Errorf("%w: relationship with ID is required", storage.ErrInvalidInput)
	}

	metadataJSON, err := marshalJSONField(rel.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	rel.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx,
		`UPDATE memory_relationships SET
			metadata = ?, started_at = ?, ended_at = ?, updated_at = ?
		 WHERE id = ?`,
		metadataJSON, nullTime(rel.StartedAt), nullTime(rel.EndedAt),
		rel.UpdatedAt, rel.ID)
	if err != nil {
		return fmt.Errorf("failed to update relationship: %w", err)
	}

	return requireRowAffected(result)
}

// FindByTriple returns the relationship with the exact (from, to, type)
// triple. Direction matters: (A, B, works_at) never matches (B, A, works_at).
func (s *Store) FindByTriple(ctx context.Context, fromID, toID, relType string) (*types.Relationship, error) {
	if fromID == "" || toID == "" || relType == "" {
		return nil, fmt.Errorf("%w: from, to, and type are required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+relationshipColumns+` FROM memory_relationships
		 WHERE from_entity_id = ? AND to_entity_id = ? AND relationship_type = ?`,
		fromID, toID, relType)

	rel, err := scanRelationship(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find relationship: %w", err)
	}

	return rel, nil
}

// ListForEntity returns all relationships touching the entity, in either
// direction, newest first.
func (s *Store) ListForEntity(ctx context.Context, entityID string) ([]types.Relationship, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+relationshipColumns+` FROM memory_relationships
		 WHERE from_entity_id = ? OR to_entity_id = ?
		 ORDER BY created_at DESC`, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	defer rows.Close()

	var rels []types.Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		rels = append(rels, *rel)
	}

	return rels, rows.Err()
}

func scanRelationship(row scanner) (*types.Relationship, error) {
	var (
		r            types.Relationship
		metadataJSON sql.NullString
		startedAt    sql.NullTime
		endedAt      sql.NullTime
	)

	err := row.Scan(
		&r.ID, &r.FromEntityID, &r.ToEntityID, &r.Type,
		&metadataJSON, &startedAt, &endedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if startedAt.Valid {
		r.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		r.EndedAt = &endedAt.Time
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &r, nil
}
