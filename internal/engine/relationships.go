package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// RelationshipInput describes a directed edge observation between two
// entities, referenced by name. Unknown entities are created.
type RelationshipInput struct {
	FromName string
	FromType string
	ToName   string
	ToType   string
	Type     string
	Metadata map[string]interface{}
	StartedAt *time.Time
	EndedAt   *time.Time
}

// FindOrCreateRelationship resolves both endpoints (creating them when
// unknown) and upserts the directed edge. An existing (from, to, type)
// triple absorbs the new observation — metadata keys merge with incoming
// values winning, missing validity bounds are filled — instead of producing
// a duplicate row. Direction matters: (A, B, works_at) and (B, A, works_at)
// are distinct edges.
func (e *Engine) FindOrCreateRelationship(ctx context.Context, input RelationshipInput) (*types.Relationship, bool, error) {
	input.Type = strings.TrimSpace(input.Type)
	if input.Type == "" {
		return nil, false, fmt.Errorf("%w: relationship type is required", storage.ErrInvalidInput)
	}

	from, _, err := e.FindOrCreateEntity(ctx, EntityInput{EntityType: input.FromType, Name: input.FromName})
	if err != nil {
		return nil, false, fmt.Errorf("resolving from entity: %w", err)
	}
	to, _, err := e.FindOrCreateEntity(ctx, EntityInput{EntityType: input.ToType, Name: input.ToName})
	if err != nil {
		return nil, false, fmt.Errorf("resolving to entity: %w", err)
	}
	if from.ID == to.ID {
		return nil, false, fmt.Errorf("%w: relationship endpoints resolve to the same entity %s", storage.ErrInvalidInput, from.ID)
	}

	return e.upsertRelationship(ctx, from.ID, to.ID, input.Type, input.Metadata, input.StartedAt, input.EndedAt)
}

// upsertRelationship is the ID-level find-or-create, serialized on relMu so
// concurrent observations of the same edge don't race past FindByTriple and
// trip the unique index.
func (e *Engine) upsertRelationship(ctx context.Context, fromID, toID, relType string, metadata map[string]interface{}, startedAt, endedAt *time.Time) (*types.Relationship, bool, error) {
	e.relMu.Lock()
	defer e.relMu.Unlock()

	existing, err := e.store.FindByTriple(ctx, fromID, toID, relType)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}

	if existing != nil {
		changed := false
		if len(metadata) > 0 {
			if existing.Metadata == nil {
				existing.Metadata = map[string]interface{}{}
			}
			for key, value := range metadata {
				existing.Metadata[key] = value
			}
			changed = true
		}
		if existing.StartedAt == nil && startedAt != nil {
			existing.StartedAt = startedAt
			changed = true
		}
		if existing.EndedAt == nil && endedAt != nil {
			existing.EndedAt = endedAt
			changed = true
		}
		if changed {
			existing.UpdatedAt = time.Now().UTC()
			if err := e.store.UpdateRelationship(ctx, existing); err != nil {
				return nil, false, err
			}
		}
		return existing, false, nil
	}

	now := time.Now().UTC()
	rel := &types.Relationship{
		ID:           "rel:" + uuid.NewString(),
		FromEntityID: fromID,
		ToEntityID:   toID,
		Type:         relType,
		Metadata:     metadata,
		StartedAt:    startedAt,
		EndedAt:      endedAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.InsertRelationship(ctx, rel); err != nil {
		return nil, false, err
	}
	e.log.Info().Str("relationship_id", rel.ID).Str("from", fromID).Str("to", toID).
		Str("type", relType).Msg("relationship created")
	return rel, true, nil
}
