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

// EntityInput describes an entity observation: either a brand-new entity or
// new information about one we already track. FindOrCreateEntity reconciles
// the two cases.
type EntityInput struct {
	EntityType    string
	EntitySubtype string
	Name          string
	Description   string
	Email         string
	Phone         string
	Attributes    types.AttributeBag
	StartDate     *time.Time
	EndDate       *time.Time
}

// EntityDetails is the full read-side view of an entity.
type EntityDetails struct {
	Entity        *types.Entity        `json:"entity"`
	Relationships []RelatedEntity      `json:"relationships,omitempty"`
	Memories      []types.Memory       `json:"memories,omitempty"`
}

// RelatedEntity pairs a relationship with the entity on its far side,
// resolved from whichever column isn't the subject.
type RelatedEntity struct {
	Relationship types.Relationship `json:"relationship"`
	Other        *types.Entity      `json:"other,omitempty"`
}

// FindOrCreateEntity resolves an observation to an entity, creating it when
// nothing matches. Resolution order: exact email among active entities of the
// same type, then case-insensitive (substring-tolerant) name. A match is
// updated non-destructively: values are only replaced when the incoming one
// is judged more specific, and the mention counter is bumped either way.
//
// The read-then-write sequence is serialized on entityMu so two concurrent
// observations of the same new person produce one entity, not two.
func (e *Engine) FindOrCreateEntity(ctx context.Context, input EntityInput) (*types.Entity, bool, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, false, fmt.Errorf("%w: entity name is required", storage.ErrInvalidInput)
	}
	if input.EntityType == "" {
		input.EntityType = types.EntityTypeOther
	}
	if !types.IsValidEntityType(input.EntityType) {
		return nil, false, fmt.Errorf("%w: unknown entity type %q", storage.ErrInvalidInput, input.EntityType)
	}

	// Contact details may arrive inside the attribute bag under any of the
	// common aliases; promote them to columns before resolution so an email
	// seen as attributes["work_email"] still acts as an identity key.
	promotedEmail, promotedPhone, rest := input.Attributes.Promote()
	if input.Email == "" {
		input.Email = promotedEmail
	}
	if input.Phone == "" {
		input.Phone = promotedPhone
	}
	input.Attributes = rest

	e.entityMu.Lock()
	defer e.entityMu.Unlock()

	existing, err := e.resolveEntity(ctx, input)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}

	if existing != nil {
		if err := e.mergeEntity(ctx, existing, input); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	now := time.Now().UTC()
	entity := &types.Entity{
		ID:            "ent:" + uuid.NewString(),
		EntityType:    input.EntityType,
		EntitySubtype: input.EntitySubtype,
		Name:          input.Name,
		Description:   input.Description,
		Email:         input.Email,
		Phone:         input.Phone,
		Attributes:    input.Attributes,
		MentionCount:  1,
		IsActive:      true,
		StartDate:     input.StartDate,
		EndDate:       input.EndDate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	entity.LastMentionedAt = &now

	if err := e.store.InsertEntity(ctx, entity); err != nil {
		return nil, false, err
	}
	e.log.Info().Str("entity_id", entity.ID).Str("name", entity.Name).
		Str("type", entity.EntityType).Msg("entity created")
	return entity, true, nil
}

// resolveEntity finds the existing entity an observation refers to, if any.
// Email is the stronger key: when the observation carries one, an exact email
// match wins even if the name differs (people change display names, emails
// rarely move between people).
func (e *Engine) resolveEntity(ctx context.Context, input EntityInput) (*types.Entity, error) {
	if input.Email != "" {
		entity, err := e.store.FindActiveByEmail(ctx, input.EntityType, input.Email)
		if err == nil {
			return entity, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	return e.store.FindActiveByName(ctx, input.Name, input.EntityType)
}

// mergeEntity folds an observation into an existing entity without losing
// information: longer/more specific values win, missing fields are filled,
// and the attribute bag merges non-destructively.
func (e *Engine) mergeEntity(ctx context.Context, existing *types.Entity, input EntityInput) error {
	if e.comparator.IsMoreSpecific(existing.Name, input.Name) {
		existing.Name = input.Name
	}
	if e.comparator.IsMoreSpecific(existing.Description, input.Description) {
		existing.Description = input.Description
	}
	if existing.Email == "" {
		existing.Email = input.Email
	}
	if existing.Phone == "" {
		existing.Phone = input.Phone
	}
	if existing.EntitySubtype == "" {
		existing.EntitySubtype = input.EntitySubtype
	}
	if existing.StartDate == nil {
		existing.StartDate = input.StartDate
	}
	if existing.EndDate == nil {
		existing.EndDate = input.EndDate
	}
	existing.Attributes = existing.Attributes.MergeNonDestructive(input.Attributes, e.comparator)

	now := time.Now().UTC()
	existing.MentionCount++
	existing.LastMentionedAt = &now
	existing.UpdatedAt = now

	return e.store.UpdateEntity(ctx, existing)
}

// linkEntities resolves a list of entity names against the store and links
// each to the memory. When createMissing is false, unknown names are skipped
// rather than spawning new entities (used on the dedup path, where a repeated
// note shouldn't grow the graph).
func (e *Engine) linkEntities(ctx context.Context, memoryID string, names []string, entityType, linkType string, createMissing bool) ([]*types.Entity, error) {
	var linked []*types.Entity
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		var entity *types.Entity
		if createMissing {
			var err error
			entity, _, err = e.FindOrCreateEntity(ctx, EntityInput{EntityType: entityType, Name: name})
			if err != nil {
				return linked, err
			}
		} else {
			var err error
			entity, err = e.store.FindActiveByName(ctx, name, entityType)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return linked, err
			}
		}

		if err := e.store.LinkEntity(ctx, memoryID, entity.ID, linkType); err != nil {
			return linked, err
		}
		linked = append(linked, entity)
	}
	return linked, nil
}

// GetEntityDetails returns an entity with its relationships (far-side
// entities resolved) and its most recent memories. ref may be an entity ID
// or a name.
func (e *Engine) GetEntityDetails(ctx context.Context, ref string, entityType string) (*EntityDetails, error) {
	entity, err := e.lookupEntity(ctx, ref, entityType)
	if err != nil {
		return nil, err
	}

	details := &EntityDetails{Entity: entity}

	rels, err := e.store.ListForEntity(ctx, entity.ID)
	if err != nil {
		return nil, err
	}
	for _, rel := range rels {
		otherID := rel.ToEntityID
		if otherID == entity.ID {
			otherID = rel.FromEntityID
		}
		other, err := e.store.GetEntity(ctx, otherID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		details.Relationships = append(details.Relationships, RelatedEntity{
			Relationship: rel,
			Other:        other,
		})
	}

	memories, err := e.store.MemoriesFor(ctx, entity.ID, 20)
	if err != nil {
		return nil, err
	}
	details.Memories = memories

	return details, nil
}

// lookupEntity resolves an entity reference: IDs hit the primary key, names
// go through the soft lookup.
func (e *Engine) lookupEntity(ctx context.Context, ref, entityType string) (*types.Entity, error) {
	if strings.HasPrefix(ref, "ent:") {
		return e.store.GetEntity(ctx, ref)
	}
	return e.store.FindActiveByName(ctx, ref, entityType)
}

// ListPeople returns all active person entities, alphabetical by name.
func (e *Engine) ListPeople(ctx context.Context, page, limit int) (*storage.PaginatedResult[types.Entity], error) {
	return e.store.ListEntities(ctx, storage.ListOptions{
		Page:      page,
		Limit:     limit,
		Type:      types.EntityTypePerson,
		SortBy:    "name",
		SortOrder: "asc",
	})
}

// DeactivateEntity soft-removes an entity; its relationships and memory
// links survive for history.
func (e *Engine) DeactivateEntity(ctx context.Context, id string) error {
	return e.store.DeactivateEntity(ctx, id)
}

// PurgeEntity hard-deletes an entity with its relationships and memory
// links. Memories themselves are untouched.
func (e *Engine) PurgeEntity(ctx context.Context, id string) error {
	return e.store.PurgeEntity(ctx, id)
}
