package sqlite

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

func newTestRelationship(fromID, toID, relType string) *types.Relationship {
	return &types.Relationship{
		ID:           "rel:" + uuid.NewString(),
		FromEntityID: fromID,
		ToEntityID:   toID,
		Type:         relType,
	}
}

func TestRelationshipTripleUniqueness(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sarah := newTestEntity("Sarah Chen")
	require.NoError(t, store.InsertEntity(ctx, sarah))
	acme := newTestEntity("Acme Corp")
	acme.EntityType = types.EntityTypeOrganization
	require.NoError(t, store.InsertEntity(ctx, acme))

	require.NoError(t, store.InsertRelationship(ctx, newTestRelationship(sarah.ID, acme.ID, types.RelWorksAt)))

	t.Run("duplicate triple is rejected", func(t *testing.T) {
		err := store.InsertRelationship(ctx, newTestRelationship(sarah.ID, acme.ID, types.RelWorksAt))
		assert.Error(t, err)
	})

	t.Run("same pair with different type is allowed", func(t *testing.T) {
		err := store.InsertRelationship(ctx, newTestRelationship(sarah.ID, acme.ID, types.RelMemberOf))
		assert.NoError(t, err)
	})

	t.Run("reversed direction is a distinct edge", func(t *testing.T) {
		err := store.InsertRelationship(ctx, newTestRelationship(acme.ID, sarah.ID, types.RelWorksAt))
		assert.NoError(t, err)
	})
}

func TestFindByTriple(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sarah := newTestEntity("Sarah Chen")
	require.NoError(t, store.InsertEntity(ctx, sarah))
	tom := newTestEntity("Tom Park")
	require.NoError(t, store.InsertEntity(ctx, tom))

	rel := newTestRelationship(sarah.ID, tom.ID, types.RelManages)
	require.NoError(t, store.InsertRelationship(ctx, rel))

	got, err := store.FindByTriple(ctx, sarah.ID, tom.ID, types.RelManages)
	require.NoError(t, err)
	assert.Equal(t, rel.ID, got.ID)

	_, err = store.FindByTriple(ctx, tom.ID, sarah.ID, types.RelManages)
	assert.ErrorIs(t, err, storage.ErrNotFound, "direction matters on lookup")
}

func TestListForEntitySearchesBothDirections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sarah := newTestEntity("Sarah Chen")
	require.NoError(t, store.InsertEntity(ctx, sarah))
	tom := newTestEntity("Tom Park")
	require.NoError(t, store.InsertEntity(ctx, tom))
	ana := newTestEntity("Ana Ruiz")
	require.NoError(t, store.InsertEntity(ctx, ana))

	require.NoError(t, store.InsertRelationship(ctx, newTestRelationship(sarah.ID, tom.ID, types.RelManages)))
	require.NoError(t, store.InsertRelationship(ctx, newTestRelationship(ana.ID, sarah.ID, types.RelWorksWith)))

	rels, err := store.ListForEntity(ctx, sarah.ID)
	require.NoError(t, err)
	assert.Len(t, rels, 2, "edges where the entity is source or target both count")

	rels, err = store.ListForEntity(ctx, tom.ID)
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestUpdateRelationshipMetadata(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sarah := newTestEntity("Sarah Chen")
	require.NoError(t, store.InsertEntity(ctx, sarah))
	acme := newTestEntity("Acme Corp")
	acme.EntityType = types.EntityTypeOrganization
	require.NoError(t, store.InsertEntity(ctx, acme))

	rel := newTestRelationship(sarah.ID, acme.ID, types.RelWorksAt)
	rel.Metadata = map[string]interface{}{"title": "Engineer"}
	require.NoError(t, store.InsertRelationship(ctx, rel))

	rel.Metadata["title"] = "Staff Engineer"
	require.NoError(t, store.UpdateRelationship(ctx, rel))

	got, err := store.FindByTriple(ctx, sarah.ID, acme.ID, types.RelWorksAt)
	require.NoError(t, err)
	assert.Equal(t, "Staff Engineer", got.Metadata["title"])
}
