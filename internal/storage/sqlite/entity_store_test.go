package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

func TestEntityRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entity := newTestEntity("Sarah Chen")
	entity.Email = "sarah@example.com"
	entity.Attributes = types.AttributeBag{"employer": "Acme"}
	require.NoError(t, store.InsertEntity(ctx, entity))

	got, err := store.GetEntity(ctx, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sarah Chen", got.Name)
	assert.Equal(t, "sarah@example.com", got.Email)
	assert.Equal(t, "Acme", got.Attributes["employer"])
	assert.Equal(t, 1, got.MentionCount, "mention count defaults to 1 on create")
	assert.True(t, got.IsActive)
}

func TestFindActiveByEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entity := newTestEntity("Sarah Chen")
	entity.Email = "sarah@example.com"
	require.NoError(t, store.InsertEntity(ctx, entity))

	t.Run("matches exact email", func(t *testing.T) {
		got, err := store.FindActiveByEmail(ctx, types.EntityTypePerson, "sarah@example.com")
		require.NoError(t, err)
		assert.Equal(t, entity.ID, got.ID)
	})

	t.Run("matches case-insensitively", func(t *testing.T) {
		got, err := store.FindActiveByEmail(ctx, types.EntityTypePerson, "Sarah@Example.com")
		require.NoError(t, err)
		assert.Equal(t, entity.ID, got.ID)
	})

	t.Run("ignores inactive entities", func(t *testing.T) {
		require.NoError(t, store.DeactivateEntity(ctx, entity.ID))

		_, err := store.FindActiveByEmail(ctx, types.EntityTypePerson, "sarah@example.com")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestFindActiveByName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entity := newTestEntity("Sarah Chen")
	require.NoError(t, store.InsertEntity(ctx, entity))

	t.Run("matches exact name case-insensitively", func(t *testing.T) {
		got, err := store.FindActiveByName(ctx, "sarah chen", types.EntityTypePerson)
		require.NoError(t, err)
		assert.Equal(t, entity.ID, got.ID)
	})

	t.Run("matches partial name against stored full name", func(t *testing.T) {
		got, err := store.FindActiveByName(ctx, "Sarah", types.EntityTypePerson)
		require.NoError(t, err)
		assert.Equal(t, entity.ID, got.ID)
	})

	t.Run("matches longer name against stored shorter name", func(t *testing.T) {
		got, err := store.FindActiveByName(ctx, "Sarah Chen PhD", types.EntityTypePerson)
		require.NoError(t, err)
		assert.Equal(t, entity.ID, got.ID)
	})

	t.Run("exact match wins over substring match", func(t *testing.T) {
		exact := newTestEntity("Sarah")
		require.NoError(t, store.InsertEntity(ctx, exact))

		got, err := store.FindActiveByName(ctx, "Sarah", types.EntityTypePerson)
		require.NoError(t, err)
		assert.Equal(t, exact.ID, got.ID)
	})

	t.Run("type narrows the search", func(t *testing.T) {
		_, err := store.FindActiveByName(ctx, "Sarah Chen", types.EntityTypePlace)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("misses unknown names", func(t *testing.T) {
		_, err := store.FindActiveByName(ctx, "Nobody Nowhere", types.EntityTypePerson)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestListEntities(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	person := newTestEntity("Sarah Chen")
	require.NoError(t, store.InsertEntity(ctx, person))

	place := newTestEntity("Blue Bottle Cafe")
	place.EntityType = types.EntityTypePlace
	require.NoError(t, store.InsertEntity(ctx, place))

	inactive := newTestEntity("Former Colleague")
	require.NoError(t, store.InsertEntity(ctx, inactive))
	require.NoError(t, store.DeactivateEntity(ctx, inactive.ID))

	t.Run("filters by type and excludes inactive", func(t *testing.T) {
		result, err := store.ListEntities(ctx, storage.ListOptions{Type: types.EntityTypePerson})
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, person.ID, result.Items[0].ID)
	})

	t.Run("includes inactive when asked", func(t *testing.T) {
		result, err := store.ListEntities(ctx, storage.ListOptions{Type: types.EntityTypePerson, IncludeArchived: true})
		require.NoError(t, err)
		assert.Equal(t, 2, result.Total)
	})

	t.Run("sorts by name", func(t *testing.T) {
		result, err := store.ListEntities(ctx, storage.ListOptions{SortBy: "name", SortOrder: "asc"})
		require.NoError(t, err)
		require.Len(t, result.Items, 2)
		assert.Equal(t, place.ID, result.Items[0].ID)
	})
}

func TestPurgeEntityCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sarah := newTestEntity("Sarah Chen")
	require.NoError(t, store.InsertEntity(ctx, sarah))
	acme := newTestEntity("Acme Corp")
	acme.EntityType = types.EntityTypeOrganization
	require.NoError(t, store.InsertEntity(ctx, acme))

	rel := &types.Relationship{
		ID:           "rel:test",
		FromEntityID: sarah.ID,
		ToEntityID:   acme.ID,
		Type:         types.RelWorksAt,
	}
	require.NoError(t, store.InsertRelationship(ctx, rel))

	mem := newTestMemory("met Sarah at Acme")
	require.NoError(t, store.Insert(ctx, mem))
	require.NoError(t, store.LinkEntity(ctx, mem.ID, sarah.ID, types.LinkTypeMentioned))

	require.NoError(t, store.PurgeEntity(ctx, sarah.ID))

	_, err := store.GetEntity(ctx, sarah.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	rels, err := store.ListForEntity(ctx, acme.ID)
	require.NoError(t, err)
	assert.Empty(t, rels, "relationships cascade on purge")

	got, err := store.Get(ctx, mem.ID)
	require.NoError(t, err)
	assert.False(t, got.IsArchived, "memories survive entity purge")

	entities, err := store.EntitiesFor(ctx, mem.ID)
	require.NoError(t, err)
	assert.Empty(t, entities, "memory links cascade on purge")
}

func TestMemoriesFor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entity := newTestEntity("Sarah Chen")
	require.NoError(t, store.InsertEntity(ctx, entity))

	active := newTestMemory("Sarah likes hiking")
	require.NoError(t, store.Insert(ctx, active))
	require.NoError(t, store.LinkEntity(ctx, active.ID, entity.ID, types.LinkTypeMentioned))

	archived := newTestMemory("outdated Sarah note")
	require.NoError(t, store.Insert(ctx, archived))
	require.NoError(t, store.LinkEntity(ctx, archived.ID, entity.ID, types.LinkTypeMentioned))
	require.NoError(t, store.Archive(ctx, archived.ID))

	memories, err := store.MemoriesFor(ctx, entity.ID, 10)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, active.ID, memories[0].ID)
}
