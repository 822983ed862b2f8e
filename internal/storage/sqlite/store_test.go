package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestMemory(content string) *types.Memory {
	m := &types.Memory{
		ID:      "mem:" + uuid.NewString(),
		Type:    types.MemoryTypeNote,
		Content: content,
	}
	m.RefreshDerived()
	return m
}

func newTestEntity(name string) *types.Entity {
	return &types.Entity{
		ID:         "ent:" + uuid.NewString(),
		EntityType: types.EntityTypePerson,
		Name:       name,
		IsActive:   true,
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mem := newTestMemory("remember to water the plants")
	mem.Metadata = map[string]interface{}{"source": "test"}
	require.NoError(t, store.Insert(ctx, mem))

	got, err := store.Get(ctx, mem.ID)
	require.NoError(t, err)
	assert.Equal(t, mem.Content, got.Content)
	assert.Equal(t, mem.ContentHash, got.ContentHash)
	assert.Equal(t, len(mem.Content), got.ContentLength)
	assert.Equal(t, "test", got.Metadata["source"])
	assert.Equal(t, 1.0, got.RelevanceScore)
	assert.False(t, got.IsArchived)
}

func TestGetMissingMemory(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "mem:"+uuid.NewString())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInsertRejectsInvalidType(t *testing.T) {
	store := newTestStore(t)

	mem := newTestMemory("content")
	mem.Type = "bogus"
	err := store.Insert(context.Background(), mem)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestFindActiveByHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mem := newTestMemory("unique content here")
	require.NoError(t, store.Insert(ctx, mem))

	t.Run("finds active memory by hash", func(t *testing.T) {
		got, err := store.FindActiveByHash(ctx, mem.ContentHash)
		require.NoError(t, err)
		assert.Equal(t, mem.ID, got.ID)
	})

	t.Run("archived memory never matches", func(t *testing.T) {
		require.NoError(t, store.Archive(ctx, mem.ID))

		_, err := store.FindActiveByHash(ctx, mem.ContentHash)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("new active memory can share hash with archived one", func(t *testing.T) {
		again := newTestMemory("unique content here")
		require.NoError(t, store.Insert(ctx, again))

		got, err := store.FindActiveByHash(ctx, again.ContentHash)
		require.NoError(t, err)
		assert.Equal(t, again.ID, got.ID)
	})
}

func TestArchiveAndRestore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mem := newTestMemory("archivable")
	require.NoError(t, store.Insert(ctx, mem))

	require.NoError(t, store.Archive(ctx, mem.ID))
	got, err := store.Get(ctx, mem.ID)
	require.NoError(t, err)
	assert.True(t, got.IsArchived, "archived memory should remain retrievable by ID")

	require.NoError(t, store.Restore(ctx, mem.ID))
	got, err = store.Get(ctx, mem.ID)
	require.NoError(t, err)
	assert.False(t, got.IsArchived)

	assert.ErrorIs(t, store.Archive(ctx, "mem:missing"), storage.ErrNotFound)
}

func TestRecordAccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mem := newTestMemory("accessed")
	require.NoError(t, store.Insert(ctx, mem))

	require.NoError(t, store.RecordAccess(ctx, mem.ID))
	require.NoError(t, store.RecordAccess(ctx, mem.ID))

	got, err := store.Get(ctx, mem.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AccessCount)
	require.NotNil(t, got.LastAccessedAt)
	assert.WithinDuration(t, time.Now(), *got.LastAccessedAt, 5*time.Second)
}

func TestListMemories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	note := newTestMemory("a note")
	require.NoError(t, store.Insert(ctx, note))

	fact := newTestMemory("a fact")
	fact.Type = types.MemoryTypeFact
	require.NoError(t, store.Insert(ctx, fact))

	archived := newTestMemory("archived note")
	archived.IsArchived = true
	require.NoError(t, store.Insert(ctx, archived))

	t.Run("excludes archived by default", func(t *testing.T) {
		result, err := store.List(ctx, storage.ListOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, result.Total)
	})

	t.Run("includes archived when asked", func(t *testing.T) {
		result, err := store.List(ctx, storage.ListOptions{IncludeArchived: true})
		require.NoError(t, err)
		assert.Equal(t, 3, result.Total)
	})

	t.Run("filters by type", func(t *testing.T) {
		result, err := store.List(ctx, storage.ListOptions{Type: types.MemoryTypeFact})
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, fact.ID, result.Items[0].ID)
	})

	t.Run("filters by linked entity", func(t *testing.T) {
		entity := newTestEntity("Sarah Chen")
		require.NoError(t, store.InsertEntity(ctx, entity))
		require.NoError(t, store.LinkEntity(ctx, note.ID, entity.ID, types.LinkTypeMentioned))

		result, err := store.List(ctx, storage.ListOptions{EntityID: entity.ID})
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, note.ID, result.Items[0].ID)
	})

	t.Run("filters by tag", func(t *testing.T) {
		_, err := store.AttachOrCreate(ctx, fact.ID, "gardening")
		require.NoError(t, err)

		result, err := store.List(ctx, storage.ListOptions{TagName: "gardening"})
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, fact.ID, result.Items[0].ID)
	})

	t.Run("paginates", func(t *testing.T) {
		result, err := store.List(ctx, storage.ListOptions{Limit: 1, Page: 1})
		require.NoError(t, err)
		assert.Len(t, result.Items, 1)
		assert.True(t, result.HasMore)
	})
}

func TestDueReminders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	soon := newTestMemory("dentist appointment")
	soon.Type = types.MemoryTypeReminder
	at := now.Add(2 * time.Hour)
	soon.ReminderAt = &at
	require.NoError(t, store.Insert(ctx, soon))

	distant := newTestMemory("renew passport")
	distant.Type = types.MemoryTypeReminder
	far := now.Add(30 * 24 * time.Hour)
	distant.ReminderAt = &far
	require.NoError(t, store.Insert(ctx, distant))

	past := newTestMemory("already happened")
	past.Type = types.MemoryTypeReminder
	ago := now.Add(-time.Hour)
	past.ReminderAt = &ago
	require.NoError(t, store.Insert(ctx, past))

	due, err := store.DueReminders(ctx, now, now.Add(7*24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, soon.ID, due[0].ID)
}

func TestLinkEntityIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mem := newTestMemory("met with Sarah")
	require.NoError(t, store.Insert(ctx, mem))
	entity := newTestEntity("Sarah Chen")
	require.NoError(t, store.InsertEntity(ctx, entity))

	require.NoError(t, store.LinkEntity(ctx, mem.ID, entity.ID, types.LinkTypeMentioned))
	require.NoError(t, store.LinkEntity(ctx, mem.ID, entity.ID, types.LinkTypeMentioned))

	entities, err := store.EntitiesFor(ctx, mem.ID)
	require.NoError(t, err)
	assert.Len(t, entities, 1)
}

func TestFindPreference(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pref := newTestMemory("User prefers dark roast coffee")
	pref.Type = types.MemoryTypePreference
	pref.Metadata = map[string]interface{}{"category": "coffee"}
	require.NoError(t, store.Insert(ctx, pref))

	got, err := store.FindPreference(ctx, "coffee")
	require.NoError(t, err)
	assert.Equal(t, pref.ID, got.ID)

	_, err = store.FindPreference(ctx, "tea")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
