package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/storage"
)

func TestFullTextSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	hiking := newTestMemory("Sarah recommended the Skyline hiking trail")
	require.NoError(t, store.Insert(ctx, hiking))

	coffee := newTestMemory("Tom prefers dark roast coffee from Blue Bottle")
	require.NoError(t, store.Insert(ctx, coffee))

	archived := newTestMemory("old hiking note that was archived")
	require.NoError(t, store.Insert(ctx, archived))
	require.NoError(t, store.Archive(ctx, archived.ID))

	t.Run("matches content tokens", func(t *testing.T) {
		result, err := store.FullTextSearch(ctx, storage.SearchOptions{Query: "hiking"})
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, hiking.ID, result.Items[0].ID)
	})

	t.Run("archived memories never match", func(t *testing.T) {
		result, err := store.FullTextSearch(ctx, storage.SearchOptions{Query: "archived"})
		require.NoError(t, err)
		assert.Empty(t, result.Items)
	})

	t.Run("prefix matching", func(t *testing.T) {
		result, err := store.FullTextSearch(ctx, storage.SearchOptions{Query: "hik"})
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, hiking.ID, result.Items[0].ID)
	})

	t.Run("special characters are sanitised", func(t *testing.T) {
		_, err := store.FullTextSearch(ctx, storage.SearchOptions{Query: `"hiking AND (trail*`})
		assert.NoError(t, err)
	})

	t.Run("empty query lists recent memories", func(t *testing.T) {
		result, err := store.FullTextSearch(ctx, storage.SearchOptions{Query: "   "})
		require.NoError(t, err)
		assert.Len(t, result.Items, 2)
	})

	t.Run("summary is searchable", func(t *testing.T) {
		meeting := newTestMemory("very long transcript body without the keyword")
		meeting.Summary = "quarterly budget review"
		require.NoError(t, store.Insert(ctx, meeting))

		result, err := store.FullTextSearch(ctx, storage.SearchOptions{Query: "quarterly budget"})
		require.NoError(t, err)
		require.NotEmpty(t, result.Items)
		assert.Equal(t, meeting.ID, result.Items[0].ID)
	})
}

func TestSearchEntities(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entity := newTestEntity("Sarah Chen")
	entity.Description = "climbing partner from the gym"
	require.NoError(t, store.InsertEntity(ctx, entity))

	inactive := newTestEntity("Sarah Miller")
	require.NoError(t, store.InsertEntity(ctx, inactive))
	require.NoError(t, store.DeactivateEntity(ctx, inactive.ID))

	results, err := store.SearchEntities(ctx, "climbing", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, entity.ID, results[0].ID)

	results, err = store.SearchEntities(ctx, "sarah", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1, "inactive entities are excluded")
}

func TestSanitiseFTSQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple words get prefix wildcards", "coffee preferences", "coffee* OR preferences*"},
		{"stop words are dropped", "what is the hiking trail", "hiking* OR trail*"},
		{"special characters are stripped", `"budget" (review)*`, "budget* OR review*"},
		{"possessives lose the fragment", "Sarah's dog", "sarah* OR dog*"},
		{"all stop words fall back to cleaned text", "is it", "is it"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitiseFTSQuery(tt.input))
		})
	}
}
