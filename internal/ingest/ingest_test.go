package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/engine"
	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/internal/storage/sqlite"
	"github.com/engramdev/engram/pkg/types"
)

func newTestIngestor(t *testing.T) (*Ingestor, *engine.Engine, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	eng := engine.New(store, nil, engine.Config{}, zerolog.Nop())
	return New(eng, zerolog.Nop()), eng, store
}

func TestIngestEmail(t *testing.T) {
	ing, _, store := newTestIngestor(t)
	ctx := context.Background()

	result, err := ing.IngestEmail(ctx, EmailPayload{
		From:    Address{Name: "Sarah Chen", Email: "sarah@example.com"},
		To:      []Address{{Name: "James", Email: "james@example.com"}},
		Subject: "Offsite planning",
		Body:    "Can we lock the venue by Friday?",
	})
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.ElementsMatch(t, []string{"Sarah Chen", "James"}, result.People)

	memory, err := store.Get(ctx, result.MemoryID)
	require.NoError(t, err)
	assert.Contains(t, memory.Content, "Offsite planning")
	assert.Contains(t, memory.Content, "lock the venue")
	assert.Equal(t, "email", memory.Metadata["source"])

	sender, err := store.FindActiveByEmail(ctx, types.EntityTypePerson, "sarah@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Sarah Chen", sender.Name)
}

func TestIngestEmailResolvesSenderByAddress(t *testing.T) {
	ing, _, store := newTestIngestor(t)
	ctx := context.Background()

	_, err := ing.IngestEmail(ctx, EmailPayload{
		From:    Address{Name: "S. Chen", Email: "sarah@example.com"},
		Subject: "first",
		Body:    "first body",
	})
	require.NoError(t, err)

	_, err = ing.IngestEmail(ctx, EmailPayload{
		From:    Address{Name: "Sarah Chen-Watanabe", Email: "sarah@example.com"},
		Subject: "second",
		Body:    "second body",
	})
	require.NoError(t, err)

	// Both emails resolved to the same person; the longer name won.
	sender, err := store.FindActiveByEmail(ctx, types.EntityTypePerson, "sarah@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Sarah Chen-Watanabe", sender.Name)
	assert.Equal(t, 2, sender.MentionCount)
}

func TestIngestEmailWithoutNameUsesMailbox(t *testing.T) {
	ing, _, store := newTestIngestor(t)
	ctx := context.Background()

	_, err := ing.IngestEmail(ctx, EmailPayload{
		From:    Address{Email: "marco@example.com"},
		Subject: "hi",
		Body:    "hello",
	})
	require.NoError(t, err)

	sender, err := store.FindActiveByEmail(ctx, types.EntityTypePerson, "marco@example.com")
	require.NoError(t, err)
	assert.Equal(t, "marco", sender.Name)
}

func TestIngestEmailRejectsEmpty(t *testing.T) {
	ing, _, _ := newTestIngestor(t)

	_, err := ing.IngestEmail(context.Background(), EmailPayload{
		From: Address{Email: "x@example.com"},
	})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestIngestFutureCalendarEventBecomesReminder(t *testing.T) {
	ing, eng, store := newTestIngestor(t)
	ctx := context.Background()

	starts := time.Now().UTC().Add(48 * time.Hour)
	result, err := ing.IngestCalendarEvent(ctx, CalendarEventPayload{
		Title:     "Dentist",
		StartsAt:  starts,
		Attendees: []Address{{Name: "Priya", Email: "priya@example.com"}},
	})
	require.NoError(t, err)

	memory, err := store.Get(ctx, result.MemoryID)
	require.NoError(t, err)
	assert.Equal(t, types.MemoryTypeReminder, memory.Type)
	require.NotNil(t, memory.ReminderAt)

	due, err := eng.UpcomingReminders(ctx, 7*24*time.Hour, 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, result.MemoryID, due[0].ID)
}

func TestIngestPastCalendarEventIsANote(t *testing.T) {
	ing, _, store := newTestIngestor(t)
	ctx := context.Background()

	result, err := ing.IngestCalendarEvent(ctx, CalendarEventPayload{
		Title:    "Retro",
		StartsAt: time.Now().UTC().Add(-24 * time.Hour),
	})
	require.NoError(t, err)

	memory, err := store.Get(ctx, result.MemoryID)
	require.NoError(t, err)
	assert.Equal(t, types.MemoryTypeNote, memory.Type)
	assert.Nil(t, memory.ReminderAt)
}

func TestIngestCalendarEventLinksLocation(t *testing.T) {
	ing, eng, _ := newTestIngestor(t)
	ctx := context.Background()

	_, err := ing.IngestCalendarEvent(ctx, CalendarEventPayload{
		Title:     "Team dinner",
		Location:  "De Kas",
		StartsAt:  time.Now().UTC().Add(-2 * time.Hour),
		Attendees: []Address{{Name: "Ana"}, {Name: "Ben"}},
	})
	require.NoError(t, err)

	details, err := eng.GetEntityDetails(ctx, "De Kas", types.EntityTypePlace)
	require.NoError(t, err)
	assert.Len(t, details.Relationships, 2, "each attendee related to the place")
}

func TestIngestCalendarEventValidation(t *testing.T) {
	ing, _, _ := newTestIngestor(t)
	ctx := context.Background()

	_, err := ing.IngestCalendarEvent(ctx, CalendarEventPayload{StartsAt: time.Now()})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = ing.IngestCalendarEvent(ctx, CalendarEventPayload{Title: "no start"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestIngestSlackMessage(t *testing.T) {
	ing, _, store := newTestIngestor(t)
	ctx := context.Background()

	result, err := ing.IngestSlackMessage(ctx, SlackMessagePayload{
		Channel:  "#platform",
		UserName: "Marco",
		Text:     "deploy went out clean",
	})
	require.NoError(t, err)

	memory, err := store.Get(ctx, result.MemoryID)
	require.NoError(t, err)
	assert.Equal(t, "slack", memory.Metadata["source"])

	tags, err := store.TagsFor(ctx, result.MemoryID)
	require.NoError(t, err)
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	assert.ElementsMatch(t, []string{"slack", "platform"}, names)
}

func TestIngestSlackMessageDeduplicates(t *testing.T) {
	ing, _, _ := newTestIngestor(t)
	ctx := context.Background()

	payload := SlackMessagePayload{Channel: "#general", UserName: "Ana", Text: "lunch at noon"}
	first, err := ing.IngestSlackMessage(ctx, payload)
	require.NoError(t, err)
	second, err := ing.IngestSlackMessage(ctx, payload)
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.Equal(t, first.MemoryID, second.MemoryID)
}
