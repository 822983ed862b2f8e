package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/engramdev/engram/internal/notify"
	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// NoteInput describes a note-like memory to store. Type defaults to note;
// reminders carry a ReminderAt.
type NoteInput struct {
	Content string
	Type    string
	Tags    []string

	// People are names resolved through entity find-or-create (which bumps
	// mention counts). EntityIDs are linked as-is, for callers that already
	// resolved their entities.
	People    []string
	EntityIDs []string

	Metadata   map[string]interface{}
	ReminderAt *time.Time
}

// TranscriptInput describes a meeting transcript. Transcripts are never
// deduplicated: two meetings can legitimately produce identical text.
type TranscriptInput struct {
	Content    string
	Title      string
	Attendees  []string
	OccurredAt *time.Time
	Tags       []string
}

// PreferenceInput describes a user preference. Preferences are singletons
// per category: storing a new value for an existing category updates the
// existing memory in place.
type PreferenceInput struct {
	Category string
	Content  string
	Tags     []string
}

// StoreResult reports what a store operation did.
type StoreResult struct {
	Memory   *types.Memory   `json:"memory"`
	Created  bool            `json:"created"`
	Entities []*types.Entity `json:"entities,omitempty"`
	Tags     []types.Tag     `json:"tags,omitempty"`
}

// StoreNote stores a note, fact, idea, task, or reminder.
//
// Content is deduplicated by SHA-256 hash against non-archived memories: a
// repeat of existing content returns the existing memory instead of creating
// a second row. On the dedup path mentioned people are still linked — but
// only if they already exist — and tags are still attached, so repetition
// reinforces the graph without growing it.
func (e *Engine) StoreNote(ctx context.Context, input NoteInput) (*StoreResult, error) {
	input.Content = strings.TrimSpace(input.Content)
	if input.Content == "" {
		return nil, fmt.Errorf("%w: content is required", storage.ErrInvalidInput)
	}
	if input.Type == "" {
		input.Type = types.MemoryTypeNote
	}
	if !types.IsValidMemoryType(input.Type) {
		return nil, fmt.Errorf("%w: unknown memory type %q", storage.ErrInvalidInput, input.Type)
	}

	e.memMu.Lock()
	defer e.memMu.Unlock()

	hash := types.HashContent(input.Content)
	existing, err := e.store.FindActiveByHash(ctx, hash)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if existing != nil {
		e.log.Debug().Str("memory_id", existing.ID).Msg("duplicate content, returning existing memory")
		return e.finishStore(ctx, existing, false, input.People, input.EntityIDs, types.LinkTypeMentioned, input.Tags, false)
	}

	now := time.Now().UTC()
	memory := &types.Memory{
		ID:             "mem:" + uuid.NewString(),
		Type:           input.Type,
		Content:        input.Content,
		Metadata:       input.Metadata,
		RelevanceScore: 1.0,
		ReminderAt:     input.ReminderAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	memory.RefreshDerived()

	if err := e.store.Insert(ctx, memory); err != nil {
		return nil, err
	}
	e.queueEmbedding(memory)
	e.notifyChange(notify.EventMemoryStored, memory.ID)
	e.log.Info().Str("memory_id", memory.ID).Str("type", memory.Type).Msg("memory stored")

	return e.finishStore(ctx, memory, true, input.People, input.EntityIDs, types.LinkTypeMentioned, input.Tags, true)
}

// StoreTranscript stores a meeting transcript, deriving a summary for long
// content and linking attendees (created when unknown).
func (e *Engine) StoreTranscript(ctx context.Context, input TranscriptInput) (*StoreResult, error) {
	input.Content = strings.TrimSpace(input.Content)
	if input.Content == "" {
		return nil, fmt.Errorf("%w: transcript content is required", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	memory := &types.Memory{
		ID:             "mem:" + uuid.NewString(),
		Type:           types.MemoryTypeTranscript,
		Content:        input.Content,
		RelevanceScore: 1.0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	memory.RefreshDerived()

	if memory.ContentLength > types.SummaryThreshold {
		memory.Summary = summarize(input.Content, types.SummaryLength)
	}

	memory.Metadata = map[string]interface{}{}
	if input.Title != "" {
		memory.Metadata["title"] = input.Title
	}
	if input.OccurredAt != nil {
		memory.Metadata["occurred_at"] = input.OccurredAt.UTC().Format(time.RFC3339)
	}
	if len(memory.Metadata) == 0 {
		memory.Metadata = nil
	}

	if err := e.store.Insert(ctx, memory); err != nil {
		return nil, err
	}
	e.queueEmbedding(memory)
	e.notifyChange(notify.EventMemoryStored, memory.ID)
	e.log.Info().Str("memory_id", memory.ID).Int("length", memory.ContentLength).
		Int("attendees", len(input.Attendees)).Msg("transcript stored")

	return e.finishStore(ctx, memory, true, input.Attendees, nil, types.LinkTypeAttendee, input.Tags, true)
}

// StorePreference records a user preference. One memory per category: a new
// value replaces the content of the existing preference memory rather than
// accumulating contradictory rows, and the embedding is regenerated.
func (e *Engine) StorePreference(ctx context.Context, input PreferenceInput) (*StoreResult, error) {
	input.Category = strings.ToLower(strings.TrimSpace(input.Category))
	input.Content = strings.TrimSpace(input.Content)
	if input.Category == "" || input.Content == "" {
		return nil, fmt.Errorf("%w: preference category and content are required", storage.ErrInvalidInput)
	}

	e.memMu.Lock()
	defer e.memMu.Unlock()

	existing, err := e.store.FindPreference(ctx, input.Category)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if existing != nil {
		existing.Content = input.Content
		existing.RefreshDerived()
		existing.UpdatedAt = time.Now().UTC()
		if err := e.store.Update(ctx, existing); err != nil {
			return nil, err
		}
		e.queueEmbedding(existing)
		e.notifyChange(notify.EventMemoryStored, existing.ID)
		e.log.Info().Str("memory_id", existing.ID).Str("category", input.Category).
			Msg("preference updated")
		return e.finishStore(ctx, existing, false, nil, nil, "", input.Tags, false)
	}

	now := time.Now().UTC()
	memory := &types.Memory{
		ID:             "mem:" + uuid.NewString(),
		Type:           types.MemoryTypePreference,
		Content:        input.Content,
		Metadata:       map[string]interface{}{"category": input.Category},
		RelevanceScore: 1.0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	memory.RefreshDerived()

	if err := e.store.Insert(ctx, memory); err != nil {
		return nil, err
	}
	e.queueEmbedding(memory)
	e.notifyChange(notify.EventMemoryStored, memory.ID)
	e.log.Info().Str("memory_id", memory.ID).Str("category", input.Category).Msg("preference stored")

	return e.finishStore(ctx, memory, true, nil, nil, "", input.Tags, true)
}

// finishStore applies the post-write trimmings shared by every store path:
// entity links, tags, and the result envelope.
func (e *Engine) finishStore(ctx context.Context, memory *types.Memory, created bool, people, entityIDs []string, linkType string, tags []string, createMissing bool) (*StoreResult, error) {
	result := &StoreResult{Memory: memory, Created: created}

	if len(people) > 0 {
		entities, err := e.linkEntities(ctx, memory.ID, people, types.EntityTypePerson, linkType, createMissing)
		if err != nil {
			return nil, err
		}
		result.Entities = entities
	}

	for _, entityID := range entityIDs {
		if err := e.store.LinkEntity(ctx, memory.ID, entityID, linkType); err != nil {
			return nil, err
		}
		entity, err := e.store.GetEntity(ctx, entityID)
		if err != nil {
			return nil, err
		}
		result.Entities = append(result.Entities, entity)
	}

	for _, name := range tags {
		tag, err := e.store.AttachOrCreate(ctx, memory.ID, name)
		if err != nil {
			if errors.Is(err, storage.ErrInvalidInput) {
				continue
			}
			return nil, err
		}
		result.Tags = append(result.Tags, *tag)
	}

	return result, nil
}

// GetMemory returns a memory with its linked entities and tags.
func (e *Engine) GetMemory(ctx context.Context, id string) (*types.Memory, []*types.Entity, []types.Tag, error) {
	memory, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	entities, err := e.store.EntitiesFor(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	tags, err := e.store.TagsFor(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	return memory, entities, tags, nil
}

// ArchiveMemory soft-removes a memory and drops its embedding so the
// semantic index can't surface it. The row itself survives for restore.
func (e *Engine) ArchiveMemory(ctx context.Context, id string) error {
	if err := e.store.Archive(ctx, id); err != nil {
		return err
	}
	if err := e.embeddings.DeleteEmbedding(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
		e.log.Warn().Err(err).Str("memory_id", id).Msg("failed to drop embedding on archive")
	}
	e.notifyChange(notify.EventMemoryArchived, id)
	return nil
}

// RestoreMemory reverses an archive and queues re-embedding.
func (e *Engine) RestoreMemory(ctx context.Context, id string) error {
	if err := e.store.Restore(ctx, id); err != nil {
		return err
	}
	memory, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	e.queueEmbedding(memory)
	e.notifyChange(notify.EventMemoryStored, memory.ID)
	return nil
}

// summarize keeps the head of the content, cut back to the last word
// boundary so the summary doesn't end mid-token.
func summarize(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	cut := content[:maxLen]
	if idx := strings.LastIndexByte(cut, ' '); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}
