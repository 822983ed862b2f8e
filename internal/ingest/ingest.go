// Package ingest normalizes external payloads (email, calendar events, chat
// messages) into memory engine operations. Each source maps onto the same
// store primitives the tool surface uses: people become entities, content
// becomes memories, and the source is recorded as a tag plus metadata.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/engramdev/engram/internal/engine"
	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// Address is a name/email pair as it appears in message headers.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// EmailPayload is a normalized inbound email.
type EmailPayload struct {
	From    Address   `json:"from"`
	To      []Address `json:"to,omitempty"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at,omitempty"`
}

// CalendarEventPayload is a normalized calendar event.
type CalendarEventPayload struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Attendees   []Address `json:"attendees,omitempty"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at,omitempty"`
}

// SlackMessagePayload is a normalized chat message.
type SlackMessagePayload struct {
	Channel  string    `json:"channel"`
	UserName string    `json:"user_name"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at,omitempty"`
}

// Result reports what an ingestion produced.
type Result struct {
	MemoryID string   `json:"memory_id"`
	Created  bool     `json:"created"`
	People   []string `json:"people,omitempty"`
}

// Ingestor maps normalized payloads onto engine operations.
type Ingestor struct {
	engine *engine.Engine
	log    zerolog.Logger
}

// New creates an ingestor backed by the given engine.
func New(eng *engine.Engine, logger zerolog.Logger) *Ingestor {
	return &Ingestor{engine: eng, log: logger}
}

// IngestEmail stores an email as a note mentioning the sender (and any
// recipients with names). The sender's email address feeds entity resolution,
// so repeated emails from the same address pile onto one person even when the
// display name varies.
func (i *Ingestor) IngestEmail(ctx context.Context, payload EmailPayload) (*Result, error) {
	if strings.TrimSpace(payload.Body) == "" && strings.TrimSpace(payload.Subject) == "" {
		return nil, fmt.Errorf("%w: email has no subject or body", storage.ErrInvalidInput)
	}

	var entityIDs []string
	sender, err := i.resolveAddress(ctx, payload.From)
	if err != nil {
		return nil, fmt.Errorf("resolving sender: %w", err)
	}
	if sender != nil {
		entityIDs = append(entityIDs, sender.ID)
	}
	for _, addr := range payload.To {
		recipient, err := i.resolveAddress(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("resolving recipient: %w", err)
		}
		if recipient != nil {
			entityIDs = append(entityIDs, recipient.ID)
		}
	}

	content := payload.Body
	if payload.Subject != "" {
		content = payload.Subject + "\n\n" + payload.Body
	}

	result, err := i.engine.StoreNote(ctx, engine.NoteInput{
		Content:   strings.TrimSpace(content),
		Tags:      []string{"email"},
		EntityIDs: entityIDs,
		Metadata: map[string]interface{}{
			"source":  "email",
			"subject": payload.Subject,
			"sender":  payload.From.Email,
		},
	})
	if err != nil {
		return nil, err
	}

	i.log.Info().Str("memory_id", result.Memory.ID).Str("sender", payload.From.Email).
		Bool("created", result.Created).Msg("email ingested")
	return i.toResult(result), nil
}

// IngestCalendarEvent stores an event. Future events become reminders due at
// the start time; past events become plain notes. Attendees are created and
// linked, and a named location becomes a place entity each attendee is
// related to via "attended".
func (i *Ingestor) IngestCalendarEvent(ctx context.Context, payload CalendarEventPayload) (*Result, error) {
	if strings.TrimSpace(payload.Title) == "" {
		return nil, fmt.Errorf("%w: calendar event has no title", storage.ErrInvalidInput)
	}
	if payload.StartsAt.IsZero() {
		return nil, fmt.Errorf("%w: calendar event has no start time", storage.ErrInvalidInput)
	}

	var people []string
	var entityIDs []string
	for _, addr := range payload.Attendees {
		attendee, err := i.resolveAddress(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("resolving attendee: %w", err)
		}
		if attendee != nil {
			people = append(people, attendee.Name)
			entityIDs = append(entityIDs, attendee.ID)
		}
	}

	content := payload.Title
	if payload.Description != "" {
		content += "\n\n" + payload.Description
	}
	if payload.Location != "" {
		content += "\nLocation: " + payload.Location
	}

	input := engine.NoteInput{
		Content:   content,
		Tags:      []string{"calendar"},
		EntityIDs: entityIDs,
		Metadata: map[string]interface{}{
			"source":    "calendar",
			"starts_at": payload.StartsAt.UTC().Format(time.RFC3339),
		},
	}
	if payload.StartsAt.After(time.Now()) {
		input.Type = types.MemoryTypeReminder
		startsAt := payload.StartsAt
		input.ReminderAt = &startsAt
	}

	result, err := i.engine.StoreNote(ctx, input)
	if err != nil {
		return nil, err
	}

	if payload.Location != "" {
		if err := i.linkLocation(ctx, payload.Location, people); err != nil {
			return nil, err
		}
	}

	i.log.Info().Str("memory_id", result.Memory.ID).Str("title", payload.Title).
		Int("attendees", len(people)).Msg("calendar event ingested")
	return i.toResult(result), nil
}

// IngestSlackMessage stores a chat message as a note attributed to its
// author, tagged with the channel.
func (i *Ingestor) IngestSlackMessage(ctx context.Context, payload SlackMessagePayload) (*Result, error) {
	if strings.TrimSpace(payload.Text) == "" {
		return nil, fmt.Errorf("%w: message has no text", storage.ErrInvalidInput)
	}

	var people []string
	if name := strings.TrimSpace(payload.UserName); name != "" {
		people = append(people, name)
	}

	tags := []string{"slack"}
	if channel := strings.TrimSpace(strings.TrimPrefix(payload.Channel, "#")); channel != "" {
		tags = append(tags, channel)
	}

	result, err := i.engine.StoreNote(ctx, engine.NoteInput{
		Content: strings.TrimSpace(payload.Text),
		Tags:    tags,
		People:  people,
		Metadata: map[string]interface{}{
			"source":  "slack",
			"channel": payload.Channel,
		},
	})
	if err != nil {
		return nil, err
	}

	i.log.Info().Str("memory_id", result.Memory.ID).Str("channel", payload.Channel).
		Bool("created", result.Created).Msg("slack message ingested")
	return i.toResult(result), nil
}

// resolveAddress find-or-creates a person from a header address. Addresses
// with neither name nor email are skipped (nil, nil). An email-only address
// uses the mailbox part as a provisional name, to be upgraded by later
// observations carrying the real one.
func (i *Ingestor) resolveAddress(ctx context.Context, addr Address) (*types.Entity, error) {
	name := strings.TrimSpace(addr.Name)
	email := strings.TrimSpace(addr.Email)
	if name == "" && email == "" {
		return nil, nil
	}
	if name == "" {
		name = email
		if at := strings.IndexByte(email, '@'); at > 0 {
			name = email[:at]
		}
	}

	entity, _, err := i.engine.FindOrCreateEntity(ctx, engine.EntityInput{
		EntityType: types.EntityTypePerson,
		Name:       name,
		Email:      email,
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// linkLocation creates the place entity and relates each attendee to it.
func (i *Ingestor) linkLocation(ctx context.Context, location string, people []string) error {
	for _, person := range people {
		if _, _, err := i.engine.FindOrCreateRelationship(ctx, engine.RelationshipInput{
			FromName: person,
			FromType: types.EntityTypePerson,
			ToName:   location,
			ToType:   types.EntityTypePlace,
			Type:     types.RelAttended,
		}); err != nil {
			return fmt.Errorf("linking %s to %s: %w", person, location, err)
		}
	}
	return nil
}

func (i *Ingestor) toResult(result *engine.StoreResult) *Result {
	out := &Result{MemoryID: result.Memory.ID, Created: result.Created}
	for _, entity := range result.Entities {
		out.People = append(out.People, entity.Name)
	}
	return out
}
