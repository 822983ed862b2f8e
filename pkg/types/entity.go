package types

import "time"

// Entity represents a named real-world thing tracked across memories:
// a person, place, organization, service, pet, vehicle, etc.
//
// Identity resolution treats email (when present) as the strongest key and
// name as a soft key (case-insensitive, substring-tolerant) within the set
// of active entities of the same type. See the engine's FindOrCreateEntity.
type Entity struct {
	// Core identification fields
	ID            string `json:"id"`                       // Unique identifier (format: ent:<uuid>)
	EntityType    string `json:"entity_type"`              // Broad category (person, place, ...)
	EntitySubtype string `json:"entity_subtype,omitempty"` // Free-form refinement (colleague, family, ...)
	Name          string `json:"name"`                     // Display name
	Description   string `json:"description,omitempty"`    // Human-readable description
	Summary       string `json:"summary,omitempty"`        // Condensed description

	// Promoted contact columns. Email, when present, is a stronger identity
	// key than name and is indexed for exact lookup.
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`

	// Attributes holds everything not promoted to a column.
	Attributes AttributeBag `json:"attributes,omitempty"`

	// Mention bookkeeping
	MentionCount    int        `json:"mention_count"`
	LastMentionedAt *time.Time `json:"last_mentioned_at,omitempty"`

	// Lifecycle
	IsActive bool `json:"is_active"`

	// Temporal validity window. A nil bound is unconstrained.
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsCurrent reports whether the entity is current as of now: its end date
// is absent or falls on or after today.
func (e *Entity) IsCurrent(now time.Time) bool {
	if e.EndDate == nil {
		return true
	}
	return !e.EndDate.Before(startOfDay(now))
}

// IsPast reports whether the entity's validity window has closed: its end
// date is strictly before today.
func (e *Entity) IsPast(now time.Time) bool {
	if e.EndDate == nil {
		return false
	}
	return e.EndDate.Before(startOfDay(now))
}

// IsFuture reports whether the entity's validity window has not yet opened:
// its start date is strictly after today.
func (e *Entity) IsFuture(now time.Time) bool {
	if e.StartDate == nil {
		return false
	}
	return e.StartDate.After(endOfDay(now))
}

// ActiveDuring reports whether the entity's validity window overlaps the
// given date range: (start_date absent or <= rangeEnd) and (end_date absent
// or >= rangeStart).
func (e *Entity) ActiveDuring(rangeStart, rangeEnd time.Time) bool {
	if e.StartDate != nil && e.StartDate.After(rangeEnd) {
		return false
	}
	if e.EndDate != nil && e.EndDate.Before(rangeStart) {
		return false
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).Add(24*time.Hour - time.Nanosecond)
}

// EntityLink connects a memory to an entity with a link type describing how
// the memory references the entity (mentioned, about, attendee, created_by).
type EntityLink struct {
	MemoryID  string    `json:"memory_id"`
	EntityID  string    `json:"entity_id"`
	LinkType  string    `json:"link_type"`
	CreatedAt time.Time `json:"created_at"`
}
