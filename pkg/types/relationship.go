package types

import "time"

// Relationship represents a directed, typed edge between two entities.
// (from, to, type) is unique: a duplicate find-or-create call returns the
// existing edge (merging metadata) rather than inserting a second row.
// Direction matters on write — (A, B, works_at) and (B, A, works_at) are
// distinct — but reads that ask "all relationships touching X" search both
// columns.
type Relationship struct {
	ID           string `json:"id"`             // Unique identifier (format: rel:<uuid>)
	FromEntityID string `json:"from_entity_id"` // Source entity ID
	ToEntityID   string `json:"to_entity_id"`   // Target entity ID
	Type         string `json:"type"`           // Relationship type (e.g. "works_at")

	Metadata map[string]interface{} `json:"metadata,omitempty"` // Arbitrary relationship metadata

	// Temporal validity window. A nil bound is unconstrained.
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActiveDuring reports whether the relationship's validity window overlaps
// the given date range, with nil bounds unconstrained.
func (r *Relationship) ActiveDuring(rangeStart, rangeEnd time.Time) bool {
	if r.StartedAt != nil && r.StartedAt.After(rangeEnd) {
		return false
	}
	if r.EndedAt != nil && r.EndedAt.Before(rangeStart) {
		return false
	}
	return true
}
