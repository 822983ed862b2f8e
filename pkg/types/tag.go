package types

import "time"

// Tag is a label with a usage counter. Name is unique; usage_count
// increments on every attach-or-create.
type Tag struct {
	ID         string    `json:"id"`   // Unique identifier (format: tag:<uuid>)
	Name       string    `json:"name"` // Unique label
	UsageCount int       `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
