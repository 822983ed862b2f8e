package types

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Memory represents a single content unit in the store: a note, fact,
// reminder, preference, or meeting transcript. Memories are append-mostly:
// they are archived (soft-removed) rather than hard-deleted so that recall
// history is preserved.
type Memory struct {
	// Core identification fields
	ID      string `json:"id"`      // Unique identifier (format: mem:<uuid>)
	Type    string `json:"type"`    // Memory type (note, reminder, fact, ...)
	Content string `json:"content"` // Raw memory content
	Summary string `json:"summary,omitempty"` // Optional condensed form (used for embedding long content)

	// Content addressing
	ContentLength int    `json:"content_length"`         // len(Content) at last write
	ContentHash   string `json:"content_hash,omitempty"` // SHA-256 hash of content for deduplication

	// Classification and organization
	Metadata map[string]interface{} `json:"metadata,omitempty"` // Arbitrary metadata (e.g. preference category)

	// Quality signals
	RelevanceScore float64    `json:"relevance_score"`            // Base relevance weight (default 1.0)
	AccessCount    int        `json:"access_count"`               // Number of times memory has been recalled
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"` // Timestamp of most recent recall

	// Reminder scheduling
	ReminderAt *time.Time `json:"reminder_at,omitempty"` // When to surface this memory (reminders only)

	// Soft delete
	IsArchived bool `json:"is_archived"` // Archived memories are excluded from search and recall

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// summaryThreshold is the content length above which transcripts get a
// derived summary, and summaryLength is how much of the content that
// summary keeps.
const (
	SummaryThreshold = 1000
	SummaryLength    = 500
)

// HashContent returns the SHA-256 hex digest of the given content.
// Two memories with equal content always produce the same hash, which is
// the basis for dedup on StoreNote.
func HashContent(content string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
}

// RefreshDerived recomputes the derived fields (ContentHash, ContentLength)
// from the current Content. Must be called whenever Content changes.
func (m *Memory) RefreshDerived() {
	m.ContentHash = HashContent(m.Content)
	m.ContentLength = len(m.Content)
}

// EffectiveText returns the text used for embedding generation: the summary
// when present, otherwise the content, truncated to maxLen bytes. A maxLen
// of 0 or less disables truncation.
func (m *Memory) EffectiveText(maxLen int) string {
	text := m.Content
	if m.Summary != "" {
		text = m.Summary
	}
	if maxLen > 0 && len(text) > maxLen {
		text = text[:maxLen]
	}
	return text
}
