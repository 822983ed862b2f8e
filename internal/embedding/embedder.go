// Package embedding turns memory text into vectors. It ships two providers
// (a local Ollama client and an OpenAI client), both wrapped with circuit
// breaker protection, plus a caching layer that deduplicates repeated text
// by content hash.
package embedding

import (
	"context"
	"errors"
)

// MaxEmbedChars caps the text sent to an embedding provider. Longer text is
// truncated BEFORE hashing, so an over-long text and its truncation share a
// cache entry and a vector.
const MaxEmbedChars = 8000

// ErrUnavailable indicates the embedding provider cannot serve requests
// right now (circuit open, service down). Callers fall back to full-text
// search rather than failing the operation.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Embedder generates a vector for a piece of text.
type Embedder interface {
	// Embed returns the embedding vector for the text. Implementations
	// truncate input to MaxEmbedChars.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Model returns the generating model name, recorded alongside every
	// stored vector so dimension mismatches are traceable.
	Model() string
}

// Truncate clips text to MaxEmbedChars.
func Truncate(text string) string {
	if len(text) > MaxEmbedChars {
		return text[:MaxEmbedChars]
	}
	return text
}
