package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDimensionMismatch indicates that two vectors being compared have
	// different dimension counts. Similarity scans skip the offending
	// embedding rather than aborting the whole search.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// PaginatedResult represents a paginated result set with type safety using generics.
type PaginatedResult[T any] struct {
	// Items is the slice of results for the current page.
	Items []T

	// Total is the total number of items across all pages.
	Total int

	// Page is the current page number (1-indexed).
	Page int

	// PageSize is the number of items per page.
	PageSize int

	// HasMore indicates whether there are more pages available.
	HasMore bool
}

// ListOptions provides pagination and filtering options for list operations.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 10, max: 100).
	Limit int

	// SortBy specifies the field to sort by (e.g., "created_at", "updated_at").
	SortBy string

	// SortOrder specifies the sort direction ("asc" or "desc", default: "desc").
	SortOrder string

	// Type filters memories by their type (note, reminder, ...) or entities
	// by their entity_type. Empty string means no filter.
	Type string

	// IncludeArchived includes archived memories (or inactive entities) in
	// results. By default they are excluded from all queries.
	IncludeArchived bool

	// CreatedAfter filters to records created on or after this time.
	// Zero value means no lower bound.
	CreatedAfter time.Time

	// CreatedBefore filters to records created on or before this time.
	// Zero value means no upper bound.
	CreatedBefore time.Time

	// EntityID filters memories to those linked to the given entity.
	// Empty string means no filter.
	EntityID string

	// TagName filters memories to those carrying the given tag.
	// Empty string means no filter.
	TagName string
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	// Whitelist validation for SortBy to prevent SQL injection.
	allowedSortFields := map[string]bool{
		"created_at":        true,
		"updated_at":        true,
		"id":                true,
		"name":              true,
		"mention_count":     true,
		"last_mentioned_at": true,
		"relevance_score":   true,
		"reminder_at":       true,
	}

	if !allowedSortFields[o.SortBy] {
		o.SortBy = "created_at"
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}

	if o.Page < 1 {
		o.Page = 1
	}

	if o.Limit < 1 {
		o.Limit = 10
	}

	if o.Limit > 100 {
		o.Limit = 100
	}
}

// Offset calculates the offset for SQL queries based on page and limit.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// SearchOptions provides options for full-text search operations.
type SearchOptions struct {
	// Query is the search query string.
	Query string

	// Limit is the maximum number of results to return (default: 10, max: 100).
	Limit int

	// Offset is the number of results to skip.
	Offset int

	// FuzzyFallback enables fallback to relaxed OR-based search if no results
	// are found. When true and the initial search returns zero results, the
	// query is split into individual terms and searched with OR semantics.
	FuzzyFallback bool
}

// Normalize applies defaults and validates the SearchOptions.
func (o *SearchOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 10
	}

	if o.Limit > 100 {
		o.Limit = 100
	}

	if o.Offset < 0 {
		o.Offset = 0
	}
}

// SimilarityResult is one hit from a semantic similarity scan.
type SimilarityResult struct {
	// MemoryID is the ID of the memory owning the matched embedding.
	MemoryID string

	// Similarity is the cosine similarity to the query vector.
	Similarity float64
}
