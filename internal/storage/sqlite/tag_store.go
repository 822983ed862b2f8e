package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// AttachOrCreate ensures the tag exists, bumps its usage counter, and links
// it to the memory. The tag upsert is a single atomic statement so two
// concurrent attaches of the same new tag cannot race into duplicate rows;
// the loser of the insert race lands in the ON CONFLICT branch and just
// increments the counter.
func (s *Store) AttachOrCreate(ctx context.Context, memoryID, name string) (*types.Tag, error) {
	if memoryID == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("%w: tag name is required", storage.ErrInvalidInput)
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_tags (id, name, usage_count, created_at, updated_at)
		 VALUES (?, ?, 1, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			usage_count = usage_count + 1,
			updated_at = excluded.updated_at`,
		"tag:"+uuid.NewString(), name, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert tag: %w", err)
	}

	tag, err := s.FindTag(ctx, name)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memory_tag_links (memory_id, tag_id, created_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(memory_id, tag_id) DO NOTHING`,
		memoryID, tag.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to link tag: %w", err)
	}

	return tag, nil
}

// TagsFor returns the tags attached to a memory, alphabetically.
func (s *Store) TagsFor(ctx context.Context, memoryID string) ([]types.Tag, error) {
	if memoryID == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.usage_count, t.created_at, t.updated_at
		 FROM memory_tags t
		 JOIN memory_tag_links mtl ON mtl.tag_id = t.id
		 WHERE mtl.memory_id = ?
		 ORDER BY t.name`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []types.Tag
	for rows.Next() {
		var t types.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.UsageCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}

	return tags, rows.Err()
}

// FindTag returns the tag with the given name.
func (s *Store) FindTag(ctx context.Context, name string) (*types.Tag, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("%w: tag name is required", storage.ErrInvalidInput)
	}

	var t types.Tag
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, usage_count, created_at, updated_at
		 FROM memory_tags WHERE name = ?`, name).
		Scan(&t.ID, &t.Name, &t.UsageCount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find tag: %w", err)
	}

	return &t, nil
}
