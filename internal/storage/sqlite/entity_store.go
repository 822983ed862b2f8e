package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

const entityColumns = `id, entity_type, entity_subtype, name, description, summary,
	attributes, email, phone, mention_count, last_mentioned_at, is_active,
	start_date, end_date, created_at, updated_at`

// entityColumnsPrefixed returns the entity column list qualified with a table
// alias, for queries that join memory_entities against other tables.
func entityColumnsPrefixed(alias string) string {
	cols := strings.Split(entityColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// InsertEntity creates a new entity row.
func (s *Store) InsertEntity(ctx context.Context, entity *types.Entity) error {
	if entity == nil {
		return storage.ErrInvalidInput
	}
	if entity.ID == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	if entity.Name == "" {
		return fmt.Errorf("%w: entity name is required", storage.ErrInvalidInput)
	}
	if !types.IsValidEntityType(entity.EntityType) {
		return fmt.Errorf("%w: unknown entity type %q", storage.ErrInvalidInput, entity.EntityType)
	}

	attributesJSON, err := marshalJSONField(entity.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	now := time.Now().UTC()
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now
	}
	if entity.UpdatedAt.IsZero() {
		entity.UpdatedAt = now
	}
	if entity.MentionCount == 0 {
		entity.MentionCount = 1
	}

	query := `
		INSERT INTO memory_entities (
			id, entity_type, entity_subtype, name, description, summary,
			attributes, email, phone, mention_count, last_mentioned_at,
			is_active, start_date, end_date, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		entity.ID, entity.EntityType, nullString(entity.EntitySubtype),
		entity.Name, nullString(entity.Description), nullString(entity.Summary),
		attributesJSON, nullString(entity.Email), nullString(entity.Phone),
		entity.MentionCount, nullTime(entity.LastMentionedAt),
		boolToInt(entity.IsActive), nullTime(entity.StartDate), nullTime(entity.EndDate),
		entity.CreatedAt, entity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entity: %w", err)
	}

	return nil
}

// GetEntity retrieves an entity by ID.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM memory_entities WHERE id = ?`, id)

	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}

	return entity, nil
}

// UpdateEntity overwrites an existing entity row.
func (s *Store) UpdateEntity(ctx context.Context, entity *types.Entity) error {
	if entity == nil || entity.ID == "" {
		return fmt.Errorf("%w: entity with ID is required", storage.ErrInvalidInput)
	}

	attributesJSON, err := marshalJSONField(entity.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	entity.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE memory_entities SET
			entity_type = ?, entity_subtype = ?, name = ?, description = ?,
			summary = ?, attributes = ?, email = ?, phone = ?,
			mention_count = ?, last_mentioned_at = ?, is_active = ?,
			start_date = ?, end_date = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		entity.EntityType, nullString(entity.EntitySubtype), entity.Name,
		nullString(entity.Description), nullString(entity.Summary),
		attributesJSON, nullString(entity.Email), nullString(entity.Phone),
		entity.MentionCount, nullTime(entity.LastMentionedAt),
		boolToInt(entity.IsActive), nullTime(entity.StartDate), nullTime(entity.EndDate),
		entity.UpdatedAt, entity.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}

	return requireRowAffected(result)
}

// FindActiveByEmail looks up an active entity by exact email within a type.
func (s *Store) FindActiveByEmail(ctx context.Context, entityType, email string) (*types.Entity, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM memory_entities
		 WHERE entity_type = ? AND email = ? COLLATE NOCASE AND is_active = 1
		 ORDER BY created_at ASC LIMIT 1`, entityType, email)

	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find entity by email: %w", err)
	}

	return entity, nil
}

// FindActiveByName looks up an active entity by name, case-insensitively and
// substring-tolerant in either direction: "Rob" matches "Rob Zieber" and
// "Robert Zieber Jr." matches a stored "Robert Zieber". Exact matches win
// over substring matches; ties go to the oldest entity.
func (s *Store) FindActiveByName(ctx context.Context, name, entityType string) (*types.Entity, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", storage.ErrInvalidInput)
	}

	conditions := []string{"is_active = 1", "(name = ? COLLATE NOCASE OR instr(lower(name), lower(?)) > 0 OR instr(lower(?), lower(name)) > 0)"}
	args := []interface{}{name, name, name}
	if entityType != "" {
		conditions = append([]string{"entity_type = ?"}, conditions...)
		args = append([]interface{}{entityType}, args...)
	}

	query := `SELECT ` + entityColumns + ` FROM memory_entities
		 WHERE ` + strings.Join(conditions, " AND ") + `
		 ORDER BY (name = ? COLLATE NOCASE) DESC, created_at ASC LIMIT 1`
	args = append(args, name)

	row := s.db.QueryRowContext(ctx, query, args...)

	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find entity by name: %w", err)
	}

	return entity, nil
}

// ListEntities retrieves entities with pagination and filtering.
func (s *Store) ListEntities(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Entity], error) {
	opts.Normalize()

	var (
		conditions []string
		args       []interface{}
	)

	if !opts.IncludeArchived {
		conditions = append(conditions, "is_active = 1")
	}
	if opts.Type != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, opts.Type)
	}
	if !opts.CreatedAfter.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, opts.CreatedAfter)
	}
	if !opts.CreatedBefore.IsZero() {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, opts.CreatedBefore)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memory_entities"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count entities: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT `+entityColumns+` FROM memory_entities%s ORDER BY %s %s LIMIT ? OFFSET ?`,
		where, opts.SortBy, strings.ToUpper(opts.SortOrder))
	args = append(args, opts.Limit, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var entities []types.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, *entity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &storage.PaginatedResult[types.Entity]{
		Items:    entities,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(entities) < total,
	}, nil
}

// DeactivateEntity archives an entity without touching its relationships or
// memory links.
func (s *Store) DeactivateEntity(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE memory_entities SET is_active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate entity: %w", err)
	}

	return requireRowAffected(result)
}

// PurgeEntity hard-deletes an entity. Relationships and memory links cascade
// via foreign keys; the memories themselves are untouched.
func (s *Store) PurgeEntity(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to purge entity: %w", err)
	}

	return requireRowAffected(result)
}

// MemoriesFor returns non-archived memories linked to the entity, newest first.
func (s *Store) MemoriesFor(ctx context.Context, entityID string, limit int) ([]types.Memory, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	if limit < 1 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT m.id, m.type, m.content, m.summary, m.content_length,
			m.content_hash, m.metadata, m.relevance_score, m.access_count,
			m.last_accessed_at, m.reminder_at, m.is_archived, m.created_at, m.updated_at
		 FROM memories m
		 JOIN memory_entity_links mel ON mel.memory_id = m.id
		 WHERE mel.entity_id = ? AND m.is_archived = 0
		 ORDER BY m.created_at DESC LIMIT ?`, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity memories: %w", err)
	}
	defer rows.Close()

	return collectMemories(rows)
}

func scanEntity(row scanner) (*types.Entity, error) {
	var (
		e               types.Entity
		subtype         sql.NullString
		description     sql.NullString
		summary         sql.NullString
		attributesJSON  sql.NullString
		email           sql.NullString
		phone           sql.NullString
		lastMentionedAt sql.NullTime
		isActive        int
		startDate       sql.NullTime
		endDate         sql.NullTime
	)

	err := row.Scan(
		&e.ID, &e.EntityType, &subtype, &e.Name, &description, &summary,
		&attributesJSON, &email, &phone, &e.MentionCount, &lastMentionedAt,
		&isActive, &startDate, &endDate, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.EntitySubtype = subtype.String
	e.Description = description.String
	e.Summary = summary.String
	e.Email = email.String
	e.Phone = phone.String
	e.IsActive = isActive != 0
	if lastMentionedAt.Valid {
		e.LastMentionedAt = &lastMentionedAt.Time
	}
	if startDate.Valid {
		e.StartDate = &startDate.Time
	}
	if endDate.Valid {
		e.EndDate = &endDate.Time
	}
	if attributesJSON.Valid && attributesJSON.String != "" {
		if err := json.Unmarshal([]byte(attributesJSON.String), &e.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}

	return &e, nil
}
