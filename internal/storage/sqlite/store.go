package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/engramdev/engram/internal/storage"
	"github.com/engramdev/engram/pkg/types"
)

// Store implements the full storage surface (memories, entities,
// relationships, tags, embeddings, full-text search) on a single SQLite
// database. Methods are spread across the package by concern.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// New opens a SQLite database at the given DSN with WAL self-healing.
// If the initial open fails due to stale WAL files (left behind by a crashed
// process), it verifies no other process holds them and retries once after
// removing the stale -shm/-wal files.
func New(dsn string, logger zerolog.Logger) (*Store, error) {
	store, err := open(dsn, logger)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || dbPath == ":memory:" {
		return nil, err
	}

	if !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath, logger)

	store, retryErr := open(dsn, logger)
	if retryErr != nil {
		return nil, fmt.Errorf("failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	logger.Warn().Str("path", dbPath).Msg("recovered from stale WAL files")
	return store, nil
}

// open opens a SQLite database, configures WAL mode, and creates the schema.
func open(dsn string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Using a single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode allows concurrent readers to proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout so that callers wait instead of getting an immediate
	// SQLITE_BUSY error when the connection is held by another goroutine.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, log: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// memoryColumns is the canonical column list for memory SELECTs, kept in one
// place so scanMemory stays in sync with every query.
const memoryColumns = `id, type, content, summary, content_length, content_hash,
	metadata, relevance_score, access_count, last_accessed_at, reminder_at,
	is_archived, created_at, updated_at`

// Insert creates a new memory row.
func (s *Store) Insert(ctx context.Context, memory *types.Memory) error {
	if memory == nil {
		return storage.ErrInvalidInput
	}
	if memory.ID == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}
	if memory.Content == "" {
		return fmt.Errorf("%w: memory content is required", storage.ErrInvalidInput)
	}
	if !types.IsValidMemoryType(memory.Type) {
		return fmt.Errorf("%w: unknown memory type %q", storage.ErrInvalidInput, memory.Type)
	}

	metadataJSON, err := marshalJSONField(memory.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = now
	}
	if memory.UpdatedAt.IsZero() {
		memory.UpdatedAt = now
	}
	if memory.RelevanceScore == 0 {
		memory.RelevanceScore = 1.0
	}

	query := `
		INSERT INTO memories (
			id, type, content, summary, content_length, content_hash,
			metadata, relevance_score, access_count, last_accessed_at,
			reminder_at, is_archived, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		memory.ID, memory.Type, memory.Content, nullString(memory.Summary),
		memory.ContentLength, memory.ContentHash, metadataJSON,
		memory.RelevanceScore, memory.AccessCount, nullTime(memory.LastAccessedAt),
		nullTime(memory.ReminderAt), boolToInt(memory.IsArchived),
		memory.CreatedAt, memory.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}

	return nil
}

// Get retrieves a memory by ID.
func (s *Store) Get(ctx context.Context, id string) (*types.Memory, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)

	memory, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}

	return memory, nil
}

// Update overwrites an existing memory row.
func (s *Store) Update(ctx context.Context, memory *types.Memory) error {
	if memory == nil || memory.ID == "" {
		return fmt.Errorf("%w: memory with ID is required", storage.ErrInvalidInput)
	}

	metadataJSON, err := marshalJSONField(memory.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	memory.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE memories SET
			type = ?, content = ?, summary = ?, content_length = ?,
			content_hash = ?, metadata = ?, relevance_score = ?,
			access_count = ?, last_accessed_at = ?, reminder_at = ?,
			is_archived = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		memory.Type, memory.Content, nullString(memory.Summary),
		memory.ContentLength, memory.ContentHash, metadataJSON,
		memory.RelevanceScore, memory.AccessCount, nullTime(memory.LastAccessedAt),
		nullTime(memory.ReminderAt), boolToInt(memory.IsArchived),
		memory.UpdatedAt, memory.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update memory: %w", err)
	}

	return requireRowAffected(result)
}

// FindActiveByHash returns the non-archived memory with the given content hash.
func (s *Store) FindActiveByHash(ctx context.Context, contentHash string) (*types.Memory, error) {
	if contentHash == "" {
		return nil, fmt.Errorf("%w: content hash is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE content_hash = ? AND is_archived = 0
		 ORDER BY created_at DESC LIMIT 1`, contentHash)

	memory, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find memory by hash: %w", err)
	}

	return memory, nil
}

// FindPreference returns the non-archived preference memory for a category.
// The category lives in the metadata JSON under the "category" key.
func (s *Store) FindPreference(ctx context.Context, category string) (*types.Memory, error) {
	if category == "" {
		return nil, fmt.Errorf("%w: category is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE type = ? AND is_archived = 0
		   AND json_extract(metadata, '$.category') = ?
		 ORDER BY created_at DESC LIMIT 1`,
		types.MemoryTypePreference, category)

	memory, err := scanMemory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find preference: %w", err)
	}

	return memory, nil
}

// Archive soft-removes a memory.
func (s *Store) Archive(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, true)
}

// Restore reverses an archive.
func (s *Store) Restore(ctx context.Context, id string) error {
	return s.setArchived(ctx, id, false)
}

func (s *Store) setArchived(ctx context.Context, id string, archived bool) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE memories SET is_archived = ?, updated_at = ? WHERE id = ?`,
		boolToInt(archived), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update archive flag: %w", err)
	}

	return requireRowAffected(result)
}

// RecordAccess stamps last_accessed_at and bumps access_count in one statement.
func (s *Store) RecordAccess(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}

	return requireRowAffected(result)
}

// List retrieves memories with pagination and filtering.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) (*storage.PaginatedResult[types.Memory], error) {
	opts.Normalize()

	var (
		joins      []string
		conditions []string
		args       []interface{}
	)

	if !opts.IncludeArchived {
		conditions = append(conditions, "m.is_archived = 0")
	}
	if opts.Type != "" {
		conditions = append(conditions, "m.type = ?")
		args = append(args, opts.Type)
	}
	if !opts.CreatedAfter.IsZero() {
		conditions = append(conditions, "m.created_at >= ?")
		args = append(args, opts.CreatedAfter)
	}
	if !opts.CreatedBefore.IsZero() {
		conditions = append(conditions, "m.created_at <= ?")
		args = append(args, opts.CreatedBefore)
	}
	if opts.EntityID != "" {
		joins = append(joins, "JOIN memory_entity_links mel ON mel.memory_id = m.id")
		conditions = append(conditions, "mel.entity_id = ?")
		args = append(args, opts.EntityID)
	}
	if opts.TagName != "" {
		joins = append(joins,
			"JOIN memory_tag_links mtl ON mtl.memory_id = m.id",
			"JOIN memory_tags mt ON mt.id = mtl.tag_id")
		conditions = append(conditions, "mt.name = ?")
		args = append(args, opts.TagName)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	joinClause := ""
	if len(joins) > 0 {
		joinClause = " " + strings.Join(joins, " ")
	}

	var total int
	countQuery := "SELECT COUNT(DISTINCT m.id) FROM memories m" + joinClause + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count memories: %w", err)
	}

	// SortBy is whitelist-validated in Normalize, safe to interpolate.
	query := fmt.Sprintf(
		`SELECT DISTINCT m.id, m.type, m.content, m.summary, m.content_length,
			m.content_hash, m.metadata, m.relevance_score, m.access_count,
			m.last_accessed_at, m.reminder_at, m.is_archived, m.created_at, m.updated_at
		 FROM memories m%s%s ORDER BY m.%s %s LIMIT ? OFFSET ?`,
		joinClause, where, opts.SortBy, strings.ToUpper(opts.SortOrder))
	args = append(args, opts.Limit, opts.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	memories, err := collectMemories(rows)
	if err != nil {
		return nil, err
	}

	return &storage.PaginatedResult[types.Memory]{
		Items:    memories,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(memories) < total,
	}, nil
}

// DueReminders returns reminder memories falling due within [from, until].
func (s *Store) DueReminders(ctx context.Context, from, until time.Time, limit int) ([]types.Memory, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE type = ? AND is_archived = 0
		   AND reminder_at IS NOT NULL AND reminder_at >= ? AND reminder_at <= ?
		 ORDER BY reminder_at ASC LIMIT ?`,
		types.MemoryTypeReminder, from, until, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}
	defer rows.Close()

	return collectMemories(rows)
}

// LinkEntity attaches an entity to a memory. Duplicate links are no-ops.
func (s *Store) LinkEntity(ctx context.Context, memoryID, entityID, linkType string) error {
	if memoryID == "" || entityID == "" {
		return fmt.Errorf("%w: memory ID and entity ID are required", storage.ErrInvalidInput)
	}
	if linkType == "" {
		linkType = types.LinkTypeMentioned
	}
	if !types.IsValidLinkType(linkType) {
		return fmt.Errorf("%w: unknown link type %q", storage.ErrInvalidInput, linkType)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_entity_links (memory_id, entity_id, link_type, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(memory_id, entity_id, link_type) DO NOTHING`,
		memoryID, entityID, linkType, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to link entity: %w", err)
	}

	return nil
}

// EntitiesFor returns the entities linked to a memory.
func (s *Store) EntitiesFor(ctx context.Context, memoryID string) ([]*types.Entity, error) {
	if memoryID == "" {
		return nil, fmt.Errorf("%w: memory ID is required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumnsPrefixed("e")+`
		 FROM memory_entities e
		 JOIN memory_entity_links mel ON mel.entity_id = e.id
		 WHERE mel.memory_id = ?
		 ORDER BY e.name COLLATE NOCASE`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query linked entities: %w", err)
	}
	defer rows.Close()

	var entities []*types.Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	return entities, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (*types.Memory, error) {
	var (
		m              types.Memory
		summary        sql.NullString
		metadataJSON   sql.NullString
		lastAccessedAt sql.NullTime
		reminderAt     sql.NullTime
		isArchived     int
	)

	err := row.Scan(
		&m.ID, &m.Type, &m.Content, &summary, &m.ContentLength, &m.ContentHash,
		&metadataJSON, &m.RelevanceScore, &m.AccessCount, &lastAccessedAt,
		&reminderAt, &isArchived, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Summary = summary.String
	m.IsArchived = isArchived != 0
	if lastAccessedAt.Valid {
		m.LastAccessedAt = &lastAccessedAt.Time
	}
	if reminderAt.Valid {
		m.ReminderAt = &reminderAt.Time
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &m, nil
}

func collectMemories(rows *sql.Rows) ([]types.Memory, error) {
	var memories []types.Memory
	for rows.Next() {
		memory, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		memories = append(memories, *memory)
	}
	return memories, rows.Err()
}

func marshalJSONField(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRowAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func dbPathFromDSN(dsn string) string {
	if dsn == ":memory:" || dsn == "" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" || path == "" {
			return ""
		}
		return path
	}

	return dsn
}

func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") ||
		strings.Contains(msg, "database is locked")
}

func isWALStale(dbPath string) bool {
	shmPath := dbPath + "-shm"
	walPath := dbPath + "-wal"

	if !fileExists(shmPath) && !fileExists(walPath) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		// lsof not available (e.g., Alpine Docker) — conservative fallback.
		return false
	}

	cmd := exec.Command(lsofPath, "-t", dbPath, shmPath, walPath)
	output, err := cmd.Output()
	if err != nil {
		// lsof returns exit code 1 when no files are open — that means stale.
		return true
	}

	return strings.TrimSpace(string(output)) == ""
}

func removeStaleWAL(dbPath string, logger zerolog.Logger) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", path).Msg("failed to remove stale WAL file")
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
