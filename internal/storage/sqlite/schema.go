package sqlite

// Schema is the complete SQLite schema for the Engram memory engine.
// All statements are idempotent (IF NOT EXISTS) so the schema can be applied
// on every startup without a separate migration step.
//
// Six relations back the engine: memories, memory_entities,
// memory_relationships, memory_entity_links, memory_tag_links (plus the
// memory_tags label table they reference), and memory_embeddings. FTS5
// virtual tables over (content, summary) and (name, description) support the
// full-text fallback search path and are kept in sync via triggers.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
    id               TEXT PRIMARY KEY,
    type             TEXT NOT NULL,
    content          TEXT NOT NULL,
    summary          TEXT,
    content_length   INTEGER NOT NULL DEFAULT 0,
    content_hash     TEXT NOT NULL,
    metadata         TEXT,
    relevance_score  REAL NOT NULL DEFAULT 1.0,
    access_count     INTEGER NOT NULL DEFAULT 0,
    last_accessed_at TIMESTAMP,
    reminder_at      TIMESTAMP,
    is_archived      INTEGER NOT NULL DEFAULT 0,
    created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memories_content_hash ON memories(content_hash) WHERE is_archived = 0;
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type) WHERE is_archived = 0;
CREATE INDEX IF NOT EXISTS idx_memories_reminder_at ON memories(reminder_at) WHERE reminder_at IS NOT NULL AND is_archived = 0;
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);

CREATE TABLE IF NOT EXISTS memory_entities (
    id                TEXT PRIMARY KEY,
    entity_type       TEXT NOT NULL,
    entity_subtype    TEXT,
    name              TEXT NOT NULL,
    description       TEXT,
    summary           TEXT,
    attributes        TEXT,
    email             TEXT,
    phone             TEXT,
    mention_count     INTEGER NOT NULL DEFAULT 1,
    last_mentioned_at TIMESTAMP,
    is_active         INTEGER NOT NULL DEFAULT 1,
    start_date        TIMESTAMP,
    end_date          TIMESTAMP,
    created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_entities_email ON memory_entities(entity_type, email) WHERE email IS NOT NULL AND is_active = 1;
CREATE INDEX IF NOT EXISTS idx_entities_name ON memory_entities(entity_type, name COLLATE NOCASE) WHERE is_active = 1;

CREATE TABLE IF NOT EXISTS memory_relationships (
    id                TEXT PRIMARY KEY,
    from_entity_id    TEXT NOT NULL REFERENCES memory_entities(id) ON DELETE CASCADE,
    to_entity_id      TEXT NOT NULL REFERENCES memory_entities(id) ON DELETE CASCADE,
    relationship_type TEXT NOT NULL,
    metadata          TEXT,
    started_at        TIMESTAMP,
    ended_at          TIMESTAMP,
    created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(from_entity_id, to_entity_id, relationship_type)
);

CREATE INDEX IF NOT EXISTS idx_relationships_from ON memory_relationships(from_entity_id);
CREATE INDEX IF NOT EXISTS idx_relationships_to ON memory_relationships(to_entity_id);

CREATE TABLE IF NOT EXISTS memory_tags (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    usage_count INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS memory_entity_links (
    memory_id  TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
    entity_id  TEXT NOT NULL REFERENCES memory_entities(id) ON DELETE CASCADE,
    link_type  TEXT NOT NULL DEFAULT 'mentioned',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (memory_id, entity_id, link_type)
);

CREATE INDEX IF NOT EXISTS idx_entity_links_entity ON memory_entity_links(entity_id);

CREATE TABLE IF NOT EXISTS memory_tag_links (
    memory_id  TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
    tag_id     TEXT NOT NULL REFERENCES memory_tags(id) ON DELETE CASCADE,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (memory_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_tag_links_tag ON memory_tag_links(tag_id);

CREATE TABLE IF NOT EXISTS memory_embeddings (
    memory_id  TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
    vector     BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    magnitude  REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
    content,
    summary,
    content='memories',
    content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
    INSERT INTO memories_fts(rowid, content, summary)
    VALUES (new.rowid, new.content, COALESCE(new.summary, ''));
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, content, summary)
    VALUES ('delete', old.rowid, old.content, COALESCE(old.summary, ''));
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_update AFTER UPDATE OF content, summary ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, content, summary)
    VALUES ('delete', old.rowid, old.content, COALESCE(old.summary, ''));
    INSERT INTO memories_fts(rowid, content, summary)
    VALUES (new.rowid, new.content, COALESCE(new.summary, ''));
END;

CREATE VIRTUAL TABLE IF NOT EXISTS entities_fts USING fts5(
    name,
    description,
    content='memory_entities',
    content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS entities_fts_insert AFTER INSERT ON memory_entities BEGIN
    INSERT INTO entities_fts(rowid, name, description)
    VALUES (new.rowid, new.name, COALESCE(new.description, ''));
END;

CREATE TRIGGER IF NOT EXISTS entities_fts_delete AFTER DELETE ON memory_entities BEGIN
    INSERT INTO entities_fts(entities_fts, rowid, name, description)
    VALUES ('delete', old.rowid, old.name, COALESCE(old.description, ''));
END;

CREATE TRIGGER IF NOT EXISTS entities_fts_update AFTER UPDATE OF name, description ON memory_entities BEGIN
    INSERT INTO entities_fts(entities_fts, rowid, name, description)
    VALUES ('delete', old.rowid, old.name, COALESCE(old.description, ''));
    INSERT INTO entities_fts(rowid, name, description)
    VALUES (new.rowid, new.name, COALESCE(new.description, ''));
END;
`
