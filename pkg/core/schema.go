package core

import (
	"context"
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	data TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(type);

CREATE TABLE IF NOT EXISTS relationships (
	from_id TEXT NOT NULL,
	relation TEXT NOT NULL,
	to_id TEXT NOT NULL,
	metadata TEXT,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (from_id, relation, to_id)
);

CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_id);
CREATE INDEX IF NOT EXISTS idx_relationships_relation ON relationships(relation);

CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	event TEXT NOT NULL,
	actor TEXT NOT NULL,
	object TEXT,
	data TEXT,
	result TEXT,
	previous_data TEXT,
	timestamp INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp, id);
CREATE INDEX IF NOT EXISTS idx_events_event ON events(event);
CREATE INDEX IF NOT EXISTS idx_events_object ON events(object);

CREATE TABLE IF NOT EXISTS subscriptions (
	id TEXT PRIMARY KEY,
	pattern TEXT NOT NULL,
	webhook TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS embeddings (
	id TEXT PRIMARY KEY,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	vector BLOB NOT NULL,
	dimensions INTEGER NOT NULL,
	model TEXT NOT NULL,
	content_hash TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(entity_type, entity_id)
);

CREATE INDEX IF NOT EXISTS idx_embeddings_entity ON embeddings(entity_id);
`

// ensureSchema creates the tables once per store
func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()

	if s.schemaReady {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return wrapError("schema", err)
	}

	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(timestamp) FROM events").Scan(&last); err != nil {
		return wrapError("schema", err)
	}

	s.eventMu.Lock()
	if last.Valid && last.Int64 > s.lastEventMS {
		s.lastEventMS = last.Int64
	}
	s.eventMu.Unlock()

	s.schemaReady = true
	s.logger.Debug("schema ready")
	return nil
}
