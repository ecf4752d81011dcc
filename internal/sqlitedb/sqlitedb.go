// Package sqlitedb is an embedded SQLite memory backend for local and test use.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// StorageType is reported in memory stats.
const StorageType = "sqlite_vector"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS agent_memories (
	id              TEXT PRIMARY KEY,
	agent_id        TEXT NOT NULL DEFAULT '',
	conversation_id TEXT NOT NULL DEFAULT '',
	user_id         TEXT NOT NULL DEFAULT '',
	memory_type     TEXT NOT NULL DEFAULT 'learning',
	content         TEXT NOT NULL,
	content_folded  TEXT NOT NULL DEFAULT '',
	metadata        TEXT NOT NULL DEFAULT '{}',
	importance      REAL NOT NULL DEFAULT 0.5,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_memories_agent ON agent_memories(agent_id);
CREATE INDEX IF NOT EXISTS idx_agent_memories_conversation ON agent_memories(conversation_id);
CREATE INDEX IF NOT EXISTS idx_agent_memories_user ON agent_memories(user_id);

CREATE TABLE IF NOT EXISTS memory_embeddings (
	memory_id    TEXT PRIMARY KEY REFERENCES agent_memories(id),
	embedding    BLOB NOT NULL,
	dimension    INTEGER NOT NULL,
	content_text TEXT NOT NULL,
	created_at   TEXT NOT NULL
);
`

// DB is a SQLite-backed memory store backend.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path with foreign keys on and
// applies the schema. Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var dsn string
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		conn.SetMaxOpenConns(1)
	}

	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger.Info("sqlite memory backend ready", "path", path)
	return &DB{conn: conn, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// StorageType implements memory.Backend.
func (d *DB) StorageType() string {
	return StorageType
}
