package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// schemaVersionTable tracks which migrations have been applied, exactly as
// the session-memory database does it.
const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// migrations is an ordered list of schema migrations, applied starting from
// version 0. Never modify an existing migration; append new ones instead.
var migrations = []func(*sql.Tx) error{
	migrateV0,
	migrateV1,
	migrateV2,
}

// migrateV0 creates the normalized conversation-log tables (C1): one row
// per session, with its messages stored as a single JSON blob rather than
// normalized into a table per content-block kind, since sessions are always
// read and rewritten whole.
func migrateV0(tx *sql.Tx) error {
	schema := `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    cwd TEXT DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    metadata TEXT DEFAULT '{}',
    messages TEXT DEFAULT '[]',
    message_count INTEGER DEFAULT 0,
    is_empty INTEGER DEFAULT 0,
    source_path TEXT DEFAULT '',
    source_hash TEXT DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_source ON sessions(source);
CREATE INDEX IF NOT EXISTS idx_sessions_cwd ON sessions(cwd);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_source_path ON sessions(source_path) WHERE source_path != '';

CREATE VIRTUAL TABLE IF NOT EXISTS sessions_fts USING fts5(
    id UNINDEXED, title, messages_text,
    content=''
);
`
	_, err := tx.ExecContext(context.Background(), schema)
	return err
}

// migrateV1 creates the MCP gateway tables (C2): service definitions,
// per-project policy overrides, and the live-session registry persisted so
// a gateway restart doesn't forget which projects use which services.
func migrateV1(tx *sql.Tx) error {
	schema := `
CREATE TABLE IF NOT EXISTS mcp_services (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    transport TEXT NOT NULL,
    enabled INTEGER DEFAULT 1,
    source TEXT DEFAULT 'manual',
    source_file TEXT DEFAULT '',
    adapter_id TEXT DEFAULT '',
    source_scope TEXT DEFAULT '',
    default_policy TEXT DEFAULT '{"mode":"allow_all"}',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mcp_services_enabled ON mcp_services(enabled);

CREATE TABLE IF NOT EXISTS project_service_links (
    project_id TEXT NOT NULL,
    service_id TEXT NOT NULL REFERENCES mcp_services(id) ON DELETE CASCADE,
    policy_override TEXT DEFAULT '',
    PRIMARY KEY (project_id, service_id)
);
CREATE INDEX IF NOT EXISTS idx_project_service_links_service ON project_service_links(service_id);

CREATE TABLE IF NOT EXISTS mcp_audit_log (
    id TEXT PRIMARY KEY,
    event TEXT NOT NULL,
    project_id TEXT DEFAULT '',
    service_id TEXT DEFAULT '',
    tool_name TEXT DEFAULT '',
    message TEXT DEFAULT '',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mcp_audit_log_event ON mcp_audit_log(event);
CREATE INDEX IF NOT EXISTS idx_mcp_audit_log_created ON mcp_audit_log(created_at DESC);
`
	_, err := tx.ExecContext(context.Background(), schema)
	return err
}

// migrateV2 creates the takeover engine's tables (C3): one row per
// rewritten vendor config file, holding enough to restore it even if the
// gateway process that performed the takeover never comes back.
func migrateV2(tx *sql.Tx) error {
	schema := `
CREATE TABLE IF NOT EXISTS takeover_backups (
    id TEXT PRIMARY KEY,
    tool_type TEXT NOT NULL,
    scope TEXT NOT NULL,
    project_path TEXT DEFAULT '',
    original_path TEXT NOT NULL,
    backup_path TEXT NOT NULL,
    taken_at TEXT NOT NULL,
    restored_at TEXT DEFAULT '',
    status TEXT DEFAULT 'active',
    hash TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_takeover_backups_status ON takeover_backups(status);
CREATE INDEX IF NOT EXISTS idx_takeover_backups_tool ON takeover_backups(tool_type, scope);
CREATE UNIQUE INDEX IF NOT EXISTS idx_takeover_backups_original
    ON takeover_backups(original_path) WHERE status = 'active';
`
	_, err := tx.ExecContext(context.Background(), schema)
	return err
}

// ensureSchema creates the version table and runs any pending migrations.
func (s *Store) ensureSchema() error {
	if _, err := s.db.ExecContext(context.Background(), schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRowContext(context.Background(), "SELECT COALESCE(MAX(version), -1) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	for i := currentVersion + 1; i < len(migrations); i++ {
		if err := s.runMigration(i); err != nil {
			return fmt.Errorf("run migration %d: %w", i, err)
		}
	}
	return nil
}

func (s *Store) runMigration(version int) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := migrations[version](tx); err != nil {
		return fmt.Errorf("execute migration: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(context.Background(), "INSERT INTO schema_version (version, applied_at) VALUES (?, ?)", version, now); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	var version int
	row := s.db.QueryRowContext(context.Background(), "SELECT COALESCE(MAX(version), -1) FROM schema_version")
	err := row.Scan(&version)
	return version, err
}
