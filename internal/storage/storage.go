// Package storage provides the single SQLite-backed persistence layer
// shared by the log normalizer, the MCP gateway, and the takeover engine:
// one WAL-mode database under <dataDir>/mantra.db, migrated the same way
// the session-memory database is (an ordered, append-only migration list
// tracked in a schema_version table).
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mantra-hq/mantra/internal/mcpmodel"
)

// Store wraps the shared database connection.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at <dataDir>/mantra.db, enabling WAL
// mode and foreign keys, and runs any pending migrations.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "mantra.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection for callers that need raw access
// (e.g. a future sweep/export command).
func (s *Store) DB() *sql.DB {
	return s.db
}

// SessionRecord is a normalized conversation log ready for storage. The
// message tree itself travels as a JSON blob (Messages) rather than being
// split across tables — sessions are always read and rewritten whole, so
// normalizing further would only cost joins for no query benefit.
type SessionRecord struct {
	ID           string
	Source       string
	Cwd          string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Metadata     json.RawMessage
	Messages     json.RawMessage
	MessageCount int
	IsEmpty      bool
	Title        string
	SourcePath   string
	SourceHash   string
}

const sessionColumns = "id, source, cwd, created_at, updated_at, metadata, messages, message_count, is_empty, source_path, source_hash"

// UpsertSession inserts or replaces a session by ID and keeps the FTS index
// in sync, matching the ideas/decisions trigger-based pattern the
// session-memory database uses, but done explicitly since SQLite content='' tables
// require content to be supplied by the application rather than a trigger.
func (s *Store) UpsertSession(rec SessionRecord) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	isEmpty := 0
	if rec.IsEmpty {
		isEmpty = 1
	}
	_, err = tx.ExecContext(context.Background(), `
INSERT INTO sessions (`+sessionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    source = excluded.source,
    cwd = excluded.cwd,
    updated_at = excluded.updated_at,
    metadata = excluded.metadata,
    messages = excluded.messages,
    message_count = excluded.message_count,
    is_empty = excluded.is_empty,
    source_path = excluded.source_path,
    source_hash = excluded.source_hash
`,
		rec.ID, rec.Source, rec.Cwd,
		rec.CreatedAt.UTC().Format(time.RFC3339), rec.UpdatedAt.UTC().Format(time.RFC3339),
		string(rec.Metadata), string(rec.Messages), rec.MessageCount, isEmpty,
		rec.SourcePath, rec.SourceHash,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(context.Background(), "DELETE FROM sessions_fts WHERE id = ?", rec.ID); err != nil {
		return fmt.Errorf("clear session fts: %w", err)
	}
	if _, err := tx.ExecContext(context.Background(),
		"INSERT INTO sessions_fts (id, title, messages_text) VALUES (?, ?, ?)",
		rec.ID, rec.Title, string(rec.Messages)); err != nil {
		return fmt.Errorf("index session fts: %w", err)
	}

	return tx.Commit()
}

func scanSession(row interface {
	Scan(dest ...interface{}) error
}) (SessionRecord, error) {
	var rec SessionRecord
	var createdAt, updatedAt string
	var metadata, messages string
	var isEmpty int
	if err := row.Scan(&rec.ID, &rec.Source, &rec.Cwd, &createdAt, &updatedAt,
		&metadata, &messages, &rec.MessageCount, &isEmpty, &rec.SourcePath, &rec.SourceHash); err != nil {
		return SessionRecord{}, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	rec.Metadata = json.RawMessage(metadata)
	rec.Messages = json.RawMessage(messages)
	rec.IsEmpty = isEmpty != 0
	return rec, nil
}

// ErrNotFound is returned by lookups when no matching row exists.
var ErrNotFound = sql.ErrNoRows

// GetSession returns the session with the given ID, or ErrNotFound.
func (s *Store) GetSession(id string) (SessionRecord, error) {
	row := s.db.QueryRowContext(context.Background(),
		"SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	return scanSession(row)
}

// GetSessionBySourcePath returns the session imported from sourcePath, if any.
func (s *Store) GetSessionBySourcePath(sourcePath string) (SessionRecord, error) {
	row := s.db.QueryRowContext(context.Background(),
		"SELECT "+sessionColumns+" FROM sessions WHERE source_path = ?", sourcePath)
	return scanSession(row)
}

// ListSessionsOptions filters ListSessions.
type ListSessionsOptions struct {
	Source         string // empty = any
	Cwd            string // empty = any
	IncludeEmpty   bool
	Limit          int
}

// ListSessions returns sessions matching opts, newest-updated first.
func (s *Store) ListSessions(opts ListSessionsOptions) ([]SessionRecord, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE 1=1"
	var args []interface{}
	if opts.Source != "" {
		query += " AND source = ?"
		args = append(args, opts.Source)
	}
	if opts.Cwd != "" {
		query += " AND cwd = ?"
		args = append(args, opts.Cwd)
	}
	if !opts.IncludeEmpty {
		query += " AND is_empty = 0"
	}
	query += " ORDER BY updated_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SearchSessions runs a full-text search over session titles and message
// bodies, returning matching session IDs ranked by relevance.
func (s *Store) SearchSessions(query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT id FROM sessions_fts WHERE sessions_fts MATCH ? ORDER BY rank LIMIT ?", query, limit)
	if err != nil {
		return nil, fmt.Errorf("search sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountSessions returns the total number of non-empty sessions.
func (s *Store) CountSessions() (int, error) {
	var count int
	err := s.db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sessions WHERE is_empty = 0").Scan(&count)
	return count, err
}

// --- MCP services (C2) -----------------------------------------------

// UpsertService inserts or replaces a service definition.
func (s *Store) UpsertService(svc mcpmodel.MCPService) error {
	transport, err := json.Marshal(svc.Transport)
	if err != nil {
		return fmt.Errorf("marshal transport: %w", err)
	}
	if err := validateAgainstSchema(transportSchema, transport); err != nil {
		return fmt.Errorf("service %s: invalid transport: %w", svc.ID, err)
	}
	policy, err := json.Marshal(svc.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	if err := validateAgainstSchema(toolPolicySchema, policy); err != nil {
		return fmt.Errorf("service %s: invalid default policy: %w", svc.ID, err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	enabled := 0
	if svc.Enabled {
		enabled = 1
	}
	_, err = s.db.ExecContext(context.Background(), `
INSERT INTO mcp_services (id, name, transport, enabled, source, source_file, adapter_id, source_scope, default_policy, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    transport = excluded.transport,
    enabled = excluded.enabled,
    source = excluded.source,
    source_file = excluded.source_file,
    adapter_id = excluded.adapter_id,
    source_scope = excluded.source_scope,
    default_policy = excluded.default_policy,
    updated_at = excluded.updated_at
`, svc.ID, svc.Name, string(transport), enabled, string(svc.Source), svc.SourceFile,
		svc.AdapterID, string(svc.SourceScope), string(policy), now, now)
	if err != nil {
		return fmt.Errorf("upsert service: %w", err)
	}
	return nil
}

func scanService(row interface{ Scan(dest ...interface{}) error }) (mcpmodel.MCPService, error) {
	var svc mcpmodel.MCPService
	var transport, policy, source, scope string
	var enabled int
	var createdAt, updatedAt string
	if err := row.Scan(&svc.ID, &svc.Name, &transport, &enabled, &source,
		&svc.SourceFile, &svc.AdapterID, &scope, &policy, &createdAt, &updatedAt); err != nil {
		return mcpmodel.MCPService{}, err
	}
	svc.Enabled = enabled != 0
	svc.Source = mcpmodel.ServiceSource(source)
	svc.SourceScope = mcpmodel.Scope(scope)
	if err := json.Unmarshal([]byte(transport), &svc.Transport); err != nil {
		return mcpmodel.MCPService{}, fmt.Errorf("unmarshal transport: %w", err)
	}
	if err := json.Unmarshal([]byte(policy), &svc.DefaultPolicy); err != nil {
		return mcpmodel.MCPService{}, fmt.Errorf("unmarshal policy: %w", err)
	}
	return svc, nil
}

const serviceColumns = "id, name, transport, enabled, source, source_file, adapter_id, source_scope, default_policy, created_at, updated_at"

// GetService returns the service with the given ID, or ErrNotFound.
func (s *Store) GetService(id string) (mcpmodel.MCPService, error) {
	row := s.db.QueryRowContext(context.Background(),
		"SELECT "+serviceColumns+" FROM mcp_services WHERE id = ?", id)
	return scanService(row)
}

// ListServices returns all known services, enabled first.
func (s *Store) ListServices() ([]mcpmodel.MCPService, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT "+serviceColumns+" FROM mcp_services ORDER BY enabled DESC, name ASC")
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []mcpmodel.MCPService
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

// DeleteService removes a service and its project links (ON DELETE CASCADE).
func (s *Store) DeleteService(id string) error {
	_, err := s.db.ExecContext(context.Background(), "DELETE FROM mcp_services WHERE id = ?", id)
	return err
}

// SetProjectPolicyOverride stores (or clears, when override is nil) a
// project-specific policy override for a service.
func (s *Store) SetProjectPolicyOverride(projectID, serviceID string, override *mcpmodel.ToolPolicy) error {
	overrideJSON := ""
	if override != nil {
		b, err := json.Marshal(override)
		if err != nil {
			return fmt.Errorf("marshal override: %w", err)
		}
		if err := validateAgainstSchema(toolPolicySchema, b); err != nil {
			return fmt.Errorf("policy override for service %s: %w", serviceID, err)
		}
		overrideJSON = string(b)
	}
	_, err := s.db.ExecContext(context.Background(), `
INSERT INTO project_service_links (project_id, service_id, policy_override)
VALUES (?, ?, ?)
ON CONFLICT(project_id, service_id) DO UPDATE SET policy_override = excluded.policy_override
`, projectID, serviceID, overrideJSON)
	return err
}

// ProjectPolicyOverride returns the per-project override for a service, if any.
func (s *Store) ProjectPolicyOverride(projectID, serviceID string) (*mcpmodel.ToolPolicy, error) {
	var overrideJSON string
	err := s.db.QueryRowContext(context.Background(),
		"SELECT policy_override FROM project_service_links WHERE project_id = ? AND service_id = ?",
		projectID, serviceID).Scan(&overrideJSON)
	if err == sql.ErrNoRows || overrideJSON == "" {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup policy override: %w", err)
	}
	var policy mcpmodel.ToolPolicy
	if err := json.Unmarshal([]byte(overrideJSON), &policy); err != nil {
		return nil, fmt.Errorf("unmarshal policy override: %w", err)
	}
	return &policy, nil
}

// DistinctProjectIDs returns every project ID that has at least one linked
// service, used by the gateway to resolve a session's work directory
// against known project roots.
func (s *Store) DistinctProjectIDs() ([]string, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT DISTINCT project_id FROM project_service_links")
	if err != nil {
		return nil, fmt.Errorf("list project ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteProjectLink removes one project/service link, the inverse of
// SetProjectPolicyOverride's insert, used by the takeover engine to unwind
// a link-only import step on rollback.
func (s *Store) DeleteProjectLink(projectID, serviceID string) error {
	_, err := s.db.ExecContext(context.Background(),
		"DELETE FROM project_service_links WHERE project_id = ? AND service_id = ?", projectID, serviceID)
	return err
}

// ProjectServices returns the IDs of every service linked to projectID.
func (s *Store) ProjectServices(projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT service_id FROM project_service_links WHERE project_id = ?", projectID)
	if err != nil {
		return nil, fmt.Errorf("list project services: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AppendAuditEvent writes an audit log row; failures here are never fatal
// to the caller's request but should be logged by the caller.
func (s *Store) AppendAuditEvent(id string, ev mcpmodel.AuditEvent) error {
	_, err := s.db.ExecContext(context.Background(), `
INSERT INTO mcp_audit_log (id, event, project_id, service_id, tool_name, message, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, id, ev.Event, ev.ProjectID, ev.ServiceID, ev.ToolName, ev.Message, ev.Timestamp.UTC().Format(time.RFC3339))
	return err
}

// --- Takeover backups (C3) --------------------------------------------

// PutBackup inserts a new takeover backup record.
func (s *Store) PutBackup(b mcpmodel.TakeoverBackup) error {
	var restoredAt string
	if b.RestoredAt != nil {
		restoredAt = b.RestoredAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(context.Background(), `
INSERT INTO takeover_backups (id, tool_type, scope, project_path, original_path, backup_path, taken_at, restored_at, status, hash)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, b.ID, b.ToolType, string(b.Scope), b.ProjectPath, b.OriginalPath, b.BackupPath,
		b.TakenAt.UTC().Format(time.RFC3339), restoredAt, string(b.Status), b.Hash)
	if err != nil {
		return fmt.Errorf("insert takeover backup: %w", err)
	}
	return nil
}

// MarkBackupRestored flips a backup's status to restored.
func (s *Store) MarkBackupRestored(id string, at time.Time) error {
	_, err := s.db.ExecContext(context.Background(),
		"UPDATE takeover_backups SET status = ?, restored_at = ? WHERE id = ?",
		string(mcpmodel.TakeoverRestored), at.UTC().Format(time.RFC3339), id)
	return err
}

func scanBackup(row interface{ Scan(dest ...interface{}) error }) (mcpmodel.TakeoverBackup, error) {
	var b mcpmodel.TakeoverBackup
	var scope, takenAt, restoredAt, status string
	if err := row.Scan(&b.ID, &b.ToolType, &scope, &b.ProjectPath, &b.OriginalPath,
		&b.BackupPath, &takenAt, &restoredAt, &status, &b.Hash); err != nil {
		return mcpmodel.TakeoverBackup{}, err
	}
	b.Scope = mcpmodel.Scope(scope)
	b.Status = mcpmodel.TakeoverStatus(status)
	b.TakenAt, _ = time.Parse(time.RFC3339, takenAt)
	if restoredAt != "" {
		t, _ := time.Parse(time.RFC3339, restoredAt)
		b.RestoredAt = &t
	}
	return b, nil
}

const backupColumns = "id, tool_type, scope, project_path, original_path, backup_path, taken_at, restored_at, status, hash"

// ActiveBackups returns every backup still awaiting restore, optionally
// filtered to a single tool type (empty string = all).
func (s *Store) ActiveBackups(toolType string) ([]mcpmodel.TakeoverBackup, error) {
	query := "SELECT " + backupColumns + " FROM takeover_backups WHERE status = 'active'"
	var args []interface{}
	if toolType != "" {
		query += " AND tool_type = ?"
		args = append(args, toolType)
	}
	query += " ORDER BY taken_at DESC"

	rows, err := s.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active backups: %w", err)
	}
	defer rows.Close()

	var out []mcpmodel.TakeoverBackup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BackupByOriginalPath returns the active backup for a given config path, if any.
func (s *Store) BackupByOriginalPath(originalPath string) (mcpmodel.TakeoverBackup, error) {
	row := s.db.QueryRowContext(context.Background(),
		"SELECT "+backupColumns+" FROM takeover_backups WHERE original_path = ? AND status = 'active'", originalPath)
	return scanBackup(row)
}
