package takeover

import (
	"fmt"
	"os"
	"time"

	"github.com/mantra-hq/mantra/internal/fsutil"
	"github.com/mantra-hq/mantra/internal/mcpmodel"
	"github.com/mantra-hq/mantra/internal/storage"
)

// Engine wires the registry and store together for the
// restore/resync/sweep operations that act on already-committed backups
// rather than on a fresh scan.
type Engine struct {
	store    *storage.Store
	registry *Registry
}

// NewEngine constructs a takeover Engine.
func NewEngine(store *storage.Store, registry *Registry) *Engine {
	return &Engine{store: store, registry: registry}
}

// RestoreResult reports one backup's restore outcome.
type RestoreResult struct {
	BackupID string
	Restored bool
	Error    string
}

// RestoreBackup verifies a single backup's hash against its current on-disk
// bytes and, if it matches, atomically copies it back over the original
// file and marks the row restored. For a local-scope backup, the fragment
// is merged back into the project's mcpServers sub-tree instead of
// overwriting the whole file.
func (e *Engine) RestoreBackup(b mcpmodel.TakeoverBackup) error {
	actualHash, err := fsutil.HashFile(b.BackupPath)
	if err != nil {
		return fmt.Errorf("read backup %s: %w", b.BackupPath, err)
	}
	if actualHash != b.Hash {
		return fmt.Errorf("backup %s hash mismatch: stored %s, actual %s", b.BackupPath, b.Hash, actualHash)
	}

	if b.Scope == mcpmodel.ScopeLocal {
		if err := e.restoreLocalScope(b); err != nil {
			return err
		}
	} else {
		if err := fsutil.CopyFileAtomic(b.BackupPath, b.OriginalPath); err != nil {
			return fmt.Errorf("restore %s: %w", b.OriginalPath, err)
		}
	}

	return e.store.MarkBackupRestored(b.ID, time.Now())
}

func (e *Engine) restoreLocalScope(b mcpmodel.TakeoverBackup) error {
	adapter, ok := e.registry.Get(b.ToolType)
	if !ok {
		return fmt.Errorf("no adapter %q for local-scope restore", b.ToolType)
	}
	local, ok := adapter.(LocalScopeAdapter)
	if !ok {
		return fmt.Errorf("adapter %q does not support local scope", b.ToolType)
	}

	fragment, err := os.ReadFile(b.BackupPath)
	if err != nil {
		return fmt.Errorf("read local-scope backup: %w", err)
	}
	current, err := os.ReadFile(b.OriginalPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", b.OriginalPath, err)
	}
	merged, err := local.RestoreLocalScope(current, b.ProjectPath, fragment)
	if err != nil {
		return fmt.Errorf("merge local-scope fragment: %w", err)
	}
	if err := fsutil.AtomicReplace(b.OriginalPath, merged, 0o644); err != nil {
		return fmt.Errorf("rewrite %s: %w", b.OriginalPath, err)
	}
	return nil
}

// RestoreAll restores every currently active backup.
func (e *Engine) RestoreAll() ([]RestoreResult, error) {
	backups, err := e.store.ActiveBackups("")
	if err != nil {
		return nil, fmt.Errorf("list active backups: %w", err)
	}
	return e.restoreEach(backups), nil
}

// RestoreByTool restores the most recent active backup for toolType —
// ActiveBackups already returns newest-taken-first, so the head of the
// filtered list is "most recent".
func (e *Engine) RestoreByTool(toolType string) (*RestoreResult, error) {
	backups, err := e.store.ActiveBackups(toolType)
	if err != nil {
		return nil, fmt.Errorf("list active backups for %s: %w", toolType, err)
	}
	if len(backups) == 0 {
		return nil, fmt.Errorf("no active backup for tool %q", toolType)
	}
	results := e.restoreEach(backups[:1])
	return &results[0], nil
}

func (e *Engine) restoreEach(backups []mcpmodel.TakeoverBackup) []RestoreResult {
	results := make([]RestoreResult, 0, len(backups))
	for _, b := range backups {
		r := RestoreResult{BackupID: b.ID}
		if err := e.RestoreBackup(b); err != nil {
			r.Error = err.Error()
		} else {
			r.Restored = true
		}
		results = append(results, r)
	}
	return results
}

// ResyncResult reports one config file's resync outcome.
type ResyncResult struct {
	OriginalPath string
	Error        string
}

// Resync re-injects the gateway's (possibly just-changed) URL and token
// into every active backup's current file contents and writes it back,
// without touching the backup file or its stored hash — so a later restore
// still verifies against the pre-takeover original, not the resynced
// content.
func (e *Engine) Resync(cfg GatewayInjectionConfig) ([]ResyncResult, error) {
	backups, err := e.store.ActiveBackups("")
	if err != nil {
		return nil, fmt.Errorf("list active backups: %w", err)
	}

	var results []ResyncResult
	for _, b := range backups {
		res := ResyncResult{OriginalPath: b.OriginalPath}
		if err := e.resyncOne(b, cfg); err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) resyncOne(b mcpmodel.TakeoverBackup, cfg GatewayInjectionConfig) error {
	adapter, ok := e.registry.Get(b.ToolType)
	if !ok {
		return fmt.Errorf("no adapter %q", b.ToolType)
	}
	current, err := os.ReadFile(b.OriginalPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", b.OriginalPath, err)
	}

	var rewritten []byte
	if b.Scope == mcpmodel.ScopeLocal {
		local, ok := adapter.(LocalScopeAdapter)
		if !ok {
			return fmt.Errorf("adapter %q does not support local scope", b.ToolType)
		}
		rewritten, err = local.InjectLocalScope(current, b.ProjectPath, cfg)
	} else {
		rewritten, err = adapter.InjectGateway(current, cfg)
	}
	if err != nil {
		return fmt.Errorf("inject gateway: %w", err)
	}

	perm := os.FileMode(0o644)
	if info, statErr := os.Stat(b.OriginalPath); statErr == nil {
		perm = info.Mode().Perm()
	}
	return fsutil.AtomicReplace(b.OriginalPath, rewritten, perm)
}

// IntegrityReport is one active backup's on-disk health.
type IntegrityReport struct {
	Backup             mcpmodel.TakeoverBackup
	BackupFileExists   bool
	OriginalFileExists bool
	HashValid          bool
}

// IntegritySweep lists every active backup's on-disk health, and — if
// deleteStale is true — deletes the backup row for any backup whose file is
// missing or whose hash no longer matches, since such a row can never again
// be used for a trustworthy restore.
func (e *Engine) IntegritySweep(deleteStale bool) ([]IntegrityReport, error) {
	backups, err := e.store.ActiveBackups("")
	if err != nil {
		return nil, fmt.Errorf("list active backups: %w", err)
	}

	reports := make([]IntegrityReport, 0, len(backups))
	for _, b := range backups {
		report := IntegrityReport{Backup: b}

		if _, err := os.Stat(b.BackupPath); err == nil {
			report.BackupFileExists = true
		}
		if _, err := os.Stat(b.OriginalPath); err == nil {
			report.OriginalFileExists = true
		}
		if report.BackupFileExists {
			if actual, err := fsutil.HashFile(b.BackupPath); err == nil && actual == b.Hash {
				report.HashValid = true
			}
		}

		if deleteStale && (!report.BackupFileExists || !report.HashValid) {
			if _, err := e.store.DB().Exec("DELETE FROM takeover_backups WHERE id = ?", b.ID); err != nil {
				return reports, fmt.Errorf("delete stale backup %s: %w", b.ID, err)
			}
		}

		reports = append(reports, report)
	}
	return reports, nil
}

// GetTakeoverStatus reports whether any active backup exists for toolType.
func (e *Engine) GetTakeoverStatus(toolType string) (bool, error) {
	backups, err := e.store.ActiveBackups(toolType)
	if err != nil {
		return false, err
	}
	return len(backups) > 0, nil
}
