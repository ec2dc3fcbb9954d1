package takeover

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mantra-hq/mantra/internal/fsutil"
	"github.com/mantra-hq/mantra/internal/mcpmodel"
	"github.com/mantra-hq/mantra/internal/storage"
)

// sanitizeForFilename replaces path separators so a project path can be
// embedded in a backup file's name without creating spurious directories.
func sanitizeForFilename(s string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_")
	return r.Replace(s)
}

// ImportDecision resolves one NeedsDecision conflict the preview surfaced.
type ImportDecision struct {
	Name     string
	Option   DecisionOption
	RenameTo string // used only with DecisionKeepBoth
}

// ImportRequest is one confirmed import: a project, optionally restricted
// to one adapter (empty means every adapter — a full-tool takeover), plus
// the user's resolution for every NeedsDecision conflict the preview found.
type ImportRequest struct {
	ProjectID    string
	ProjectPath  string
	AdapterID    string
	Decisions    []ImportDecision
	GatewayURL   string
	GatewayToken string
}

// ImportResult is what the executor reports back: success/failure,
// whether a failure triggered a rollback, and the errors and non-fatal
// warnings accumulated along the way.
type ImportResult struct {
	Success         bool
	RolledBack      bool
	Errors          []string
	Warnings        []string
	CreatedServices []string
	RewrittenFiles  []string
}

// ImportExecutor runs the three-phase takeover transaction against a
// service store and an adapter registry.
type ImportExecutor struct {
	store    *storage.Store
	registry *Registry
}

// NewImportExecutor constructs an executor bound to store and registry.
func NewImportExecutor(store *storage.Store, registry *Registry) *ImportExecutor {
	return &ImportExecutor{store: store, registry: registry}
}

func decisionFor(decisions []ImportDecision, name string) (ImportDecision, bool) {
	for _, d := range decisions {
		if d.Name == name {
			return d, true
		}
	}
	return ImportDecision{}, false
}

// Execute scans, classifies, and applies req, rewriting every vendor config
// file that contributed a service to the import and persisting a restorable
// backup for each one. Any fatal failure in phase 1 or phase 2 rolls back
// every DB mutation and restores every file already rewritten; a phase 3
// (Claude local-scope) failure is downgraded to a warning, per the local
// scope being a narrower, independently-restorable unit than the rest of
// the takeover.
func (e *ImportExecutor) Execute(req ImportRequest) (*ImportResult, error) {
	scanRegistry := e.registry
	if req.AdapterID != "" {
		adapter, err := e.registry.MustGet(req.AdapterID)
		if err != nil {
			return nil, err
		}
		scanRegistry = NewRegistry()
		scanRegistry.Register(adapter)
	}

	scan, err := Scan(scanRegistry, req.ProjectPath)
	if err != nil {
		return nil, fmt.Errorf("scan configs: %w", err)
	}

	existingList, err := e.store.ListServices()
	if err != nil {
		return nil, fmt.Errorf("list existing services: %w", err)
	}
	existing := make(map[string]mcpmodel.MCPService, len(existingList))
	for _, svc := range existingList {
		existing[svc.Name] = svc
	}

	var detected []DetectedService
	var localConfig *DetectedConfig
	for i, cfg := range scan.Configs {
		if cfg.ParseError != "" {
			continue
		}
		if cfg.Scope == mcpmodel.ScopeLocal {
			localConfig = &scan.Configs[i]
			continue
		}
		detected = append(detected, cfg.Services...)
	}

	classified := ClassifyServices(detected, existing)

	log := newTransactionLog()
	result := &ImportResult{}
	now := time.Now()

	// Phase 1: service creation and project linking.
	for _, cs := range classified {
		svc, link, err := e.resolveAndPersist(cs, req, log)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			break
		}
		if svc != "" {
			result.CreatedServices = append(result.CreatedServices, svc)
		}
		_ = link
	}

	// Phase 2: per-config-file rewrite, only for files that actually had a
	// service included in this import.
	if len(result.Errors) == 0 {
		rewritten, err := e.rewriteFiles(scan.Configs, req, log)
		result.RewrittenFiles = append(result.RewrittenFiles, rewritten...)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	if len(result.Errors) > 0 {
		warnings := log.rollback()
		result.Warnings = append(result.Warnings, warnings...)
		result.RolledBack = true
		result.Success = false
		return result, nil
	}

	// Phase 3: Claude local-scope, downgraded to warnings on failure.
	if localConfig != nil && len(localConfig.Services) > 0 {
		if err := e.applyLocalScope(*localConfig, req, now); err != nil {
			result.Warnings = append(result.Warnings, "local-scope takeover: "+err.Error())
		} else {
			result.RewrittenFiles = append(result.RewrittenFiles, localConfig.Path)
		}
	}

	result.Success = true
	return result, nil
}

// resolveAndPersist turns one classified name into a concrete service
// create-or-link action and applies it, recording an inverse for rollback.
// It returns the created service's ID (empty if only a link was made).
func (e *ImportExecutor) resolveAndPersist(cs ClassifiedService, req ImportRequest, log *transactionLog) (serviceID, linkedID string, err error) {
	switch cs.Classification {
	case AutoCreate:
		svc := newImportedService(cs.Candidates[0])
		return e.createAndLink(svc, req, log)

	case AutoSkip:
		if cs.Existing == nil {
			return "", "", fmt.Errorf("auto-skip %q with no existing service", cs.Name)
		}
		if err := e.link(cs.Existing.ID, req, log); err != nil {
			return "", "", err
		}
		return "", cs.Existing.ID, nil

	case NeedsDecision:
		decision, ok := decisionFor(req.Decisions, cs.Name)
		if !ok {
			return "", "", fmt.Errorf("no decision supplied for conflicting service %q", cs.Name)
		}
		return e.applyDecision(cs, decision, req, log)

	default:
		return "", "", fmt.Errorf("unknown classification %q for %q", cs.Classification, cs.Name)
	}
}

func (e *ImportExecutor) applyDecision(cs ClassifiedService, decision ImportDecision, req ImportRequest, log *transactionLog) (string, string, error) {
	switch decision.Option {
	case DecisionKeepExisting:
		if cs.Existing == nil {
			return "", "", fmt.Errorf("keep_existing chosen for %q with no existing service", cs.Name)
		}
		if err := e.link(cs.Existing.ID, req, log); err != nil {
			return "", "", err
		}
		return "", cs.Existing.ID, nil

	case DecisionUseNew:
		svc := newImportedService(cs.Candidates[0])
		if cs.Existing != nil {
			svc.ID = cs.Existing.ID // overwrite in place
		}
		return e.createAndLink(svc, req, log)

	case DecisionKeepBoth:
		svc := newImportedService(cs.Candidates[0])
		if decision.RenameTo != "" {
			svc.Name = decision.RenameTo
		} else {
			svc.Name = cs.Name + "-imported"
		}
		return e.createAndLink(svc, req, log)

	case DecisionPreferProject, DecisionPreferUser:
		preferred := preferScope(cs.Candidates, decision.Option)
		svc := newImportedService(preferred)
		if cs.Existing != nil {
			svc.ID = cs.Existing.ID
		}
		return e.createAndLink(svc, req, log)

	default:
		return "", "", fmt.Errorf("unknown decision option %q for %q", decision.Option, cs.Name)
	}
}

func preferScope(candidates []DetectedService, option DecisionOption) DetectedService {
	want := mcpmodel.ScopeUser
	if option == DecisionPreferProject {
		want = mcpmodel.ScopeProject
	}
	for _, c := range candidates {
		if c.Scope == want {
			return c
		}
	}
	return candidates[0]
}

func newImportedService(d DetectedService) mcpmodel.MCPService {
	return mcpmodel.MCPService{
		ID:            uuid.NewString(),
		Name:          d.Name,
		Transport:     d.Transport,
		Enabled:       true,
		Source:        mcpmodel.SourceImported,
		SourceFile:    d.SourcePath,
		AdapterID:     "", // DetectedService carries no adapter ID, so this stays empty
		SourceScope:   d.Scope,
		DefaultPolicy: mcpmodel.DefaultToolPolicy(),
	}
}

func (e *ImportExecutor) createAndLink(svc mcpmodel.MCPService, req ImportRequest, log *transactionLog) (string, string, error) {
	existed, getErr := e.store.GetService(svc.ID)
	hadExisting := getErr == nil

	if err := e.store.UpsertService(svc); err != nil {
		return "", "", fmt.Errorf("create service %q: %w", svc.Name, err)
	}
	if hadExisting {
		log.record("restore service "+svc.Name, func() error { return e.store.UpsertService(existed) })
	} else {
		log.record("delete service "+svc.Name, func() error { return e.store.DeleteService(svc.ID) })
	}

	if err := e.link(svc.ID, req, log); err != nil {
		return "", "", err
	}
	return svc.ID, svc.ID, nil
}

func (e *ImportExecutor) link(serviceID string, req ImportRequest, log *transactionLog) error {
	if err := e.store.SetProjectPolicyOverride(req.ProjectID, serviceID, nil); err != nil {
		return fmt.Errorf("link service %s to project: %w", serviceID, err)
	}
	log.record("unlink service "+serviceID, func() error {
		return e.store.DeleteProjectLink(req.ProjectID, serviceID)
	})
	return nil
}

// rewriteFiles backs up and rewrites every non-local config file that
// contributed at least one service to this import.
func (e *ImportExecutor) rewriteFiles(configs []DetectedConfig, req ImportRequest, log *transactionLog) ([]string, error) {
	var rewritten []string
	for _, cfg := range configs {
		if cfg.ParseError != "" || cfg.Scope == mcpmodel.ScopeLocal || len(cfg.Services) == 0 {
			continue
		}
		adapter, ok := e.registry.Get(cfg.AdapterID)
		if !ok {
			continue
		}

		original, err := os.ReadFile(cfg.Path)
		if err != nil {
			return rewritten, fmt.Errorf("read %s: %w", cfg.Path, err)
		}

		backupPath, hash, err := writeBackup(cfg.Path, original)
		if err != nil {
			return rewritten, err
		}
		log.record("remove backup "+backupPath, func() error { return os.Remove(backupPath) })

		rewrittenContent, err := adapter.InjectGateway(original, GatewayInjectionConfig{URL: req.GatewayURL, Token: req.GatewayToken})
		if err != nil {
			return rewritten, fmt.Errorf("inject gateway into %s: %w", cfg.Path, err)
		}
		perm := os.FileMode(0o644)
		if info, err := os.Stat(cfg.Path); err == nil {
			perm = info.Mode().Perm()
		}
		if err := fsutil.AtomicReplace(cfg.Path, rewrittenContent, perm); err != nil {
			return rewritten, fmt.Errorf("rewrite %s: %w", cfg.Path, err)
		}
		log.record("restore original "+cfg.Path, func() error {
			return fsutil.AtomicReplace(cfg.Path, original, perm)
		})

		backup := mcpmodel.TakeoverBackup{
			ID:           uuid.NewString(),
			ToolType:     cfg.AdapterID,
			Scope:        cfg.Scope,
			ProjectPath:  req.ProjectPath,
			OriginalPath: cfg.Path,
			BackupPath:   backupPath,
			TakenAt:      time.Now(),
			Status:       mcpmodel.TakeoverActive,
			Hash:         hash,
		}
		if err := e.store.PutBackup(backup); err != nil {
			return rewritten, fmt.Errorf("record backup for %s: %w", cfg.Path, err)
		}
		backupID := backup.ID
		log.record("un-record backup "+backupID, func() error {
			return e.store.MarkBackupRestored(backupID, time.Now())
		})

		rewritten = append(rewritten, cfg.Path)
	}
	return rewritten, nil
}

// applyLocalScope executes phase 3: back up a project's mcpServers
// sub-tree inside the shared Claude user-level file and replace it with a
// single gateway entry.
func (e *ImportExecutor) applyLocalScope(cfg DetectedConfig, req ImportRequest, now time.Time) error {
	adapter, ok := e.registry.Get(cfg.AdapterID)
	if !ok {
		return fmt.Errorf("no adapter %q for local scope", cfg.AdapterID)
	}
	local, ok := adapter.(LocalScopeAdapter)
	if !ok {
		return fmt.Errorf("adapter %q does not support local scope", cfg.AdapterID)
	}

	current, err := os.ReadFile(cfg.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", cfg.Path, err)
	}
	fragment, _, ok := local.ExtractLocalScope(current, req.ProjectPath)
	if !ok {
		return fmt.Errorf("no local-scope entry for %s in %s", req.ProjectPath, cfg.Path)
	}

	backupPath := backupPathFor(cfg.Path + ".local-" + sanitizeForFilename(req.ProjectPath))
	if err := fsutil.AtomicReplace(backupPath, fragment, 0o600); err != nil {
		return fmt.Errorf("write local-scope backup: %w", err)
	}
	hash := fsutil.HashBytes(fragment)

	rewritten, err := local.InjectLocalScope(current, req.ProjectPath, GatewayInjectionConfig{URL: req.GatewayURL, Token: req.GatewayToken})
	if err != nil {
		return fmt.Errorf("inject local-scope gateway entry: %w", err)
	}
	if err := fsutil.AtomicReplace(cfg.Path, rewritten, 0o644); err != nil {
		return fmt.Errorf("rewrite %s: %w", cfg.Path, err)
	}

	return e.store.PutBackup(mcpmodel.TakeoverBackup{
		ID:           uuid.NewString(),
		ToolType:     cfg.AdapterID,
		Scope:        mcpmodel.ScopeLocal,
		ProjectPath:  req.ProjectPath,
		OriginalPath: cfg.Path,
		BackupPath:   backupPath,
		TakenAt:      now,
		Status:       mcpmodel.TakeoverActive,
		Hash:         hash,
	})
}
