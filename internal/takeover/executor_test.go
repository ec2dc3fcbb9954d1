package takeover

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mantra-hq/mantra/internal/storage"
)

func newTestExecutor(t *testing.T) (*ImportExecutor, *storage.Store) {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewImportExecutor(store, NewDefaultRegistry()), store
}

func TestExecuteHappyPathCreatesServiceAndRewritesFile(t *testing.T) {
	projectDir := t.TempDir()
	homeDir := t.TempDir()
	withHome(t, homeDir)

	mcpJSON := filepath.Join(projectDir, ".mcp.json")
	original := `{"mcpServers": {"fs": {"command": "npx", "args": ["fs-server"]}}}`
	if err := os.WriteFile(mcpJSON, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}

	executor, store := newTestExecutor(t)
	req := ImportRequest{
		ProjectID:   "proj-1",
		ProjectPath: projectDir,
		GatewayURL:  "http://127.0.0.1:8787/mcp",
	}

	result, err := executor.Execute(req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success || result.RolledBack {
		t.Fatalf("result = %+v", result)
	}
	if len(result.CreatedServices) != 1 {
		t.Fatalf("CreatedServices = %v", result.CreatedServices)
	}
	if len(result.RewrittenFiles) != 1 || result.RewrittenFiles[0] != mcpJSON {
		t.Fatalf("RewrittenFiles = %v", result.RewrittenFiles)
	}

	rewritten, err := os.ReadFile(mcpJSON)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(rewritten), `"mantra"`) {
		t.Errorf("file not rewritten to use mantra: %s", rewritten)
	}

	services, err := store.ListServices()
	if err != nil {
		t.Fatal(err)
	}
	if len(services) != 1 || services[0].Name != "fs" {
		t.Fatalf("services = %+v", services)
	}

	backups, err := store.ActiveBackups("")
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 || backups[0].OriginalPath != mcpJSON {
		t.Fatalf("backups = %+v", backups)
	}
	backupContent, err := os.ReadFile(backups[0].BackupPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(backupContent) != original {
		t.Errorf("backup content = %s, want original %s", backupContent, original)
	}

	linked, err := store.ProjectServices("proj-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(linked) != 1 {
		t.Fatalf("linked services = %v", linked)
	}
}

func TestExecuteMissingDecisionRollsBackFile(t *testing.T) {
	projectDir := t.TempDir()
	homeDir := t.TempDir()
	withHome(t, homeDir)

	mcpJSON := filepath.Join(projectDir, ".mcp.json")
	original := `{"mcpServers": {"fs": {"command": "npx", "args": ["fs-server"]}}}`
	if err := os.WriteFile(mcpJSON, []byte(original), 0o644); err != nil {
		t.Fatal(err)
	}

	executor, store := newTestExecutor(t)

	// Pre-seed a conflicting existing service with the same name but
	// different args, so the classifier reports NeedsDecision and Execute
	// has no ImportDecision to resolve it with.
	conflicting := newImportedService(DetectedService{Name: "fs", Transport: stdioTransport("npx", "fs-server", "--verbose")})
	if err := store.UpsertService(conflicting); err != nil {
		t.Fatal(err)
	}

	req := ImportRequest{
		ProjectID:   "proj-1",
		ProjectPath: projectDir,
		GatewayURL:  "http://127.0.0.1:8787/mcp",
	}

	result, err := executor.Execute(req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success || !result.RolledBack {
		t.Fatalf("result = %+v, want a rolled-back failure", result)
	}
	if len(result.Errors) == 0 {
		t.Fatalf("expected at least one error")
	}

	current, err := os.ReadFile(mcpJSON)
	if err != nil {
		t.Fatal(err)
	}
	if string(current) != original {
		t.Errorf("file was not rolled back: %s", current)
	}

	backups, err := store.ActiveBackups("")
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 0 {
		t.Fatalf("expected no active backups after rollback, got %+v", backups)
	}

	services, err := store.ListServices()
	if err != nil {
		t.Fatal(err)
	}
	if len(services) != 1 {
		t.Fatalf("expected only the pre-seeded service to survive, got %+v", services)
	}
}

func TestExecuteNoConfigsFoundIsStillSuccess(t *testing.T) {
	projectDir := t.TempDir()
	homeDir := t.TempDir()
	withHome(t, homeDir)

	executor, _ := newTestExecutor(t)
	result, err := executor.Execute(ImportRequest{
		ProjectID:   "proj-1",
		ProjectPath: projectDir,
		GatewayURL:  "http://127.0.0.1:8787/mcp",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success with nothing to do", result)
	}
	if len(result.CreatedServices) != 0 || len(result.RewrittenFiles) != 0 {
		t.Fatalf("result = %+v, want no-op", result)
	}
}
