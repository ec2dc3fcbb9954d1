package takeover

import (
	"strings"
	"testing"

	"github.com/mantra-hq/mantra/internal/mcpmodel"
)

func TestCursorAdapterRoundTrip(t *testing.T) {
	a := newCursorAdapter()
	content := []byte(`{"mcpServers": {"fs": {"command": "npx", "args": ["fs-server"]}}}`)

	cfg, err := a.Parse("/proj/.cursor/mcp.json", content, mcpmodel.ScopeProject)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Services) != 1 || cfg.Services[0].Name != "fs" {
		t.Fatalf("Services = %+v", cfg.Services)
	}

	out, err := a.InjectGateway(content, GatewayInjectionConfig{URL: "http://127.0.0.1:8787/mcp"})
	if err != nil {
		t.Fatalf("InjectGateway: %v", err)
	}
	if !strings.Contains(string(out), `"mantra"`) {
		t.Errorf("InjectGateway output missing mantra entry: %s", out)
	}
	if strings.Contains(string(out), `"fs"`) {
		t.Errorf("InjectGateway output still contains replaced entry: %s", out)
	}
}

func TestGeminiAdapterScanPatternsProjectOnly(t *testing.T) {
	a := newGeminiAdapter()
	patterns := a.ScanPatterns()
	if len(patterns) != 1 || patterns[0].Scope != mcpmodel.ScopeProject {
		t.Fatalf("ScanPatterns = %+v, want one project-scope pattern", patterns)
	}
	if patterns[0].RelPath != ".gemini/settings.json" {
		t.Errorf("RelPath = %q", patterns[0].RelPath)
	}
}

func TestCodexAdapterParseAndInject(t *testing.T) {
	a := newCodexAdapter()
	content := []byte("[mcp_servers.fs]\ncommand = \"npx\"\nargs = [\"fs-server\"]\n")

	cfg, err := a.Parse("/proj/.codex/config.toml", content, mcpmodel.ScopeProject)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ParseError != "" {
		t.Fatalf("ParseError = %q", cfg.ParseError)
	}
	if len(cfg.Services) != 1 || cfg.Services[0].Name != "fs" || cfg.Services[0].Transport.Command != "npx" {
		t.Fatalf("Services = %+v", cfg.Services)
	}

	out, err := a.InjectGateway(content, GatewayInjectionConfig{URL: "http://127.0.0.1:8787/mcp", Token: "tok"})
	if err != nil {
		t.Fatalf("InjectGateway: %v", err)
	}
	outStr := string(out)
	if strings.Contains(outStr, "mcp_servers.fs") {
		t.Errorf("InjectGateway left old block: %s", outStr)
	}
	if !strings.Contains(outStr, "[mcp_servers.mantra]") {
		t.Errorf("InjectGateway missing new block: %s", outStr)
	}
	if !strings.Contains(outStr, "Authorization") {
		t.Errorf("InjectGateway missing auth header block: %s", outStr)
	}
}

func TestCodexAdapterParseErrorOnInvalidTOML(t *testing.T) {
	a := newCodexAdapter()
	cfg, err := a.Parse("/proj/.codex/config.toml", []byte("not = [valid"), mcpmodel.ScopeProject)
	if err != nil {
		t.Fatalf("Parse returned error instead of recording ParseError: %v", err)
	}
	if cfg.ParseError == "" {
		t.Fatalf("expected ParseError to be set for invalid TOML")
	}
}

func TestClaudeAdapterLocalScopeRoundTrip(t *testing.T) {
	a := newClaudeAdapter().(LocalScopeAdapter)
	content := []byte(`{
		"projects": {
			"/home/me/proj": {
				"mcpServers": {"fs": {"command": "npx", "args": ["fs-server"]}}
			},
			"/home/me/other": {
				"mcpServers": {"db": {"command": "db-server"}}
			}
		}
	}`)

	fragment, services, ok := a.ExtractLocalScope(content, "/home/me/proj")
	if !ok {
		t.Fatalf("ExtractLocalScope returned ok=false")
	}
	if len(services) != 1 || services[0].Name != "fs" {
		t.Fatalf("services = %+v", services)
	}

	injected, err := a.InjectLocalScope(content, "/home/me/proj", GatewayInjectionConfig{URL: "http://127.0.0.1:8787/mcp", Token: "tok"})
	if err != nil {
		t.Fatalf("InjectLocalScope: %v", err)
	}
	injectedStr := string(injected)
	if !strings.Contains(injectedStr, `"mantra"`) {
		t.Errorf("injected missing mantra entry: %s", injectedStr)
	}
	if !strings.Contains(injectedStr, `"db-server"`) {
		t.Errorf("injected lost sibling project entry: %s", injectedStr)
	}
	if strings.Contains(injectedStr, "fs-server") {
		t.Errorf("injected still contains replaced project's old entry: %s", injectedStr)
	}

	restored, err := a.RestoreLocalScope(injected, "/home/me/proj", fragment)
	if err != nil {
		t.Fatalf("RestoreLocalScope: %v", err)
	}
	restoredStr := string(restored)
	if !strings.Contains(restoredStr, "fs-server") {
		t.Errorf("restored missing original entry: %s", restoredStr)
	}
	if !strings.Contains(restoredStr, "db-server") {
		t.Errorf("restored lost sibling project entry: %s", restoredStr)
	}
	if strings.Contains(restoredStr, `"mantra"`) {
		t.Errorf("restored still contains gateway entry: %s", restoredStr)
	}
}

func TestClaudeAdapterExtractLocalScopeMissingProject(t *testing.T) {
	a := newClaudeAdapter().(LocalScopeAdapter)
	content := []byte(`{"projects": {}}`)
	_, _, ok := a.ExtractLocalScope(content, "/nowhere")
	if ok {
		t.Fatalf("expected ok=false for a project with no entry")
	}
}
