package takeover

import (
	"encoding/json"
	"testing"

	"github.com/mantra-hq/mantra/internal/mcpmodel"
)

func TestParseJSONConfigKeyStdioAndHTTP(t *testing.T) {
	content := []byte(`{
		"mcpServers": {
			"fs": {"command": "npx", "args": ["-y", "fs-server"], "env": {"ROOT": "/tmp"}},
			"api": {"url": "https://example.com/mcp", "headers": {"X-Key": "v"}}
		}
	}`)

	cfg, err := parseJSONConfigKey("cursor", "mcpServers", "/proj/.cursor/mcp.json", content, mcpmodel.ScopeProject)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ParseError != "" {
		t.Fatalf("ParseError = %q", cfg.ParseError)
	}
	if len(cfg.Services) != 2 {
		t.Fatalf("Services = %+v, want 2 entries", cfg.Services)
	}

	byName := map[string]DetectedService{}
	for _, s := range cfg.Services {
		byName[s.Name] = s
	}
	if byName["fs"].Transport.Kind != mcpmodel.TransportStdio || byName["fs"].Transport.Command != "npx" {
		t.Errorf("fs transport = %+v", byName["fs"].Transport)
	}
	if byName["api"].Transport.Kind != mcpmodel.TransportHTTP || byName["api"].Transport.URL != "https://example.com/mcp" {
		t.Errorf("api transport = %+v", byName["api"].Transport)
	}
}

func TestParseJSONConfigKeyTolerantOfMissingKey(t *testing.T) {
	cfg, err := parseJSONConfigKey("gemini-cli", "mcpServers", "/proj/.gemini/settings.json", []byte(`{"other":"thing"}`), mcpmodel.ScopeProject)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Services) != 0 {
		t.Errorf("Services = %+v, want none", cfg.Services)
	}
}

func TestParseJSONConfigKeyStripsComments(t *testing.T) {
	content := []byte(`{
		// a leading comment
		"mcpServers": {
			"fs": {"command": "npx" /* inline */, "args": []}
		}
	}`)
	cfg, err := parseJSONConfigKey("cursor", "mcpServers", "/proj/.cursor/mcp.json", content, mcpmodel.ScopeProject)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Services) != 1 || cfg.Services[0].Name != "fs" {
		t.Fatalf("Services = %+v", cfg.Services)
	}
}

func TestInjectJSONConfigKeyPreservesOtherKeys(t *testing.T) {
	current := []byte(`{"unrelated": true, "mcpServers": {"old": {"command": "x"}}}`)
	out, err := injectJSONConfigKey(current, "mcpServers", GatewayInjectionConfig{URL: "http://127.0.0.1:8787/mcp", Token: "tok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var root map[string]interface{}
	if err := json.Unmarshal(out, &root); err != nil {
		t.Fatalf("output not valid json: %v", err)
	}
	if root["unrelated"] != true {
		t.Errorf("unrelated key dropped: %v", root)
	}
	servers, _ := root["mcpServers"].(map[string]interface{})
	if len(servers) != 1 {
		t.Fatalf("mcpServers = %v, want exactly one entry", servers)
	}
	mantra, _ := servers["mantra"].(map[string]interface{})
	if mantra["url"] != "http://127.0.0.1:8787/mcp" {
		t.Errorf("mantra entry = %v", mantra)
	}
	headers, _ := mantra["headers"].(map[string]interface{})
	if headers["Authorization"] != "Bearer tok" {
		t.Errorf("headers = %v", headers)
	}
}
