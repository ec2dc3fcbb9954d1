package takeover

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mantra-hq/mantra/internal/mcpmodel"
)

// codexAdapter handles OpenAI Codex's TOML configuration, the one vendor
// surface in this registry that isn't JSON. Scanned at both the project and
// user scope: the spec's literal example only names the project path, but
// Codex's CLI itself reads a user-level ~/.codex/config.toml, and a takeover
// that only ever saw the project copy would silently leave the user-level
// servers live.
type codexAdapter struct{}

func newCodexAdapter() Adapter { return codexAdapter{} }

func (codexAdapter) ID() string           { return "codex" }
func (codexAdapter) ConfigKey() string    { return "mcp_servers" }
func (codexAdapter) Format() ConfigFormat { return FormatTOML }
func (codexAdapter) ScanPatterns() []ScanPattern {
	return []ScanPattern{
		{Scope: mcpmodel.ScopeProject, RelPath: ".codex/config.toml"},
		{Scope: mcpmodel.ScopeUser, RelPath: ".codex/config.toml"},
	}
}

func (a codexAdapter) Parse(path string, content []byte, scope mcpmodel.Scope) (DetectedConfig, error) {
	root := map[string]interface{}{}
	if len(content) > 0 {
		if _, err := toml.Decode(string(content), &root); err != nil {
			return DetectedConfig{AdapterID: a.ID(), Path: path, Scope: scope, ParseError: err.Error()}, nil
		}
	}

	raw, ok := root[a.ConfigKey()]
	if !ok {
		return DetectedConfig{AdapterID: a.ID(), Path: path, Scope: scope}, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return DetectedConfig{AdapterID: a.ID(), Path: path, Scope: scope, ParseError: err.Error()}, nil
	}
	entries := map[string]rawServerEntry{}
	if err := json.Unmarshal(b, &entries); err != nil {
		return DetectedConfig{AdapterID: a.ID(), Path: path, Scope: scope, ParseError: err.Error()}, nil
	}
	return DetectedConfig{
		AdapterID: a.ID(),
		Path:      path,
		Scope:     scope,
		Services:  detectedFromEntries(entries, path, scope),
	}, nil
}

// InjectGateway follows the same approach the takeover-adjacent mcp-config
// command uses for Codex: strip any existing [mcp_servers.*] tables out of
// the text and append a single fresh mcp_servers.mantra block, rather than
// round-tripping the whole document through a TOML encoder that would
// reformat tables and comments it doesn't understand.
func (a codexAdapter) InjectGateway(current []byte, cfg GatewayInjectionConfig) ([]byte, error) {
	existing := string(current)
	lines := strings.Split(existing, "\n")
	var kept []string
	skip := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[mcp_servers") {
			skip = true
			continue
		}
		if skip && strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "[mcp_servers") {
			skip = false
		}
		if !skip {
			kept = append(kept, line)
		}
	}
	existing = strings.TrimRight(strings.Join(kept, "\n"), "\n")

	var b strings.Builder
	b.WriteString(existing)
	if existing != "" {
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "[mcp_servers.mantra]\nurl = %q\n", cfg.URL)
	if cfg.Token != "" {
		b.WriteString("[mcp_servers.mantra.headers]\n")
		fmt.Fprintf(&b, "Authorization = %q\n", "Bearer "+cfg.Token)
	}
	return []byte(b.String()), nil
}
