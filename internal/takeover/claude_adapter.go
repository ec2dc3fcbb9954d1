package takeover

import (
	"encoding/json"
	"fmt"

	"github.com/mantra-hq/mantra/internal/mcpmodel"
)

// claudeAdapter handles Claude Code's project-level .mcp.json and the
// shared user-level ~/.claude.json, the latter of which also carries a
// per-project "projects.{path}.mcpServers" sub-tree — the local scope only
// Claude has, handled separately through LocalScopeAdapter.
type claudeAdapter struct{}

func newClaudeAdapter() Adapter { return claudeAdapter{} }

func (claudeAdapter) ID() string           { return "claude-code" }
func (claudeAdapter) ConfigKey() string    { return "mcpServers" }
func (claudeAdapter) Format() ConfigFormat { return FormatJSON }
func (claudeAdapter) ScanPatterns() []ScanPattern {
	return []ScanPattern{
		{Scope: mcpmodel.ScopeProject, RelPath: ".mcp.json"},
		{Scope: mcpmodel.ScopeUser, RelPath: ".claude.json"},
	}
}

func (a claudeAdapter) Parse(path string, content []byte, scope mcpmodel.Scope) (DetectedConfig, error) {
	return parseJSONConfigKey(a.ID(), a.ConfigKey(), path, content, scope)
}

func (a claudeAdapter) InjectGateway(current []byte, cfg GatewayInjectionConfig) ([]byte, error) {
	return injectJSONConfigKey(current, a.ConfigKey(), cfg)
}

// ExtractLocalScope reads projects[projectPath].mcpServers out of the
// shared ~/.claude.json content.
func (a claudeAdapter) ExtractLocalScope(content []byte, projectPath string) ([]byte, []DetectedService, bool) {
	root, err := decodeJSONRoot(content)
	if err != nil {
		return nil, nil, false
	}
	projects, _ := root["projects"].(map[string]interface{})
	if projects == nil {
		return nil, nil, false
	}
	proj, ok := projects[projectPath].(map[string]interface{})
	if !ok {
		return nil, nil, false
	}
	serversRaw, ok := proj[a.ConfigKey()]
	if !ok {
		return nil, nil, false
	}
	fragment, err := json.Marshal(serversRaw)
	if err != nil {
		return nil, nil, false
	}
	entries := map[string]rawServerEntry{}
	if err := json.Unmarshal(fragment, &entries); err != nil {
		return nil, nil, false
	}
	services := make([]DetectedService, 0, len(entries))
	for name, e := range entries {
		services = append(services, DetectedService{
			Name:        name,
			Transport:   e.toTransport(),
			SourcePath:  "", // filled in by the caller, which knows the on-disk path
			Scope:       mcpmodel.ScopeLocal,
			ProjectPath: projectPath,
		})
	}
	return fragment, services, true
}

// InjectLocalScope replaces one project's mcpServers sub-tree with a single
// gateway entry, leaving every other project entry and the rest of the file
// untouched.
func (a claudeAdapter) InjectLocalScope(current []byte, projectPath string, cfg GatewayInjectionConfig) ([]byte, error) {
	root, err := decodeJSONRoot(current)
	if err != nil {
		return nil, err
	}
	projects, _ := root["projects"].(map[string]interface{})
	if projects == nil {
		return nil, fmt.Errorf("no projects entry in claude config")
	}
	proj, ok := projects[projectPath].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("no project entry for %q", projectPath)
	}
	headers := map[string]string{}
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}
	proj[a.ConfigKey()] = map[string]interface{}{
		"mantra": rawServerEntry{URL: cfg.URL, Headers: headers},
	}
	projects[projectPath] = proj
	root["projects"] = projects
	return json.MarshalIndent(root, "", "  ")
}

// RestoreLocalScope merges fragment back in as projectPath's mcpServers
// sub-tree, replacing only that project's entry.
func (a claudeAdapter) RestoreLocalScope(current []byte, projectPath string, fragment []byte) ([]byte, error) {
	root, err := decodeJSONRoot(current)
	if err != nil {
		return nil, err
	}
	projects, _ := root["projects"].(map[string]interface{})
	if projects == nil {
		projects = map[string]interface{}{}
	}
	proj, ok := projects[projectPath].(map[string]interface{})
	if !ok {
		proj = map[string]interface{}{}
	}
	var servers map[string]interface{}
	if err := json.Unmarshal(fragment, &servers); err != nil {
		return nil, fmt.Errorf("decode local-scope fragment: %w", err)
	}
	proj[a.ConfigKey()] = servers
	projects[projectPath] = proj
	root["projects"] = projects
	return json.MarshalIndent(root, "", "  ")
}

var _ LocalScopeAdapter = claudeAdapter{}
