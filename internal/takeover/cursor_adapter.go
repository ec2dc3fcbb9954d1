package takeover

import "github.com/mantra-hq/mantra/internal/mcpmodel"

// cursorAdapter handles Cursor's project-level and user-level mcp.json,
// both using the same mcpServers shape as Claude's top-level entries.
type cursorAdapter struct{}

func newCursorAdapter() Adapter { return cursorAdapter{} }

func (cursorAdapter) ID() string             { return "cursor" }
func (cursorAdapter) ConfigKey() string      { return "mcpServers" }
func (cursorAdapter) Format() ConfigFormat   { return FormatJSON }
func (cursorAdapter) ScanPatterns() []ScanPattern {
	return []ScanPattern{
		{Scope: mcpmodel.ScopeProject, RelPath: ".cursor/mcp.json"},
		{Scope: mcpmodel.ScopeUser, RelPath: ".cursor/mcp.json"},
	}
}

func (a cursorAdapter) Parse(path string, content []byte, scope mcpmodel.Scope) (DetectedConfig, error) {
	return parseJSONConfigKey(a.ID(), a.ConfigKey(), path, content, scope)
}

func (a cursorAdapter) InjectGateway(current []byte, cfg GatewayInjectionConfig) ([]byte, error) {
	return injectJSONConfigKey(current, a.ConfigKey(), cfg)
}
