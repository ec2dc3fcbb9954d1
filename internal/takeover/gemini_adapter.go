package takeover

import "github.com/mantra-hq/mantra/internal/mcpmodel"

// geminiAdapter handles Gemini CLI's project-level .gemini/settings.json,
// which nests its MCP server entries under mcpServers the same as Claude.
type geminiAdapter struct{}

func newGeminiAdapter() Adapter { return geminiAdapter{} }

func (geminiAdapter) ID() string           { return "gemini-cli" }
func (geminiAdapter) ConfigKey() string    { return "mcpServers" }
func (geminiAdapter) Format() ConfigFormat { return FormatJSON }
func (geminiAdapter) ScanPatterns() []ScanPattern {
	return []ScanPattern{
		{Scope: mcpmodel.ScopeProject, RelPath: ".gemini/settings.json"},
	}
}

func (a geminiAdapter) Parse(path string, content []byte, scope mcpmodel.Scope) (DetectedConfig, error) {
	return parseJSONConfigKey(a.ID(), a.ConfigKey(), path, content, scope)
}

func (a geminiAdapter) InjectGateway(current []byte, cfg GatewayInjectionConfig) ([]byte, error) {
	return injectJSONConfigKey(current, a.ConfigKey(), cfg)
}
