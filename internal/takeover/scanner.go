package takeover

import (
	"os"
	"path/filepath"

	"github.com/mantra-hq/mantra/internal/mcpmodel"
)

// ScanResult is every vendor config file found across every registered
// adapter for one project.
type ScanResult struct {
	Configs []DetectedConfig
}

// Scan iterates every adapter's scan patterns, resolving project-scoped
// patterns under projectPath and user-scoped patterns under the home
// directory. A file that doesn't exist is silently skipped (most vendors
// aren't installed on most machines); a file that exists but can't be read
// or parsed is recorded as a ParseError on its DetectedConfig rather than
// aborting the rest of the scan.
func Scan(registry *Registry, projectPath string) (ScanResult, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}

	var result ScanResult
	for _, adapter := range registry.All() {
		for _, pattern := range adapter.ScanPatterns() {
			var base string
			switch pattern.Scope {
			case mcpmodel.ScopeProject:
				base = projectPath
			default:
				base = home
			}
			if base == "" {
				continue
			}
			path := filepath.Join(base, pattern.RelPath)

			content, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				result.Configs = append(result.Configs, DetectedConfig{
					AdapterID:  adapter.ID(),
					Path:       path,
					Scope:      pattern.Scope,
					ParseError: err.Error(),
				})
				continue
			}

			cfg, err := adapter.Parse(path, content, pattern.Scope)
			if err != nil {
				cfg = DetectedConfig{AdapterID: adapter.ID(), Path: path, Scope: pattern.Scope, ParseError: err.Error()}
			}
			result.Configs = append(result.Configs, cfg)
		}

		if local, ok := adapter.(LocalScopeAdapter); ok && projectPath != "" {
			result.Configs = append(result.Configs, scanLocalScope(local, home, projectPath)...)
		}
	}
	return result, nil
}

// scanLocalScope handles Claude's project sub-tree inside the shared
// user-level file: it lives at the same path as the user-scope config
// already scanned above, but is reported as its own DetectedConfig so the
// classifier and executor can treat it as a distinct, independently
// restorable unit.
func scanLocalScope(adapter LocalScopeAdapter, home, projectPath string) []DetectedConfig {
	if home == "" {
		return nil
	}
	var path string
	for _, p := range adapter.ScanPatterns() {
		if p.Scope == mcpmodel.ScopeUser {
			path = filepath.Join(home, p.RelPath)
			break
		}
	}
	if path == "" {
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	fragment, services, ok := adapter.ExtractLocalScope(content, projectPath)
	if !ok {
		return nil
	}
	for i := range services {
		services[i].SourcePath = path
	}
	_ = fragment
	return []DetectedConfig{{
		AdapterID: adapter.ID(),
		Path:      path,
		Scope:     mcpmodel.ScopeLocal,
		Services:  services,
	}}
}
