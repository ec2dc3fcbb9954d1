// Package takeover implements the configuration-takeover engine: scanning
// vendor MCP configuration files, classifying what a merge with the known
// service store would do, and transactionally rewriting each file to route
// through the gateway while keeping a restorable, hash-verified backup.
//
// One Adapter per vendor describes how to find, read, and rewrite that
// vendor's configuration surface; the scanner, classifier, and executor all
// work against the Adapter interface rather than any one vendor's format, so
// adding a fifth vendor never touches the transaction engine.
package takeover

import (
	"github.com/mantra-hq/mantra/internal/mcpmodel"
)

// ConfigFormat is the serialization a vendor's configuration file uses.
type ConfigFormat string

const (
	FormatJSON ConfigFormat = "json"
	FormatTOML ConfigFormat = "toml"
)

// ScanPattern is one file an adapter wants scanned: scope tells the scanner
// whether to resolve RelPath under the project root or under the user's home
// directory.
type ScanPattern struct {
	Scope   mcpmodel.Scope
	RelPath string
}

// DetectedService is one MCP server entry found inside a vendor config file.
type DetectedService struct {
	Name      string
	Transport mcpmodel.Transport
	// SourcePath is the config file the entry was read from.
	SourcePath string
	Scope      mcpmodel.Scope
	// ProjectPath is set only for local-scope entries (a project's sub-tree
	// inside a user-level file).
	ProjectPath string
}

// DetectedConfig is the result of parsing a single vendor config file.
type DetectedConfig struct {
	AdapterID string
	Path      string
	Scope     mcpmodel.Scope
	Services  []DetectedService
	// ParseError is set when the file exists but could not be read or
	// parsed; the scan continues rather than aborting.
	ParseError string
}

// GatewayInjectionConfig is what InjectGateway rewrites a vendor config file
// to point at.
type GatewayInjectionConfig struct {
	URL   string
	Token string
}

// Adapter is a per-vendor implementation of the takeover capability set:
// where to look, how to parse what's found, and how to rewrite it.
type Adapter interface {
	ID() string
	ConfigKey() string
	Format() ConfigFormat
	ScanPatterns() []ScanPattern
	Parse(path string, content []byte, scope mcpmodel.Scope) (DetectedConfig, error)
	InjectGateway(current []byte, cfg GatewayInjectionConfig) ([]byte, error)
}

// LocalScopeAdapter is the optional extra capability only Claude's adapter
// implements: operating on a single project's projects.{path}.mcpServers
// sub-tree inside the shared user-level ~/.claude.json file, independent of
// the rest of that file.
type LocalScopeAdapter interface {
	Adapter
	// ExtractLocalScope returns the JSON fragment for projectPath's
	// mcpServers sub-tree, and the services it describes, or ok=false if
	// the project has no entry in the file.
	ExtractLocalScope(content []byte, projectPath string) (fragment []byte, services []DetectedService, ok bool)
	// InjectLocalScope replaces projectPath's mcpServers sub-tree with a
	// single gateway entry, leaving every other project's entry and the
	// rest of the file untouched.
	InjectLocalScope(current []byte, projectPath string, cfg GatewayInjectionConfig) ([]byte, error)
	// RestoreLocalScope merges fragment back into current as projectPath's
	// mcpServers sub-tree, replacing only that project's entry.
	RestoreLocalScope(current []byte, projectPath string, fragment []byte) ([]byte, error)
}
