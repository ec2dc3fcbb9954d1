// Package config holds process-level configuration for the gateway daemon
// and the takeover engine: listen address, auth token, allowed origins,
// supported protocol versions, and the guardrail globs used while scanning
// a project tree for vendor configuration files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mantra-hq/mantra/internal/jsonc"
)

// Guardrails lists globs that scanning and file-mutation operations must
// never touch or must treat as read-only.
type Guardrails struct {
	DoNotTouchGlobs []string `json:"doNotTouchGlobs,omitempty"`
	ReadOnlyGlobs   []string `json:"readOnlyGlobs,omitempty"`
}

// GatewayConfig configures the MCP gateway's HTTP surface.
type GatewayConfig struct {
	ListenAddr        string   `json:"listenAddr"`
	Token             string   `json:"token"`
	AllowedOrigins    []string `json:"allowedOrigins,omitempty"`
	ProtocolVersions  []string `json:"protocolVersions,omitempty"`
	DefaultProtocol   string   `json:"defaultProtocol,omitempty"`
	SessionIdleTimout string   `json:"sessionIdleTimeout,omitempty"`
}

// TakeoverConfig configures C3's default behavior.
type TakeoverConfig struct {
	BackupSuffix string     `json:"backupSuffix,omitempty"`
	Guardrails   Guardrails `json:"guardrails"`
}

// Config is Mantra's top-level process configuration, read from
// `.mantra/config.jsonc` at the root of the working directory if present.
type Config struct {
	SchemaVersion string          `json:"schemaVersion"`
	DataDir       string          `json:"dataDir,omitempty"`
	Gateway       GatewayConfig   `json:"gateway"`
	Takeover      TakeoverConfig  `json:"takeover"`
	LogDir        string          `json:"logDir,omitempty"`
	LogLevel      string          `json:"logLevel,omitempty"`
}

// DefaultProtocolVersion is the protocol version advertised by the gateway
// unless a client negotiates the legacy one.
const DefaultProtocolVersion = "2025-03-26"

// SupportedProtocolVersions is the full set of protocol versions the
// gateway accepts on MCP-Protocol-Version.
var SupportedProtocolVersions = []string{"2025-03-26", "2024-11-05"}

// Default returns a Config with sensible defaults for running locally.
func Default() *Config {
	return &Config{
		SchemaVersion: "1",
		DataDir:       ".mantra",
		Gateway: GatewayConfig{
			ListenAddr:       "127.0.0.1:8787",
			ProtocolVersions: SupportedProtocolVersions,
			DefaultProtocol:  DefaultProtocolVersion,
		},
		Takeover: TakeoverConfig{
			BackupSuffix: ".mantra-backup",
			Guardrails:   defaultGuardrails(),
		},
		LogDir:   ".mantra/logs",
		LogLevel: "info",
	}
}

// Load reads configuration from <root>/.mantra/config.jsonc, merging onto
// defaults. A missing file is not an error — Default() is returned as-is.
func Load(root string) (*Config, error) {
	cfg := Default()
	path := filepath.Join(root, ".mantra", "config.jsonc")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := jsonc.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if len(cfg.Gateway.ProtocolVersions) == 0 {
		cfg.Gateway.ProtocolVersions = SupportedProtocolVersions
	}
	if cfg.Gateway.DefaultProtocol == "" {
		cfg.Gateway.DefaultProtocol = DefaultProtocolVersion
	}
	if cfg.Takeover.BackupSuffix == "" {
		cfg.Takeover.BackupSuffix = ".mantra-backup"
	}
	cfg.Takeover.Guardrails = Guardrails{
		DoNotTouchGlobs: mergeGlobs(defaultGuardrails().DoNotTouchGlobs, cfg.Takeover.Guardrails.DoNotTouchGlobs),
		ReadOnlyGlobs:   mergeGlobs(defaultGuardrails().ReadOnlyGlobs, cfg.Takeover.Guardrails.ReadOnlyGlobs),
	}
	return cfg, nil
}

// Save writes cfg to <root>/.mantra/config.jsonc.
func Save(root string, cfg *Config) error {
	dir := filepath.Join(root, ".mantra")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func defaultGuardrails() Guardrails {
	return Guardrails{
		DoNotTouchGlobs: []string{
			".git/**",
			".mantra/**",
			"node_modules/**",
			"vendor/**",
			"dist/**",
			"build/**",
			"**/build/**",
			"target/**",
		},
	}
}

func mergeGlobs(defaults, user []string) []string {
	seen := make(map[string]struct{})
	var merged []string
	appendIfMissing := func(globs []string) {
		for _, g := range globs {
			norm := normalizeGlob(g)
			if norm == "" {
				continue
			}
			if _, ok := seen[norm]; ok {
				continue
			}
			seen[norm] = struct{}{}
			merged = append(merged, norm)
		}
	}
	appendIfMissing(defaults)
	appendIfMissing(user)
	return merged
}

func normalizeGlob(g string) string {
	trimmed := strings.TrimSpace(g)
	if trimmed == "" {
		return ""
	}
	trimmed = strings.ReplaceAll(trimmed, "\\", "/")
	for strings.Contains(trimmed, "//") {
		trimmed = strings.ReplaceAll(trimmed, "//", "/")
	}
	return filepath.ToSlash(trimmed)
}
