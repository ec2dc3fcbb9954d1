package commands

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mantra-hq/mantra/internal/config"
)

func init() {
	Register(&Command{
		Name:        "mcp-config",
		Description: "Print or install a gateway-routed MCP config for an AI tool",
		Run:         RunMCPConfig,
	})
}

// MCPConfigOptions contains the configuration for the mcp-config command.
type MCPConfigOptions struct {
	For       string
	Root      string
	GatewayURL string
	Token     string
	Install   bool
}

// ToolInfo describes a vendor's MCP configuration surface: where it lives,
// which JSON key (or TOML table) holds server entries, and the file
// format. The takeover adapter registry (internal/takeover) covers only
// Claude Code, Cursor, Codex and Gemini CLI, reading those surfaces where
// mcp-config writes them.
type ToolInfo struct {
	Name        string
	Description string
	ConfigKey   string // mcpServers, servers, context_servers, mcp_servers
	Format      string // json, toml
}

// supportedTools lists all supported AI tools with their configuration details.
var supportedTools = map[string]ToolInfo{
	"claude-code": {
		Name:        "Claude Code",
		Description: "Anthropic's Claude Code CLI",
		ConfigKey:   "mcpServers",
		Format:      "json",
	},
	"claude-desktop": {
		Name:        "Claude Desktop",
		Description: "Anthropic's Claude Desktop app",
		ConfigKey:   "mcpServers",
		Format:      "json",
	},
	"cursor": {
		Name:        "Cursor",
		Description: "Cursor AI editor",
		ConfigKey:   "mcpServers",
		Format:      "json",
	},
	"vscode": {
		Name:        "VS Code Copilot",
		Description: "GitHub Copilot in VS Code",
		ConfigKey:   "servers",
		Format:      "json",
	},
	"windsurf": {
		Name:        "Windsurf",
		Description: "Codeium's Windsurf IDE",
		ConfigKey:   "mcpServers",
		Format:      "json",
	},
	"cline": {
		Name:        "Cline",
		Description: "Cline VS Code extension",
		ConfigKey:   "mcpServers",
		Format:      "json",
	},
	"zed": {
		Name:        "Zed",
		Description: "Zed editor",
		ConfigKey:   "context_servers",
		Format:      "json",
	},
	"codex": {
		Name:        "OpenAI Codex",
		Description: "OpenAI's Codex CLI",
		ConfigKey:   "mcp_servers",
		Format:      "toml",
	},
	"gemini-cli": {
		Name:        "Gemini CLI",
		Description: "Google's Gemini CLI",
		ConfigKey:   "mcpServers",
		Format:      "json",
	},
}

// RunMCPConfig executes the mcp-config command with parsed arguments.
func RunMCPConfig(args []string) error {
	fs := flag.NewFlagSet("mcp-config", flag.ContinueOnError)
	forTarget := fs.String("for", "", "target tool (see 'mantra help mcp-config' for list)")
	root := fs.String("root", ".", "workspace root")
	url := fs.String("gateway-url", "http://127.0.0.1:8787/mcp", "gateway URL to route the tool through")
	token := fs.String("token", "", "gateway bearer token")
	install := fs.Bool("install", false, "install config to target's config file")
	list := fs.Bool("list", false, "list all supported tools")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *list {
		return listSupportedTools()
	}

	if *forTarget == "" {
		return fmt.Errorf("--for flag is required. Use --list to see supported tools")
	}

	return ExecuteMCPConfig(MCPConfigOptions{
		For:        *forTarget,
		Root:       *root,
		GatewayURL: *url,
		Token:      *token,
		Install:    *install,
	})
}

func listSupportedTools() error {
	fmt.Println("Supported AI tools:")
	fmt.Println()
	for key, tool := range supportedTools {
		fmt.Printf("  %-15s %s\n", key, tool.Description)
	}
	fmt.Println()
	fmt.Println("Usage: mantra mcp-config --for <tool> --gateway-url <url> --token <token> [--install]")
	return nil
}

// ExecuteMCPConfig generates or installs a gateway-routed MCP configuration.
func ExecuteMCPConfig(opts MCPConfigOptions) error {
	tool, ok := supportedTools[opts.For]
	if !ok {
		return fmt.Errorf("unknown tool %q. Use --list to see supported tools", opts.For)
	}

	rootPath, err := filepath.Abs(opts.Root)
	if err != nil {
		return fmt.Errorf("resolve workspace root: %w", err)
	}

	if opts.Install {
		return installConfigForTool(opts.For, tool, opts.GatewayURL, opts.Token, rootPath)
	}
	return printConfigForTool(tool, opts.GatewayURL, opts.Token)
}

func printConfigForTool(tool ToolInfo, url, token string) error {
	if tool.Format == "toml" {
		fmt.Println(generateTOMLConfig(url, token))
		return nil
	}
	cfg := generateJSONConfig(tool, url, token)
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(cfg)
}

// generateJSONConfig creates the appropriate JSON config structure for the
// tool's vendor-specific server-entry shape, pointed at the gateway over
// HTTP rather than at a local stdio binary.
func generateJSONConfig(tool ToolInfo, url, token string) map[string]interface{} {
	headers := map[string]string{}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	serverConfig := map[string]interface{}{
		"url":     url,
		"headers": headers,
	}
	switch tool.ConfigKey {
	case "context_servers": // Zed
		serverConfig = map[string]interface{}{
			"source":  "custom",
			"url":     url,
			"headers": headers,
		}
	case "servers": // VS Code
		serverConfig["type"] = "http"
	}

	return map[string]interface{}{
		tool.ConfigKey: map[string]interface{}{
			"mantra": serverConfig,
		},
	}
}

// generateTOMLConfig creates TOML configuration for OpenAI Codex.
func generateTOMLConfig(url, token string) string {
	var b strings.Builder
	b.WriteString("[mcp_servers.mantra]\n")
	fmt.Fprintf(&b, "url = %q\n", url)
	if token != "" {
		b.WriteString("[mcp_servers.mantra.headers]\n")
		fmt.Fprintf(&b, "Authorization = %q\n", "Bearer "+token)
	}
	return b.String()
}

func installConfigForTool(target string, tool ToolInfo, url, token, rootPath string) error {
	configPath, err := getConfigPath(target, rootPath)
	if err != nil {
		return err
	}

	if tool.Format == "toml" {
		return installTOMLConfig(configPath, url, token)
	}
	return installJSONConfig(tool, configPath, url, token)
}

func installJSONConfig(tool ToolInfo, configPath, url, token string) error {
	existingConfig := make(map[string]interface{})
	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := json.Unmarshal(data, &existingConfig); err != nil {
			return fmt.Errorf("parse existing config %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read config %s: %w", configPath, err)
	}

	newConfig := generateJSONConfig(tool, url, token)
	newServers, _ := newConfig[tool.ConfigKey].(map[string]interface{})

	existingServers, ok := existingConfig[tool.ConfigKey].(map[string]interface{})
	if !ok {
		existingServers = make(map[string]interface{})
	}
	for k, v := range newServers {
		existingServers[k] = v
	}
	existingConfig[tool.ConfigKey] = existingServers

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	output, err := json.MarshalIndent(existingConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, output, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", configPath, err)
	}
	fmt.Fprintf(os.Stderr, "Installed mantra MCP gateway entry to %s\n", configPath)
	return nil
}

func installTOMLConfig(configPath, url, token string) error {
	existingContent := ""
	data, err := os.ReadFile(configPath)
	if err == nil {
		existingContent = string(data)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read config %s: %w", configPath, err)
	}

	if strings.Contains(existingContent, "[mcp_servers.mantra]") {
		lines := strings.Split(existingContent, "\n")
		var result []string
		skip := false
		for _, line := range lines {
			if strings.HasPrefix(line, "[mcp_servers.mantra") {
				skip = true
				continue
			}
			if skip && strings.HasPrefix(line, "[") && !strings.HasPrefix(line, "[mcp_servers.mantra") {
				skip = false
			}
			if !skip {
				result = append(result, line)
			}
		}
		existingContent = strings.Join(result, "\n")
	}

	finalContent := strings.TrimRight(existingContent, "\n") + "\n\n" + generateTOMLConfig(url, token)
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(finalContent), 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", configPath, err)
	}
	fmt.Fprintf(os.Stderr, "Installed mantra MCP gateway entry to %s\n", configPath)
	return nil
}

// getConfigPath returns the configuration file path for the given target,
// mirroring, for the vendors both cover, the ScanPatterns of the takeover
// adapters (internal/takeover/*_adapter.go) but resolved for install rather
// than scan.
func getConfigPath(target, rootPath string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}

	switch target {
	case "claude-code":
		return filepath.Join(rootPath, ".mcp.json"), nil
	case "claude-desktop":
		switch runtime.GOOS {
		case "darwin":
			return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json"), nil
		case "windows":
			return filepath.Join(home, "AppData", "Roaming", "Claude", "claude_desktop_config.json"), nil
		default:
			return filepath.Join(home, ".config", "Claude", "claude_desktop_config.json"), nil
		}
	case "cursor":
		return filepath.Join(rootPath, ".cursor", "mcp.json"), nil
	case "vscode":
		return filepath.Join(rootPath, ".vscode", "mcp.json"), nil
	case "windsurf":
		return filepath.Join(home, ".codeium", "windsurf", "mcp_config.json"), nil
	case "cline":
		switch runtime.GOOS {
		case "darwin":
			return filepath.Join(home, "Library", "Application Support", "Code", "User", "globalStorage", "saoudrizwan.claude-dev", "settings", "cline_mcp_settings.json"), nil
		case "windows":
			return filepath.Join(home, "AppData", "Roaming", "Code", "User", "globalStorage", "saoudrizwan.claude-dev", "settings", "cline_mcp_settings.json"), nil
		default:
			return filepath.Join(home, ".config", "Code", "User", "globalStorage", "saoudrizwan.claude-dev", "settings", "cline_mcp_settings.json"), nil
		}
	case "zed":
		switch runtime.GOOS {
		case "darwin":
			return filepath.Join(home, "Library", "Application Support", "Zed", "settings.json"), nil
		case "windows":
			return filepath.Join(home, "AppData", "Roaming", "Zed", "settings.json"), nil
		default:
			return filepath.Join(home, ".config", "zed", "settings.json"), nil
		}
	case "codex":
		return filepath.Join(home, ".codex", "config.toml"), nil
	case "gemini-cli":
		return filepath.Join(rootPath, ".gemini", "settings.json"), nil
	default:
		return "", fmt.Errorf("unknown target: %s", target)
	}
}

// defaultGatewayURL builds the gateway's /mcp endpoint from its listen config.
func defaultGatewayURL(gw config.GatewayConfig) string {
	return fmt.Sprintf("http://%s/mcp", gw.ListenAddr)
}
