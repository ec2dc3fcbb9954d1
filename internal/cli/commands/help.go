package commands

import (
	"fmt"
	"strings"
)

func init() {
	Register(&Command{
		Name:        "help",
		Aliases:     []string{"-h", "--help"},
		Description: "Show help for a command or topic",
		Run:         RunHelp,
	})
}

// RunHelp executes the help command with parsed arguments.
func RunHelp(args []string) error {
	if len(args) == 0 {
		return ShowUsage()
	}

	topic := strings.ToLower(strings.TrimSpace(args[0]))
	return ShowHelpTopic(topic)
}

// ShowUsage displays the main usage message.
func ShowUsage() error {
	fmt.Print(`mantra - local MCP gateway, conversation log normalizer, and config takeover

LOGS
  normalize   Import AI coding tool conversation logs into the local store

GATEWAY
  serve       Start the MCP gateway (alias: gateway)

MCP CONFIGURATION
  mcp-config  Print or install a gateway-routed MCP config for an AI tool
  mcp scan    List every vendor MCP config file found on this machine
  mcp preview Classify detected services against the store without writing anything
  mcp execute Take over detected vendor configs: create services, rewrite files, back up originals
  mcp restore Restore vendor configs from their pre-takeover backups
  mcp resync  Re-inject the current gateway URL/token into every active backup's file
  mcp sweep   Report (and optionally retire) backups whose on-disk files are missing or changed

HOUSEKEEPING
  update      Update mantra to the latest version
  help        Show help for a command or topic
  version     Show version information

EXAMPLES
  mantra normalize --path ~/.claude/projects
  mantra serve --addr 127.0.0.1:8787
  mantra mcp scan --root .
  mantra mcp execute --root . --token secret
  mantra mcp-config --for cursor --install

Run 'mantra help <command>' for detailed help on a command.
`)
	return nil
}

// ShowHelpTopic displays help for a specific topic.
func ShowHelpTopic(topic string) error {
	switch topic {
	case "normalize":
		fmt.Print(`mantra normalize - Import AI coding tool conversation logs

Usage: mantra normalize [options]

Options:
  --root <path>     Workspace root (default: current directory)
  --path <path>     File or directory of vendor logs to import (default: well-known vendor locations)
  --source <name>   Restrict import to one vendor: claude-code, cursor, gemini-cli, codex

Every recognized log is normalized into a vendor-neutral session and stored
in the local database; sessions with no user or assistant turns are skipped.
`)
	case "serve", "gateway":
		fmt.Print(`mantra serve - Start the MCP gateway

Usage: mantra serve [options]

Options:
  --root <path>    Workspace root (default: current directory)
  --addr <addr>    Listen address (default: gateway.listenAddr from config)

The gateway proxies Streamable HTTP and legacy SSE MCP connections to the
upstream services registered in the local store, enforcing each project's
tool policy.
`)
	case "mcp-config":
		fmt.Print(`mantra mcp-config - Print or install a gateway-routed MCP config

Usage: mantra mcp-config --for <tool> [options]

Options:
  --for <tool>          Target tool (--list to see supported tools)
  --root <path>         Workspace root (default: current directory)
  --gateway-url <url>   Gateway URL to route the tool through
  --token <token>       Gateway bearer token
  --install             Install config to the target's config file
  --list                List all supported tools
`)
	case "mcp":
		fmt.Print(`mantra mcp - Scan, preview, and take over vendor MCP configuration

Usage: mantra mcp <subcommand> [options]

Subcommands:
  scan       List every vendor config file found, parsed into its services
  preview    Classify detected services (auto-create, auto-skip, needs-decision) without writing
  execute    Apply the takeover: create/link services, rewrite files, back up originals
  restore    Restore vendor configs from their pre-takeover backups
  resync     Re-inject the current gateway URL/token into every active backup's file
  sweep      Report (and optionally retire) backups whose files are missing or changed

Common options:
  --root <path>    Workspace root (default: current directory)
`)
	case "update":
		fmt.Print(`mantra update - Update mantra to the latest version

Usage: mantra update [options]
`)
	case "version":
		fmt.Print(`mantra version - Show version information

Usage: mantra version [--check]
`)
	default:
		return fmt.Errorf("unknown help topic: %s\n\nAvailable topics: normalize, serve, mcp-config, mcp, update, version", topic)
	}
	return nil
}
