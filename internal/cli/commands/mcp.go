package commands

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/mantra-hq/mantra/internal/cli/flags"
	"github.com/mantra-hq/mantra/internal/cli/util"
	"github.com/mantra-hq/mantra/internal/config"
	"github.com/mantra-hq/mantra/internal/mcpmodel"
	"github.com/mantra-hq/mantra/internal/storage"
	"github.com/mantra-hq/mantra/internal/takeover"
)

func init() {
	Register(&Command{
		Name:        "mcp",
		Description: "Scan, preview, and take over vendor MCP configuration",
		Run:         RunMCP,
	})
}

// RunMCP dispatches to the mcp subcommands: scan, preview, execute,
// restore, resync, sweep.
func RunMCP(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: mantra mcp <scan|preview|execute|restore|resync|sweep> [options]")
	}

	switch args[0] {
	case "scan":
		return runMCPScan(args[1:])
	case "preview":
		return runMCPPreview(args[1:])
	case "execute":
		return runMCPExecute(args[1:])
	case "restore":
		return runMCPRestore(args[1:])
	case "resync":
		return runMCPResync(args[1:])
	case "sweep":
		return runMCPSweep(args[1:])
	default:
		return fmt.Errorf("unknown mcp subcommand: %s\nusage: mantra mcp <scan|preview|execute|restore|resync|sweep> [options]", args[0])
	}
}

// mcpContext bundles the pieces every mcp subcommand needs: the absolute
// project root (doubling as the project's stable ID — see
// Gateway.projectRoots, which treats DistinctProjectIDs the same way), the
// loaded config, and an opened store.
type mcpContext struct {
	rootPath string
	cfg      *config.Config
	store    *storage.Store
}

func openMCPContext(root string) (*mcpContext, error) {
	rootPath, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(rootPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	dataDir := cfg.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(rootPath, dataDir)
	}
	store, err := storage.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &mcpContext{rootPath: rootPath, cfg: cfg, store: store}, nil
}

func (c *mcpContext) gatewayURL() string {
	return fmt.Sprintf("http://%s/mcp", c.cfg.Gateway.ListenAddr)
}

func runMCPScan(args []string) error {
	fs := flag.NewFlagSet("mcp scan", flag.ContinueOnError)
	root := flags.AddRootFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	rootPath, err := filepath.Abs(*root)
	if err != nil {
		return err
	}

	result, err := takeover.Scan(takeover.NewDefaultRegistry(), rootPath)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	return printJSON(result)
}

func runMCPPreview(args []string) error {
	fs := flag.NewFlagSet("mcp preview", flag.ContinueOnError)
	root := flags.AddRootFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, err := openMCPContext(*root)
	if err != nil {
		return err
	}
	defer ctx.store.Close()

	scan, err := takeover.Scan(takeover.NewDefaultRegistry(), ctx.rootPath)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	existingByName, err := servicesByName(ctx.store)
	if err != nil {
		return err
	}

	var detected []takeover.DetectedService
	for _, cfg := range scan.Configs {
		if cfg.ParseError != "" || cfg.Scope == mcpmodel.ScopeLocal {
			continue
		}
		detected = append(detected, cfg.Services...)
	}

	classified := takeover.ClassifyServices(detected, existingByName)
	return printJSON(classified)
}

func runMCPExecute(args []string) error {
	fs := flag.NewFlagSet("mcp execute", flag.ContinueOnError)
	root := flags.AddRootFlag(fs)
	token := fs.String("token", "", "gateway bearer token to inject alongside the gateway URL")
	adapter := fs.String("adapter", "", "restrict the takeover to a single vendor adapter")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, err := openMCPContext(*root)
	if err != nil {
		return err
	}
	defer ctx.store.Close()

	executor := takeover.NewImportExecutor(ctx.store, takeover.NewDefaultRegistry())
	result, err := executor.Execute(takeover.ImportRequest{
		ProjectID:    ctx.rootPath,
		ProjectPath:  ctx.rootPath,
		AdapterID:    *adapter,
		GatewayURL:   ctx.gatewayURL(),
		GatewayToken: *token,
	})
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	return printJSON(result)
}

func runMCPRestore(args []string) error {
	fs := flag.NewFlagSet("mcp restore", flag.ContinueOnError)
	root := flags.AddRootFlag(fs)
	tool := fs.String("tool", "", "restore only the most recent backup for this vendor adapter (default: every active backup)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, err := openMCPContext(*root)
	if err != nil {
		return err
	}
	defer ctx.store.Close()

	engine := takeover.NewEngine(ctx.store, takeover.NewDefaultRegistry())
	if *tool != "" {
		result, err := engine.RestoreByTool(*tool)
		if err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		return printJSON(result)
	}

	results, err := engine.RestoreAll()
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return printJSON(results)
}

func runMCPResync(args []string) error {
	fs := flag.NewFlagSet("mcp resync", flag.ContinueOnError)
	root := flags.AddRootFlag(fs)
	token := fs.String("token", "", "gateway bearer token to re-inject")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, err := openMCPContext(*root)
	if err != nil {
		return err
	}
	defer ctx.store.Close()

	engine := takeover.NewEngine(ctx.store, takeover.NewDefaultRegistry())
	results, err := engine.Resync(takeover.GatewayInjectionConfig{URL: ctx.gatewayURL(), Token: *token})
	if err != nil {
		return fmt.Errorf("resync: %w", err)
	}
	return printJSON(results)
}

func runMCPSweep(args []string) error {
	fs := flag.NewFlagSet("mcp sweep", flag.ContinueOnError)
	root := flags.AddRootFlag(fs)
	deleteStale := fs.Bool("delete-stale", false, "delete backup rows whose file is missing or hash no longer matches")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, err := openMCPContext(*root)
	if err != nil {
		return err
	}
	defer ctx.store.Close()

	engine := takeover.NewEngine(ctx.store, takeover.NewDefaultRegistry())
	reports, err := engine.IntegritySweep(*deleteStale)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}

	for _, r := range reports {
		health := "ok"
		if !r.BackupFileExists || !r.OriginalFileExists || !r.HashValid {
			health = "stale"
		}
		fmt.Fprintf(os.Stderr, "%s backup for %s (%s), taken %s: %s\n",
			r.Backup.ToolType, util.TruncateLine(r.Backup.OriginalPath, 60), r.Backup.Scope, humanize.Time(r.Backup.TakenAt), health)
	}

	return printJSON(reports)
}

func servicesByName(store *storage.Store) (map[string]mcpmodel.MCPService, error) {
	list, err := store.ListServices()
	if err != nil {
		return nil, fmt.Errorf("list existing services: %w", err)
	}
	out := make(map[string]mcpmodel.MCPService, len(list))
	for _, svc := range list {
		out[svc.Name] = svc
	}
	return out, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
