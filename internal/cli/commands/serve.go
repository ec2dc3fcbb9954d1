package commands

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mantra-hq/mantra/internal/cli/flags"
	"github.com/mantra-hq/mantra/internal/config"
	"github.com/mantra-hq/mantra/internal/gateway"
	"github.com/mantra-hq/mantra/internal/logger"
	"github.com/mantra-hq/mantra/internal/storage"
)

func init() {
	Register(&Command{
		Name:        "serve",
		Aliases:     []string{"gateway"},
		Description: "Start the MCP gateway",
		Run:         RunServe,
	})
}

// ServeOptions contains the configuration for the serve command.
type ServeOptions struct {
	Root string
	Addr string
}

// RunServe executes the serve command with parsed arguments.
func RunServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	root := flags.AddRootFlag(fs)
	addr := fs.String("addr", "", "listen address (default: gateway.listenAddr from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return ExecuteServe(ServeOptions{Root: *root, Addr: *addr})
}

// ExecuteServe opens the data store, loads configuration, and runs the
// gateway until the process receives an interrupt or terminate signal.
func ExecuteServe(opts ServeOptions) error {
	rootPath, err := filepath.Abs(opts.Root)
	if err != nil {
		return err
	}

	cfg, err := config.Load(rootPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config{
		LogDir: filepath.Join(rootPath, cfg.LogDir),
		Level:  cfg.LogLevel,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Shutdown()

	dataDir := cfg.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(rootPath, dataDir)
	}
	store, err := storage.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	addr := opts.Addr
	if addr == "" {
		addr = cfg.Gateway.ListenAddr
	}

	gw := gateway.New(store, cfg.Gateway)
	defer gw.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("gateway listening on %s", addr)
	if err := gw.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

func logLevelFromString(s string) logger.Level {
	switch s {
	case "debug":
		return logger.LevelDebug
	case "off":
		return logger.LevelOff
	default:
		return logger.LevelInfo
	}
}
