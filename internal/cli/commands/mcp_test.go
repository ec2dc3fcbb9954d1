package commands

import (
	"testing"
)

func TestRunMCPNoSubcommand(t *testing.T) {
	err := RunMCP([]string{})
	if err == nil {
		t.Error("expected error when no subcommand is given")
	}
}

func TestRunMCPUnknownSubcommand(t *testing.T) {
	err := RunMCP([]string{"frobnicate"})
	if err == nil {
		t.Error("expected error for unknown subcommand")
	}
}

func TestRunMCPScan(t *testing.T) {
	root := t.TempDir()
	if err := RunMCP([]string{"scan", "--root", root}); err != nil {
		t.Errorf("mcp scan error: %v", err)
	}
}

func TestRunMCPPreview(t *testing.T) {
	root := t.TempDir()
	if err := RunMCP([]string{"preview", "--root", root}); err != nil {
		t.Errorf("mcp preview error: %v", err)
	}
}

func TestRunMCPExecute(t *testing.T) {
	root := t.TempDir()
	if err := RunMCP([]string{"execute", "--root", root}); err != nil {
		t.Errorf("mcp execute error: %v", err)
	}
}

func TestRunMCPRestoreAll(t *testing.T) {
	root := t.TempDir()
	if err := RunMCP([]string{"restore", "--root", root}); err != nil {
		t.Errorf("mcp restore error: %v", err)
	}
}

func TestRunMCPResync(t *testing.T) {
	root := t.TempDir()
	if err := RunMCP([]string{"resync", "--root", root}); err != nil {
		t.Errorf("mcp resync error: %v", err)
	}
}

func TestRunMCPSweep(t *testing.T) {
	root := t.TempDir()
	if err := RunMCP([]string{"sweep", "--root", root}); err != nil {
		t.Errorf("mcp sweep error: %v", err)
	}
}

func TestMCPContextGatewayURL(t *testing.T) {
	root := t.TempDir()
	ctx, err := openMCPContext(root)
	if err != nil {
		t.Fatalf("openMCPContext() error: %v", err)
	}
	defer ctx.store.Close()

	got := ctx.gatewayURL()
	want := "http://" + ctx.cfg.Gateway.ListenAddr + "/mcp"
	if got != want {
		t.Errorf("gatewayURL() = %q, want %q", got, want)
	}
}

func TestServicesByNameEmptyStore(t *testing.T) {
	root := t.TempDir()
	ctx, err := openMCPContext(root)
	if err != nil {
		t.Fatalf("openMCPContext() error: %v", err)
	}
	defer ctx.store.Close()

	svcs, err := servicesByName(ctx.store)
	if err != nil {
		t.Fatalf("servicesByName() error: %v", err)
	}
	if len(svcs) != 0 {
		t.Errorf("expected no services in a freshly opened store, got %d", len(svcs))
	}
}
