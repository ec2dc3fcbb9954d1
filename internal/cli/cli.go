// Package cli is the main entry point for the Mantra CLI application.
package cli

import (
	"fmt"
	"os"

	"github.com/mantra-hq/mantra/internal/cli/commands"
	"github.com/mantra-hq/mantra/internal/update"
)

// Run executes the application given the command-line arguments.
func Run(args []string) error {
	if len(args) == 0 {
		return usage()
	}

	checkForUpdates(args)

	name := args[0]
	switch name {
	case "version", "--version", "-v":
		return cmdVersion(args[1:])
	case "help", "-h", "--help":
		if len(args) > 1 {
			return commands.RunHelp(args[1:])
		}
		return usage()
	}

	cmd, ok := commands.Get(name)
	if !ok {
		return fmt.Errorf("unknown command: %s\nRun 'mantra help' for usage", name)
	}
	return cmd.Run(args[1:])
}

func usage() error {
	return commands.ShowUsage()
}

func checkForUpdates(args []string) {
	if len(args) == 0 {
		return
	}
	cmd := args[0]
	if cmd == "version" || cmd == "--version" || cmd == "-v" || cmd == "update" {
		return
	}

	cacheDir, err := update.GetCacheDir()
	if err != nil {
		return
	}

	result, err := update.CheckCached(GetVersion(), cacheDir)
	if err != nil {
		return
	}

	if result.UpdateAvailable {
		fmt.Fprintf(os.Stderr, "Update available: v%s -> v%s (run 'mantra update')\n\n", result.CurrentVersion, result.LatestVersion)
	}
}
