package commands_test

import (
	"testing"

	"github.com/mantra-hq/mantra/internal/cli/commands"
)

func TestRunHelpNoArgs(t *testing.T) {
	err := commands.RunHelp([]string{})
	if err != nil {
		t.Errorf("RunHelp with no args should show usage: %v", err)
	}
}

func TestShowUsage(t *testing.T) {
	err := commands.ShowUsage()
	if err != nil {
		t.Errorf("ShowUsage failed: %v", err)
	}
}

func TestShowHelpTopicNormalize(t *testing.T) {
	err := commands.ShowHelpTopic("normalize")
	if err != nil {
		t.Errorf("ShowHelpTopic(normalize) failed: %v", err)
	}
}

func TestShowHelpTopicServe(t *testing.T) {
	err := commands.ShowHelpTopic("serve")
	if err != nil {
		t.Errorf("ShowHelpTopic(serve) failed: %v", err)
	}
}

func TestShowHelpTopicGateway(t *testing.T) {
	// "gateway" is an alias for "serve"
	err := commands.ShowHelpTopic("gateway")
	if err != nil {
		t.Errorf("ShowHelpTopic(gateway) failed: %v", err)
	}
}

func TestShowHelpTopicMCPConfig(t *testing.T) {
	err := commands.ShowHelpTopic("mcp-config")
	if err != nil {
		t.Errorf("ShowHelpTopic(mcp-config) failed: %v", err)
	}
}

func TestShowHelpTopicMCP(t *testing.T) {
	err := commands.ShowHelpTopic("mcp")
	if err != nil {
		t.Errorf("ShowHelpTopic(mcp) failed: %v", err)
	}
}

func TestShowHelpTopicUpdate(t *testing.T) {
	err := commands.ShowHelpTopic("update")
	if err != nil {
		t.Errorf("ShowHelpTopic(update) failed: %v", err)
	}
}

func TestShowHelpTopicVersion(t *testing.T) {
	err := commands.ShowHelpTopic("version")
	if err != nil {
		t.Errorf("ShowHelpTopic(version) failed: %v", err)
	}
}

func TestShowHelpTopicUnknown(t *testing.T) {
	err := commands.ShowHelpTopic("unknown")
	if err == nil {
		t.Error("ShowHelpTopic should return error for unknown topic")
	}
}

func TestRunHelpDelegatesToTopic(t *testing.T) {
	if err := commands.RunHelp([]string{"MCP"}); err != nil {
		t.Errorf("RunHelp should lowercase the topic before dispatch: %v", err)
	}
}
