package takeover

import (
	"testing"

	"github.com/mantra-hq/mantra/internal/mcpmodel"
)

func stdioTransport(cmd string, args ...string) mcpmodel.Transport {
	return mcpmodel.Transport{Kind: mcpmodel.TransportStdio, Command: cmd, Args: args}
}

func TestClassifyAutoCreate(t *testing.T) {
	detected := []DetectedService{
		{Name: "fs", Transport: stdioTransport("npx", "fs-server")},
	}
	out := ClassifyServices(detected, map[string]mcpmodel.MCPService{})
	if len(out) != 1 || out[0].Classification != AutoCreate {
		t.Fatalf("got %+v, want AutoCreate", out)
	}
}

func TestClassifyAutoSkip(t *testing.T) {
	detected := []DetectedService{
		{Name: "fs", Transport: stdioTransport("npx", "fs-server")},
	}
	existing := map[string]mcpmodel.MCPService{
		"fs": {Name: "fs", Transport: stdioTransport("npx", "fs-server")},
	}
	out := ClassifyServices(detected, existing)
	if len(out) != 1 || out[0].Classification != AutoSkip {
		t.Fatalf("got %+v, want AutoSkip", out)
	}
}

func TestClassifyNeedsDecisionDifferentConfig(t *testing.T) {
	detected := []DetectedService{
		{Name: "fs", Transport: stdioTransport("npx", "fs-server", "--verbose")},
	}
	existing := map[string]mcpmodel.MCPService{
		"fs": {Name: "fs", Transport: stdioTransport("npx", "fs-server")},
	}
	out := ClassifyServices(detected, existing)
	if len(out) != 1 || out[0].Classification != NeedsDecision || out[0].Conflict != ConflictDifferentConfig {
		t.Fatalf("got %+v, want NeedsDecision/different_config", out)
	}
}

func TestClassifyNeedsDecisionMultipleCandidates(t *testing.T) {
	detected := []DetectedService{
		{Name: "fs", Transport: stdioTransport("npx", "fs-server"), Scope: mcpmodel.ScopeProject},
		{Name: "fs", Transport: stdioTransport("uvx", "fs-server"), Scope: mcpmodel.ScopeUser},
	}
	out := ClassifyServices(detected, map[string]mcpmodel.MCPService{})
	if len(out) != 1 || out[0].Classification != NeedsDecision || out[0].Conflict != ConflictMultipleCandidates {
		t.Fatalf("got %+v, want NeedsDecision/multiple_candidates", out)
	}
}

func TestEnvVarNeeds(t *testing.T) {
	detected := []DetectedService{
		{Name: "api", Transport: mcpmodel.Transport{
			Kind:    mcpmodel.TransportHTTP,
			URL:     "https://example.com",
			Headers: map[string]string{"Authorization": "Bearer ${API_TOKEN}"},
		}},
		{Name: "shell", Transport: stdioTransport("npx", "$HOME/tool")},
	}
	needs := EnvVarNeeds(detected, map[string]bool{"HOME": true})
	if len(needs) != 1 || needs[0] != "API_TOKEN" {
		t.Fatalf("needs = %v, want [API_TOKEN]", needs)
	}
}
