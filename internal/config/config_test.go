package config

import (
	"os"
	"path/filepath"
	"testing"
)

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLoadDefaultsWhenConfigMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.ListenAddr == "" {
		t.Fatal("expected default listen addr")
	}
	if len(cfg.Gateway.ProtocolVersions) != 2 {
		t.Fatalf("expected 2 protocol versions, got %v", cfg.Gateway.ProtocolVersions)
	}
	if cfg.Takeover.BackupSuffix != ".mantra-backup" {
		t.Fatalf("unexpected backup suffix: %s", cfg.Takeover.BackupSuffix)
	}
}

func TestLoadMergesGuardrailsWithDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".mantra"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := `{
        "schemaVersion": "1",
        "gateway": {"listenAddr": "127.0.0.1:9999"},
        "takeover": {"guardrails": {"doNotTouchGlobs": ["custom/**", ".git/**"]}}
    }`
	if err := os.WriteFile(filepath.Join(dir, ".mantra", "config.jsonc"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.ListenAddr != "127.0.0.1:9999" {
		t.Fatalf("expected overridden listen addr, got %s", cfg.Gateway.ListenAddr)
	}
	found := false
	for _, g := range cfg.Takeover.Guardrails.DoNotTouchGlobs {
		if g == "custom/**" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected custom guardrail to be merged in, got %v", cfg.Takeover.Guardrails.DoNotTouchGlobs)
	}
}

func TestLoadRejectsCorruptConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".mantra"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".mantra", "config.jsonc"), []byte("{ broken"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for corrupted config")
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Gateway.Token = "secret-token"
	if err := Save(dir, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Gateway.Token != "secret-token" {
		t.Fatalf("expected token to round-trip, got %q", loaded.Gateway.Token)
	}
}

func TestMergeGlobs(t *testing.T) {
	defaults := []string{"a", "b"}
	user := []string{"b", "c", "  ", ""}
	merged := mergeGlobs(defaults, user)

	expected := []string{"a", "b", "c"}
	if !equalSlices(merged, expected) {
		t.Errorf("got %v, want %v", merged, expected)
	}
}

func TestNormalizeGlob(t *testing.T) {
	cases := []struct {
		input    string
		expected string
	}{
		{"  foo/bar  ", "foo/bar"},
		{"foo\\\\bar", "foo/bar"},
		{"foo//bar", "foo/bar"},
		{"", ""},
		{"  ", ""},
	}
	for _, c := range cases {
		got := normalizeGlob(c.input)
		if got != c.expected {
			t.Errorf("normalizeGlob(%q) = %q, want %q", c.input, got, c.expected)
		}
	}
}
