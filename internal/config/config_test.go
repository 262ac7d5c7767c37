package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/capability"
	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "valkyrie.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.StrictExit {
		t.Error("strict exit should be off by default")
	}
	if got := len(cfg.Capabilities.Features()); got != len(capability.All) {
		t.Errorf("expected every feature enabled, got %d", got)
	}
}

func TestLoadFromTOML(t *testing.T) {
	path := writeConfig(t, `
[server]
max_concurrent_requests = 2
strict_exit = true

[log]
level = "debug"

[capabilities]
hover = false
sync_kind = "full"

[engine]
definition_keywords = ["proc"]
`)

	cfg, warnings, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if cfg.Server.MaxConcurrentRequests != 2 || !cfg.Server.StrictExit {
		t.Errorf("server section not applied: %+v", cfg.Server)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug, got %s", cfg.Log.Level)
	}
	// Defaults preserved
	if cfg.Log.Format != "console" {
		t.Errorf("default should be preserved, got %s", cfg.Log.Format)
	}
	if !slices.Equal(cfg.Engine.DefinitionKeywords, []string{"proc"}) {
		t.Errorf("keywords = %v", cfg.Engine.DefinitionKeywords)
	}

	reg := cfg.Registry([]string{"x.run"})
	if reg.Enabled(capability.Hover) {
		t.Error("hover should be disabled")
	}
	if !reg.Enabled(capability.Definition) {
		t.Error("definition should stay enabled")
	}
	opts := reg.Options()
	if opts.SyncKind != lsp.SyncFull {
		t.Errorf("sync kind = %v", opts.SyncKind)
	}
	if !slices.Equal(opts.Commands, []string{"x.run"}) {
		t.Errorf("commands = %v", opts.Commands)
	}
}

func TestUnknownKeysAreWarnings(t *testing.T) {
	path := writeConfig(t, `
[server]
colour = "blue"
`)

	_, warnings, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "server.colour") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestEnvOverride(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "debug"
`)
	t.Setenv("VALKYRIE_LOG_LEVEL", "warn")
	t.Setenv("VALKYRIE_STRICT_EXIT", "true")
	t.Setenv("VALKYRIE_CAP_REFERENCES", "false")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("env should win, got %s", cfg.Log.Level)
	}
	if !cfg.Server.StrictExit {
		t.Error("expected strict exit from env")
	}
	if cfg.Capabilities.References {
		t.Error("expected references disabled from env")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("explicit missing file should fail")
	}

	t.Chdir(t.TempDir())
	cfg, _, err := Load("")
	if err != nil {
		t.Fatalf("implicit missing file should be ignored: %v", err)
	}
	if cfg.Server.Name != Default().Server.Name {
		t.Errorf("expected defaults, got %+v", cfg.Server)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Server.MaxConcurrentRequests = 0 }},
		{"tiny messages", func(c *Config) { c.Server.MaxMessageBytes = 10 }},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
		{"bad sync kind", func(c *Config) { c.Capabilities.SyncKind = "sometimes" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestMemoryEngineCopiesKeywords(t *testing.T) {
	cfg := Default()
	cfg.Engine.TrimOnSave = true
	eng := cfg.MemoryEngine()
	if !eng.TrimOnSave {
		t.Error("TrimOnSave not carried over")
	}
	eng.DefinitionKeywords[0] = "changed"
	if cfg.Engine.DefinitionKeywords[0] == "changed" {
		t.Error("engine config shares keyword storage with Config")
	}
}
