package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  extra_unknown_field: true
`)
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Tools.MaxConcurrency != 5 {
		t.Fatalf("expected default max concurrency 5, got %d", cfg.Tools.MaxConcurrency)
	}
	if cfg.Context.CompactionThreshold != 0.85 {
		t.Fatalf("expected default compaction threshold 0.85, got %v", cfg.Context.CompactionThreshold)
	}
	if cfg.Session.Store != "memory" {
		t.Fatalf("expected default session store memory, got %q", cfg.Session.Store)
	}
}

func TestLoadValidatesSessionStore(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
session:
  store: redis
`)
	_, err := LoadFile(path)
	if err == nil || !strings.Contains(err.Error(), "session.store") {
		t.Fatalf("expected session.store validation error, got %v", err)
	}
}

func TestLoadValidatesThresholdOrdering(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
context:
  compaction_threshold: 0.5
  prune_threshold: 0.7
`)
	_, err := LoadFile(path)
	if err == nil || !strings.Contains(err.Error(), "compaction_threshold") {
		t.Fatalf("expected threshold ordering error, got %v", err)
	}
}

func TestSourcesPrecedenceFlagSettingsWinOverProject(t *testing.T) {
	globalPath := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic:
      default_model: claude-global
`)
	projectPath := writeConfig(t, `
llm:
  providers:
    anthropic:
      default_model: claude-project
`)

	cfg, err := Load(Sources{
		GlobalPath:  globalPath,
		ProjectPath: projectPath,
		FlagSettings: map[string]any{
			"llm": map[string]any{
				"providers": map[string]any{
					"anthropic": map[string]any{
						"default_model": "claude-flag",
					},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.LLM.Providers["anthropic"].DefaultModel; got != "claude-flag" {
		t.Fatalf("expected flag override to win, got %q", got)
	}
}

func TestSourcesPrecedenceProjectOverGlobal(t *testing.T) {
	globalPath := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic:
      default_model: claude-global
`)
	projectPath := writeConfig(t, `
llm:
  providers:
    anthropic:
      default_model: claude-project
`)

	cfg, err := Load(Sources{GlobalPath: globalPath, ProjectPath: projectPath})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.LLM.Providers["anthropic"].DefaultModel; got != "claude-project" {
		t.Fatalf("expected project config to win over global, got %q", got)
	}
}

func TestLoadAcceptsTOMLFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[llm]
default_provider = "anthropic"

[llm.providers.anthropic]
default_model = "claude-toml"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.LLM.Providers["anthropic"].DefaultModel; got != "claude-toml" {
		t.Fatalf("expected claude-toml, got %q", got)
	}
}

func TestJSONSchemaProducesOutput(t *testing.T) {
	schema, err := JSONSchema()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(schema) == 0 {
		t.Fatal("expected non-empty schema")
	}
}
