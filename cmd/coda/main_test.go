package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"run", "config", "hooks", "tools"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestConfigShowRunsAgainstDefaultedConfig(t *testing.T) {
	cmd := buildRootCmd()
	cmd.SetArgs([]string{"config", "show"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Len() == 0 {
		t.Fatal("expected config show to print something")
	}
}

func TestToolsListRunsAgainstDefaultWorkspace(t *testing.T) {
	cmd := buildRootCmd()
	dir := t.TempDir()
	cmd.SetArgs([]string{"tools", "list", "--workspace", dir})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "bash") {
		t.Fatalf("expected tool list to include bash, got %q", out.String())
	}
}
