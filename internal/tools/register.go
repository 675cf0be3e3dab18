// Package tools wires the built-in tool stubs (file ops, shell exec) into a
// toolexec.Registry. These are thin adapters over the workspace filesystem
// and a shell, enough to exercise the tool executor's pipeline — not
// production-grade implementations of a real coding assistant's file/search
// tools. They register under lowercase names ("read", "edit", ...), while
// the output-style-setup and statusline-setup agent profiles whitelist
// capitalised names ("Read", "Edit", ...) and pattern matching is
// case-sensitive, so of the built-in profiles only general-purpose ("*")
// reaches these tools.
package tools

import (
	"github.com/haasonsaas/coda/internal/toolexec"
	"github.com/haasonsaas/coda/internal/tools/exec"
	"github.com/haasonsaas/coda/internal/tools/files"
)

// Config controls which built-in tools get registered and how they're scoped.
type Config struct {
	Workspace    string
	MaxReadBytes int

	// Launcher, if set, registers the "task" tool for sub-agent delegation.
	// Left nil, a run has no way to spawn sub-agents (e.g. a one-shot CLI
	// invocation that has no orchestrator to delegate through).
	Launcher Launcher
}

// Register adds every built-in tool to registry, scoped to cfg.Workspace.
func Register(registry *toolexec.Registry, cfg Config) {
	filesCfg := files.Config{Workspace: cfg.Workspace, MaxReadBytes: cfg.MaxReadBytes}

	registry.Register(files.NewReadTool(filesCfg))
	registry.Register(files.NewWriteTool(filesCfg))
	registry.Register(files.NewEditTool(filesCfg))
	registry.Register(files.NewGlobTool(filesCfg))
	registry.Register(files.NewGrepTool(filesCfg))
	registry.Register(files.NewApplyPatchTool(filesCfg))

	manager := exec.NewManager(cfg.Workspace)
	registry.Register(exec.NewExecTool("bash", manager))
	registry.Register(exec.NewProcessTool(manager))

	if cfg.Launcher != nil {
		registry.Register(NewTaskTool(cfg.Launcher))
	}
}
