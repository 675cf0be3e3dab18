package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/coda/internal/engine"
	"github.com/haasonsaas/coda/internal/orchestrator"
	"github.com/haasonsaas/coda/internal/toolexec"
)

// Launcher is the subset of *orchestrator.Orchestrator the task tool needs;
// narrowed to an interface so tests can supply a stub without constructing a
// full Orchestrator.
type Launcher interface {
	Launch(ctx context.Context, agentType orchestrator.AgentType, task, parentContext string) (<-chan *engine.Event, error)
}

// TaskTool delegates a unit of work to a sub-agent conversation, running it
// to completion and returning its final transcript as the result. It is the
// one built-in tool that drives the agent orchestrator instead of the
// local workspace or shell.
type TaskTool struct {
	launcher Launcher
}

// NewTaskTool builds a task tool backed by launcher.
func NewTaskTool(launcher Launcher) *TaskTool {
	return &TaskTool{launcher: launcher}
}

func (t *TaskTool) Name() string { return "task" }

func (t *TaskTool) Description() string {
	return "Delegate a self-contained unit of work to a sub-agent and wait for its result."
}

func (t *TaskTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description": map[string]any{
				"type":        "string",
				"description": "What the sub-agent should accomplish.",
			},
			"agent_type": map[string]any{
				"type":        "string",
				"description": "general-purpose, output-style-setup, or statusline-setup.",
				"enum":        []string{"general-purpose", "output-style-setup", "statusline-setup"},
			},
			"context": map[string]any{
				"type":        "string",
				"description": "Relevant context carried over from the parent conversation.",
			},
		},
		"required": []string{"description"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *TaskTool) Execute(ctx context.Context, params json.RawMessage) (*toolexec.Result, error) {
	var input struct {
		Description string `json:"description"`
		AgentType   string `json:"agent_type"`
		Context     string `json:"context"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Description) == "" {
		return toolError("description is required"), nil
	}

	agentType := orchestrator.AgentGeneralPurpose
	if input.AgentType != "" {
		agentType = orchestrator.AgentType(input.AgentType)
	}
	if _, ok := orchestrator.LookupProfile(agentType); !ok {
		return toolError(fmt.Sprintf("unknown agent_type %q", input.AgentType)), nil
	}

	events, err := t.launcher.Launch(ctx, agentType, input.Description, input.Context)
	if err != nil {
		return toolError(fmt.Sprintf("launch sub-agent: %v", err)), nil
	}

	var transcript strings.Builder
	var lastErr error
	for evt := range events {
		switch evt.Kind {
		case engine.EventText:
			transcript.WriteString(evt.Text)
		case engine.EventError:
			lastErr = evt.Err
		}
	}
	if lastErr != nil {
		return toolError(fmt.Sprintf("sub-agent failed: %v", lastErr)), nil
	}

	return &toolexec.Result{Content: transcript.String()}, nil
}
