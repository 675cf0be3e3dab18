package engine

import (
	"context"
	"fmt"

	"github.com/haasonsaas/coda/internal/hooks"
	"github.com/haasonsaas/coda/internal/toolexec"
)

// HookGate fires lifecycle hooks and folds their verdicts into one
// permission decision for a tool call. In-process callback handlers
// (hooks.Registry) run for every event as the observability fast path;
// command-type and plugin hooks are the only ones that can actually veto or
// demand approval, since they are the only hook kinds whose Response is
// read back.
type HookGate struct {
	registry *hooks.Registry
	runner   *hooks.CommandRunner
	commands map[hooks.EventType][]hooks.CommandSpec
	profile  toolexec.Profile

	pluginHost *hooks.PluginHost
	plugins    map[hooks.EventType][]hooks.PluginSpec
}

// NewHookGate builds a HookGate. registry may be nil (no in-process
// hooks); commands may be nil (no subprocess hooks configured).
func NewHookGate(registry *hooks.Registry, commands map[hooks.EventType][]hooks.CommandSpec, profile toolexec.Profile) *HookGate {
	if registry == nil {
		registry = hooks.NewRegistry(nil)
	}
	return &HookGate{
		registry: registry,
		runner:   hooks.NewCommandRunner(0),
		commands: commands,
		profile:  profile,
	}
}

// WithPlugins attaches long-lived plugin hooks (type=plugin in config) to
// the gate. host is shared across every HookGate the process builds so
// plugin processes stay warm across conversations. Returns g for chaining.
func (g *HookGate) WithPlugins(host *hooks.PluginHost, plugins map[hooks.EventType][]hooks.PluginSpec) *HookGate {
	g.pluginHost = host
	g.plugins = plugins
	return g
}

// Fire triggers in-process handlers and any matching command hooks for
// evt, then any matching plugin hooks, returning the aggregated Response. A
// nil Response means no command or plugin hook replied (the conversation
// continues).
func (g *HookGate) Fire(ctx context.Context, evt *hooks.Event) (*hooks.Response, error) {
	if err := g.registry.Trigger(ctx, evt); err != nil {
		return nil, fmt.Errorf("hook callback: %w", err)
	}

	var resp *hooks.Response
	for _, spec := range g.commands[evt.Type] {
		r, err := g.runner.Run(ctx, spec, evt)
		if err != nil {
			return nil, fmt.Errorf("hook command %q: %w", spec.Command, err)
		}
		if r == nil {
			continue
		}
		resp = r
		if r.Decision == hooks.DecisionDeny || !r.Continue {
			return resp, nil
		}
	}

	if g.pluginHost == nil {
		return resp, nil
	}
	for _, spec := range g.plugins[evt.Type] {
		r, err := g.pluginHost.Dispatch(ctx, spec, evt)
		if err != nil {
			return nil, fmt.Errorf("hook plugin %q: %w", spec.Name, err)
		}
		if r == nil {
			continue
		}
		resp = r
		if r.Decision == hooks.DecisionDeny || !r.Continue {
			break
		}
	}
	return resp, nil
}

// EvaluateTool resolves whether a tool call is allowed to run: the
// permission profile is checked first (an explicit deny always wins),
// then a PreToolUse hook gets a chance to deny or demand approval, then
// to override an "ask" down to an explicit allow. Approval prompts
// themselves are a CLI concern; a bare "ask" with no hook response is
// treated as deny so a headless run never hangs waiting on a human.
func (g *HookGate) EvaluateTool(ctx context.Context, conversationID string, call toolCallView) (toolexec.Decision, string, error) {
	decision := g.profile.Evaluate(call.Name)
	if decision == toolexec.DecisionDeny {
		return toolexec.DecisionDeny, "denied by permission profile", nil
	}

	evt := hooks.NewEvent(hooks.EventPreToolUse, conversationID).WithTool(call.Name, call.ID, call.Input)
	resp, err := g.Fire(ctx, evt)
	if err != nil {
		return toolexec.DecisionDeny, "", err
	}
	if resp != nil {
		switch resp.Decision {
		case hooks.DecisionDeny:
			return toolexec.DecisionDeny, resp.Reason, nil
		case hooks.DecisionAllow:
			return toolexec.DecisionAllow, "", nil
		case hooks.DecisionAsk:
			decision = toolexec.DecisionAsk
		}
	}

	if decision == toolexec.DecisionAsk {
		return toolexec.DecisionDeny, "requires approval and no hook granted it", nil
	}
	return toolexec.DecisionAllow, "", nil
}

// toolCallView is the minimal shape EvaluateTool needs, satisfied by
// model.ToolCall without importing pkg/model here.
type toolCallView struct {
	ID    string
	Name  string
	Input []byte
}
