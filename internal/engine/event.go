// Package engine drives one conversation through the LLM streaming
// protocol and tool-execution weave: it owns the assistant/tool message
// recursion, hook firing at each gate, and the cancellation/reset state
// machine described for the conversation engine component.
package engine

import "github.com/haasonsaas/coda/pkg/model"

// EventKind tags the variant held by an Event.
type EventKind string

const (
	EventText          EventKind = "text"
	EventThinkingStart EventKind = "thinking_start"
	EventThinking      EventKind = "thinking"
	EventThinkingEnd   EventKind = "thinking_end"
	EventToolStarted   EventKind = "tool_started"
	EventToolCompleted EventKind = "tool_completed"
	EventCompaction    EventKind = "compaction"
	EventDone          EventKind = "done"
	EventError         EventKind = "error"
)

// Event is one piece of engine output, forwarded to the CLI renderer and
// to sub-agent callers driving a nested conversation.
type Event struct {
	Kind       EventKind
	Text       string
	ToolCallID string
	ToolName   string
	ToolResult *model.ToolResult
	Usage      model.Usage
	Err        error
}

// Phase names the engine's current position in the request/response state
// machine, carried on LoopError so callers can tell where a run died.
type Phase string

const (
	PhaseInit         Phase = "init"
	PhaseStream       Phase = "stream"
	PhaseExecuteTools Phase = "execute_tools"
	PhaseContinue     Phase = "continue"
	PhaseComplete     Phase = "complete"
)

// LoopError wraps a failure with the phase and iteration it occurred in.
type LoopError struct {
	Phase     Phase
	Iteration int
	Cause     error
}

func (e *LoopError) Error() string {
	if e.Cause == nil {
		return "engine: unknown error"
	}
	return e.Cause.Error()
}

func (e *LoopError) Unwrap() error { return e.Cause }
