// Package hooks implements lifecycle hook dispatch against conversations
// and tool calls: in-process callback handlers (adapted from an existing
// event-bus pattern) plus subprocess ("command") and long-lived-plugin
// ("plugin") hook runners driven by the same Event/Response shapes.
package hooks

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies a point in the conversation/tool lifecycle a hook
// can be attached to.
type EventType string

const (
	EventUserPromptSubmit EventType = "user_prompt_submit"
	EventPreToolUse       EventType = "pre_tool_use"
	EventPostToolUse      EventType = "post_tool_use"
	EventNotification     EventType = "notification"
	EventStop             EventType = "stop"
	EventSubagentStop     EventType = "subagent_stop"
	EventPreCompact       EventType = "pre_compact"
	EventSessionStart     EventType = "session_start"
	EventSessionEnd       EventType = "session_end"
	EventAgentStarted     EventType = "agent_started"
	EventAgentCompleted   EventType = "agent_completed"
)

// Event is the context handed to both in-process handlers and subprocess
// hooks (as JSON on stdin).
type Event struct {
	Type           EventType       `json:"hook_event_name"`
	ConversationID string          `json:"conversation_id"`
	AgentType      string          `json:"agent_type,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolCallID     string          `json:"tool_call_id,omitempty"`
	ToolInput      json.RawMessage `json:"tool_input,omitempty"`
	ToolResponse   json.RawMessage `json:"tool_response,omitempty"`
	Prompt         string          `json:"prompt,omitempty"`
	Message        string          `json:"message,omitempty"`
	Error          string          `json:"error,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Extra          map[string]any  `json:"extra,omitempty"`
}

// Handler processes an Event delivered to an in-process ("callback") hook.
// Handlers should be fast and non-blocking; long-running work belongs in
// the "command" or "plugin" hook types instead.
type Handler func(ctx context.Context, event *Event) error

// Priority orders handlers within the same event key; lower runs first.
type Priority int

const (
	PriorityHighest Priority = 0
	PriorityHigh    Priority = 25
	PriorityNormal  Priority = 50
	PriorityLow     Priority = 75
	PriorityLowest  Priority = 100
)

// Registration is one callback handler bound to an event key.
type Registration struct {
	ID       string
	EventKey EventType
	Handler  Handler
	Priority Priority
	Name     string
	Source   string
}

// Filter narrows which events a command or plugin hook wants delivered.
type Filter struct {
	EventTypes []EventType
}

// Matches reports whether evt passes the filter.
func (f *Filter) Matches(evt *Event) bool {
	if f == nil || len(f.EventTypes) == 0 {
		return true
	}
	for _, t := range f.EventTypes {
		if t == evt.Type {
			return true
		}
	}
	return false
}

// NewEvent builds an Event stamped with the current time.
func NewEvent(t EventType, conversationID string) *Event {
	return &Event{Type: t, ConversationID: conversationID, Timestamp: time.Now(), Extra: make(map[string]any)}
}

func (e *Event) WithTool(name, callID string, input json.RawMessage) *Event {
	e.ToolName = name
	e.ToolCallID = callID
	e.ToolInput = input
	return e
}

func (e *Event) WithExtra(key string, value any) *Event {
	if e.Extra == nil {
		e.Extra = make(map[string]any)
	}
	e.Extra[key] = value
	return e
}

// PermissionDecision is how a PreToolUse hook disposes of a tool call.
type PermissionDecision string

const (
	DecisionAllow PermissionDecision = "allow"
	DecisionDeny  PermissionDecision = "deny"
	DecisionAsk   PermissionDecision = "ask"
)

// Response is a hook's structured reply, whether from a command
// subprocess's stdout JSON, a callback handler, or a plugin RPC call.
type Response struct {
	Continue           bool               `json:"continue"`
	StopReason         string             `json:"stopReason,omitempty"`
	SuppressOutput     bool               `json:"suppressOutput,omitempty"`
	Decision           PermissionDecision `json:"decision,omitempty"`
	Reason             string             `json:"reason,omitempty"`
	HookSpecificOutput map[string]any     `json:"hookSpecificOutput,omitempty"`
	Delivered          bool               `json:"-"` // false for the synthetic response of an async timeout or cancellation
}
