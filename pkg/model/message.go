// Package model holds the wire-level conversation data shared across the
// engine, tool executor, hook runner, and token accountant.
package model

import (
	"encoding/json"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// BlockType tags the variant held by a ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockDocument   BlockType = "document"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockThinking   BlockType = "thinking"
)

// ContentBlock is a tagged union over the block variants a message can
// carry. Only the fields matching Type are populated; the rest are zero.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// BlockText
	Text string `json:"text,omitempty"`

	// BlockImage / BlockDocument
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"` // base64, or a URL when Source == "url"
	Source    string `json:"source,omitempty"` // "base64" | "url"
	Filename  string `json:"filename,omitempty"`

	// BlockToolUse
	ToolUseID string          `json:"tool_use_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`

	// BlockToolResult
	ToolResultFor string `json:"tool_result_for,omitempty"` // ToolUseID it answers
	IsError       bool   `json:"is_error,omitempty"`

	// BlockThinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// CacheControl marks a block as a stable prompt-cache breakpoint.
	CacheControl string `json:"cache_control,omitempty"`
}

// ToolCall is a request, emitted by the model, to invoke a named tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	ToolCallID  string         `json:"tool_call_id"`
	Content     string         `json:"content"`
	IsError     bool           `json:"is_error"`
	Attachments []ContentBlock `json:"attachments,omitempty"`
}

// Message is one turn of a Conversation.
type Message struct {
	ID          string         `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Role        Role           `json:"role"`
	Content     string         `json:"content,omitempty"`
	Blocks      []ContentBlock `json:"blocks,omitempty"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Usage is token accounting for a single LLM exchange.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// Conversation is the ordered, append-only transcript the engine drives.
type Conversation struct {
	ID        string    `json:"id"`
	AgentType string    `json:"agent_type"`
	Messages  []*Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Append adds a message and refreshes UpdatedAt.
func (c *Conversation) Append(msg *Message) {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = msg.CreatedAt
}
