// Package toolexec registers, validates, and runs tool calls against
// built-in and MCP-style tools: schema validation, pattern-based
// permission policy, and a concurrency-limited retrying executor.
package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool is one callable capability exposed to the LLM's function calling.
type Tool interface {
	// Name returns the tool name for LLM function calling; must match
	// [a-zA-Z0-9_]+ and a registered MCP-style tool is namespaced as
	// "mcp:<server>:<name>".
	Name() string

	// Description is surfaced to the LLM to help it decide when to use the tool.
	Description() string

	// Schema returns the JSON Schema describing the tool's input parameters.
	Schema() json.RawMessage

	// Execute runs the tool with params already validated against Schema().
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Result is a tool's output.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

var schemaCache sync.Map

// compileSchema compiles and caches a tool's JSON Schema by its raw bytes.
func compileSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiled, err := jsonschema.CompileString(name+".schema.json", key)
	if err != nil {
		return nil, fmt.Errorf("compile schema for tool %s: %w", name, err)
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// ValidateInput checks params against tool's declared Schema.
func ValidateInput(tool Tool, params json.RawMessage) error {
	schema, err := compileSchema(tool.Name(), tool.Schema())
	if err != nil {
		return err
	}

	var decoded any
	if len(params) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(params, &decoded); err != nil {
		return fmt.Errorf("decode tool input: %w", err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("tool %s input invalid: %w", tool.Name(), err)
	}
	return nil
}
