package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haasonsaas/coda/internal/toolexec"
)

// GlobTool lists workspace files matching a glob pattern.
type GlobTool struct {
	resolver Resolver
	maxHits  int
}

// NewGlobTool creates a glob tool scoped to the workspace.
func NewGlobTool(cfg Config) *GlobTool {
	return &GlobTool{resolver: Resolver{Root: cfg.Workspace}, maxHits: 500}
}

// Name returns the tool name.
func (t *GlobTool) Name() string {
	return "glob"
}

// Description returns the tool description.
func (t *GlobTool) Description() string {
	return "Find files in the workspace matching a glob pattern (e.g. **/*.go)."
}

// Schema returns the JSON schema for the tool parameters.
func (t *GlobTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Glob pattern, relative to workspace. Supports ** for recursive matches.",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to search from (default: workspace root).",
			},
		},
		"required": []string{"pattern"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute walks the workspace collecting paths matching pattern.
func (t *GlobTool) Execute(ctx context.Context, params json.RawMessage) (*toolexec.Result, error) {
	var input struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return toolError("pattern is required"), nil
	}

	base := input.Path
	if base == "" {
		base = "."
	}
	root, err := t.resolver.Resolve(base)
	if err != nil {
		return toolError(err.Error()), nil
	}

	recursive := strings.Contains(input.Pattern, "**")
	pattern := strings.ReplaceAll(input.Pattern, "**/", "")
	pattern = strings.TrimPrefix(pattern, "**")

	var matches []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if !recursive && strings.ContainsRune(rel, filepath.Separator) {
			return nil
		}
		name := rel
		if recursive {
			name = filepath.Base(path)
		}
		ok, matchErr := filepath.Match(pattern, name)
		if matchErr != nil {
			return matchErr
		}
		if ok {
			matches = append(matches, rel)
			if len(matches) >= t.maxHits {
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return toolError(fmt.Sprintf("glob: %v", err)), nil
	}
	sort.Strings(matches)

	payload, err := json.MarshalIndent(map[string]interface{}{
		"matches":   matches,
		"count":     len(matches),
		"truncated": len(matches) >= t.maxHits,
	}, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &toolexec.Result{Content: string(payload)}, nil
}
