package files

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/haasonsaas/coda/internal/toolexec"
)

// GrepTool searches workspace file contents with a regular expression.
type GrepTool struct {
	resolver Resolver
	maxHits  int
}

// NewGrepTool creates a grep tool scoped to the workspace.
func NewGrepTool(cfg Config) *GrepTool {
	return &GrepTool{resolver: Resolver{Root: cfg.Workspace}, maxHits: 200}
}

// Name returns the tool name.
func (t *GrepTool) Name() string {
	return "grep"
}

// Description returns the tool description.
func (t *GrepTool) Description() string {
	return "Search file contents in the workspace with a regular expression."
}

// Schema returns the JSON schema for the tool parameters.
func (t *GrepTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "RE2 regular expression to search for.",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory or file to search (default: workspace root).",
			},
			"glob": map[string]interface{}{
				"type":        "string",
				"description": "Only search files whose base name matches this glob.",
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

type grepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Execute walks the workspace applying pattern to each file's lines.
func (t *GrepTool) Execute(ctx context.Context, params json.RawMessage) (*toolexec.Result, error) {
	var input struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
		Glob    string `json:"glob"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return toolError("pattern is required"), nil
	}

	re, err := regexp.Compile(input.Pattern)
	if err != nil {
		return toolError(fmt.Sprintf("invalid pattern: %v", err)), nil
	}

	base := input.Path
	if base == "" {
		base = "."
	}
	root, err := t.resolver.Resolve(base)
	if err != nil {
		return toolError(err.Error()), nil
	}

	var matches []grepMatch
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		if input.Glob != "" {
			ok, globErr := filepath.Match(input.Glob, d.Name())
			if globErr != nil {
				return globErr
			}
			if !ok {
				return nil
			}
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		return grepFile(path, rel, re, &matches, t.maxHits)
	})
	if walkErr != nil {
		return toolError(fmt.Sprintf("grep: %v", walkErr)), nil
	}

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

func grepFile(path, rel string, re *regexp.Regexp, matches *[]grepMatch, maxHits int) error {
	if len(*matches) >= maxHits {
		return fs.SkipAll
	}
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if re.MatchString(line) {
			*matches = append(*matches, grepMatch{Path: rel, Line: lineNum, Text: line})
			if len(*matches) >= maxHits {
				return fs.SkipAll
			}
		}
	}
	return nil
}
