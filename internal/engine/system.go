package engine

import (
	"fmt"
	"runtime"
	"strings"
)

// SystemPromptInput is the material the engine stitches into one system
// prompt: an agent-specific base, plus the ambient runtime identity every
// conversation carries regardless of agent type.
type SystemPromptInput struct {
	Base      string
	Cwd       string
	RuntimeID string
}

// BuildSystemPrompt assembles the system prompt per §4.5's request
// construction rule: agent-specific base text, current working directory,
// platform, and runtime identity.
func BuildSystemPrompt(in SystemPromptInput) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(in.Base))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Working directory: %s\n", in.Cwd)
	fmt.Fprintf(&b, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if in.RuntimeID != "" {
		fmt.Fprintf(&b, "Runtime: %s\n", in.RuntimeID)
	}
	return b.String()
}
